package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"itemstore/pkg/channel/disk"
	"itemstore/pkg/cluster"

	"github.com/spf13/cobra"
)

var (
	includeMask string
	excludeMask string
)

// workspace 把本地目录变成节点上的位置
// 目录位于 --node 指定的节点上；未指定时就是本机目录，
// 此时 coordinator 必须是本机磁盘节点。
func workspace(ctx context.Context, dir string) (cluster.Location, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return cluster.Location{}, err
	}

	ch, err := boundChannel(ctx)
	if err != nil {
		return cluster.Location{}, err
	}
	if ch == nil {
		coord := App.Membership.Coordinator()
		if coord.Channel == nil {
			return cluster.Location{}, fmt.Errorf("coordinator is offline")
		}
		if !onLocalDisk(coord.Channel) {
			return cluster.Location{}, fmt.Errorf("coordinator %q is not a disk node: pass --node to name the node holding %s", coord.Name, dir)
		}
		ch = coord.Channel
	}
	return cluster.Location{Channel: ch, Path: filepath.ToSlash(abs)}, nil
}

// onLocalDisk 判断通道 (拆掉装饰器之后) 是否操作本机磁盘
func onLocalDisk(ch cluster.Channel) bool {
	for {
		switch c := ch.(type) {
		case *disk.Channel:
			return true
		case interface{ Unwrap() cluster.Channel }:
			ch = c.Unwrap()
		default:
			return false
		}
	}
}

var saveCmd = &cobra.Command{
	Use:     "save <dir> [subpath]",
	Short:   "Copy a directory tree into the cache",
	Example: `  itemstore save ./build/deps cache/deps --include "**/*.jar" --exclude "**/*-SNAPSHOT.jar"`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := handleFor(ctx, args[1:])
		if err != nil {
			return err
		}
		src, err := workspace(ctx, args[0])
		if err != nil {
			return err
		}

		n, err := h.CopyRecursiveFrom(ctx, includeMask, excludeMask, src)
		if err != nil {
			return fmt.Errorf("save failed after %d files: %w", n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d files from %s into %s\n", n, src, h)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <dir> [subpath]",
	Short: "Copy a cached directory tree into a directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := handleFor(ctx, args[1:])
		if err != nil {
			return err
		}
		dst, err := workspace(ctx, args[0])
		if err != nil {
			return err
		}

		n, err := h.CopyRecursiveTo(ctx, includeMask, excludeMask, dst)
		if err != nil {
			return fmt.Errorf("restore failed after %d files: %w", n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %d files from %s into %s\n", n, h, dst)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{saveCmd, restoreCmd} {
		c.Flags().StringVar(&includeMask, "include", "", "comma separated include globs (default: everything)")
		c.Flags().StringVar(&excludeMask, "exclude", "", "comma separated exclude globs")
		rootCmd.AddCommand(c)
	}
}
