package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var existsCmd = &cobra.Command{
	Use:   "exists [subpath]",
	Short: "Check whether a cache path exists anywhere in the cluster",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := handleFor(ctx, args)
		if err != nil {
			return err
		}

		ok, err := h.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not found\n", h)
			return nil
		}

		// 存在时顺便告诉用户在哪个节点
		loc, err := h.Locate(ctx)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: exists\n", h)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: exists on %s\n", h, loc)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [subpath]",
	Short: "Delete a cache directory tree",
	Long:  `Delete the cache tree on the node that holds it. Deleting a path nobody has is not an error.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := handleFor(ctx, args)
		if err != nil {
			return err
		}
		if err := h.DeleteRecursive(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", h)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(rmCmd)
}
