package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"itemstore/pkg/cluster"
	"itemstore/pkg/meta"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List cluster nodes in discovery order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if App == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()

		members, err := App.Membership.Nodes(ctx)
		if err != nil {
			return err
		}
		order, err := cluster.ParseOrder(viper.GetString("discovery.order"))
		if err != nil {
			return err
		}
		cands, err := cluster.Candidates(ctx, App.Membership, order)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "#\tNODE\tHOME\n")
		for i, n := range cands {
			home, err := n.Channel.Home(ctx)
			if err != nil {
				home = "? (" + err.Error() + ")"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, n.Name, home)
		}
		// 离线节点不参与发现，单独列出
		for _, n := range members {
			if !n.Online() {
				fmt.Fprintf(tw, "-\t%s\toffline\n", n.Name)
			}
		}
		return tw.Flush()
	},
}

// -----------------------------------------------------------------------------
// node add | rm | offline | online (仅 database 注册表)
// -----------------------------------------------------------------------------

var nodeAdd struct {
	kind     string
	root     string
	bucket   string
	endpoint string
	region   string
	offline  bool
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage the database node registry",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if viper.GetString("cluster.registry") != "database" {
			return fmt.Errorf("node management requires cluster.registry = database")
		}
		return nil
	},
}

var nodeAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a node (or update an existing one)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := meta.EncodeOptions(meta.NodeOptions{
			Bucket:   nodeAdd.bucket,
			Endpoint: nodeAdd.endpoint,
			Region:   nodeAdd.region,
		})
		if err != nil {
			return err
		}
		n := &meta.NodeModel{
			Name:    args[0],
			Kind:    nodeAdd.kind,
			Root:    nodeAdd.root,
			Online:  !nodeAdd.offline,
			Options: opts,
		}
		if err := App.Repository.UpsertNode(cmd.Context(), n); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) at position %d\n", n.Name, n.Kind, n.Ordinal+1)
		return nil
	},
}

var nodeRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a node from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := App.Repository.DeleteNode(cmd.Context(), args[0])
		if errors.Is(err, meta.ErrNodeNotFound) {
			return fmt.Errorf("unknown node %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed node %s\n", args[0])
		return nil
	},
}

func setOnlineCmd(use, short string, online bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := App.Repository.SetOnline(cmd.Context(), args[0], online)
			if errors.Is(err, meta.ErrNodeNotFound) {
				return fmt.Errorf("unknown node %q", args[0])
			}
			if err != nil {
				return err
			}
			state := "offline"
			if online {
				state = "online"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %s is now %s\n", args[0], state)
			return nil
		},
	}
}

func init() {
	nodeAddCmd.Flags().StringVar(&nodeAdd.kind, "type", "disk", "node type: disk | s3 | memory")
	nodeAddCmd.Flags().StringVar(&nodeAdd.root, "root", "", "home directory (disk) or key prefix (s3)")
	nodeAddCmd.Flags().StringVar(&nodeAdd.bucket, "bucket", "", "s3 bucket")
	nodeAddCmd.Flags().StringVar(&nodeAdd.endpoint, "endpoint", "", "s3 endpoint (e.g. http://localhost:9000 for MinIO)")
	nodeAddCmd.Flags().StringVar(&nodeAdd.region, "region", "us-east-1", "s3 region")
	nodeAddCmd.Flags().BoolVar(&nodeAdd.offline, "offline", false, "register the node as offline")

	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeRmCmd)
	nodeCmd.AddCommand(setOnlineCmd("offline", "Exclude a node from discovery", false))
	nodeCmd.AddCommand(setOnlineCmd("online", "Include a node in discovery again", true))

	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(nodeCmd)
}
