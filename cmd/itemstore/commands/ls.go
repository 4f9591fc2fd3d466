package commands

import (
	"fmt"

	"itemstore/pkg/browse"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [subpath]",
	Short: "Browse a cache directory on the node that holds it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := handleFor(ctx, args)
		if err != nil {
			return err
		}

		listing := h.Browse(ctx, browse.Lister{}, h.Item().Name)
		if listing == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Cache of %s is not available.\n", h.Item().Name)
			return nil
		}
		return listing.Render(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
