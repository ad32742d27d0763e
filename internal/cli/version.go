package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/metalens/pkg/metalens"
)

const modulePath = "github.com/mesh-intelligence/metalens"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the metalens version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "metalens v%s\nmodule: %s\n", metalens.Version, modulePath)
			return nil
		},
	}
}
