package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/metalens/pkg/codec"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// inspectOutput is the --json form of inspect.
type inspectOutput struct {
	Handle    types.FileHandle `json:"handle"`
	SizeLabel string           `json:"sizeLabel"`
	Record    types.Record     `json:"record"`
}

func newInspectCmd(a *app) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show a file's attributes and its initial metadata record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHandle(args[0], root)
			if err != nil {
				return err
			}
			r := types.InitFrom(h)

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return printJSON(out, inspectOutput{
					Handle:    h,
					SizeLabel: codec.FormatByteCount(h.OriginalSize),
					Record:    r,
				})
			}
			printHandle(out, h)
			fmt.Fprintln(out)
			printRecord(out, r)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory the file was selected from; sets its relative path")
	return cmd
}
