package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Ask the analysis service for a description, keywords and a filename",
		Long: "Send the file to the content-analysis service and print its suggestions,\n" +
			"including advisory technical details. Nothing is written; use\n" +
			"'metalens edit --analyze' to merge the suggestions into an export.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHandle(args[0], root)
			if err != nil {
				return err
			}

			s := a.newSession()
			s.Open(h)
			result, record, err := s.Analyze(cmd.Context())
			if err != nil {
				return analysisError(err)
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return printJSON(out, struct {
					Analysis any `json:"analysis"`
					Record   any `json:"record"`
				}{result, record})
			}
			printResult(out, result)
			fmt.Fprintln(out)
			printRecord(out, record)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory the file was selected from; sets its relative path")
	return cmd
}
