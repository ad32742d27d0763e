package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration directory and a default config.yaml",
		Long: "Create the configuration directory and write a default config.yaml.\n" +
			"An existing config.yaml is left untouched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, a)
		},
	}
}

// runInit reports where the configuration lives. setup has already created
// the directory and default file; this tells the user which happened.
func runInit(cmd *cobra.Command, a *app) error {
	path := filepath.Join(a.configDir, configFileExt)
	out := cmd.OutOrStdout()
	if a.configCreated {
		fmt.Fprintf(out, "Wrote default configuration to %s\n", path)
	} else {
		fmt.Fprintf(out, "Configuration at %s\n", path)
	}
	if a.cfg.Analysis.APIKey == "" {
		fmt.Fprintln(out, "No analysis API key configured; set GEMINI_API_KEY or analysis.api_key to enable analyze.")
	}
	return nil
}
