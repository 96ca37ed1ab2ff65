package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docpipe/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a docpipe configuration with an interactive wizard",
	Long:  `Runs an interactive wizard that asks for the job store, service URLs and logging settings, then writes the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard(cfgFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (job store: %s)\n", cfgFile, cfg.JobStore.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
