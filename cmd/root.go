package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docpipe/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Document processing, embedding and search services",
	Long: `docpipe extracts text from uploaded documents, turns it into TF-IDF
feature vectors, projects those onto two dimensions and indexes the result
for full-text and similarity search. The gateway, processor and search
services all ship in this one binary.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
