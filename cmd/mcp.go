package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docpipe/internal/gateway"
	mcpserver "github.com/ziadkadry99/docpipe/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing document search, similarity and job lookup tools backed by the running services.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg).With("service", "mcp")

		opts := clientOptions(cfg)
		searcher := gateway.NewSearchClient(cfg.Gateway.SearchURL, opts, logger)
		jobs := gateway.NewProcessorClient(cfg.Gateway.ProcessorURL, opts, logger)

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "docpipe MCP server started on stdio (search=%s, processor=%s)\n",
			cfg.Gateway.SearchURL, cfg.Gateway.ProcessorURL)

		return mcpserver.NewServer(searcher, jobs).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
