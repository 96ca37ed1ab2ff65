package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docpipe/internal/gateway"
	"github.com/ziadkadry99/docpipe/internal/server"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the public API gateway",
	Long: `Starts the gateway: it validates uploads, relays them to the processor,
hands the results to the search service and proxies search queries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg).With("service", "gateway")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := clientOptions(cfg)
		g := gateway.New(
			gateway.NewProcessorClient(cfg.Gateway.ProcessorURL, opts, logger),
			gateway.NewSearchClient(cfg.Gateway.SearchURL, opts, logger),
			gateway.Options{
				MaxUploadBytes:    cfg.Gateway.MaxUploadBytes,
				AllowedExtensions: cfg.Gateway.AllowedExtensions,
				WatchInterval:     cfg.Gateway.WatchInterval,
			},
			logger,
		)

		// No request deadline: websocket watches stay open until the job ends.
		srv := server.New(server.Config{
			Name:     "gateway",
			Port:     cfg.Gateway.Port,
			AllowAll: cfg.Gateway.CORSAllowAll,
		}, logger)
		g.RegisterRoutes(srv.Router())

		logger.Info("gateway starting",
			"version", Version,
			"port", cfg.Gateway.Port,
			"processor_url", cfg.Gateway.ProcessorURL,
			"search_url", cfg.Gateway.SearchURL,
		)
		return runServer(ctx, srv, logger)
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
