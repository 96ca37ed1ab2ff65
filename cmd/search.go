package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docpipe/internal/db"
	"github.com/ziadkadry99/docpipe/internal/retry"
	"github.com/ziadkadry99/docpipe/internal/search"
	"github.com/ziadkadry99/docpipe/internal/server"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Start the search service",
	Long:  `Starts the search service, which indexes processed documents in SQLite FTS5 and answers full-text and similarity queries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg).With("service", "search")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := os.MkdirAll(cfg.Search.DataDir, 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		dbPath := filepath.Join(cfg.Search.DataDir, "search.db")
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		if err := retry.WaitFor(ctx, logger, "database", cfg.Startup.Retries, cfg.Startup.Delay, database.PingContext); err != nil {
			return err
		}

		index, err := search.NewIndex(ctx, database, logger)
		if err != nil {
			return fmt.Errorf("loading index: %w", err)
		}
		batcher := search.NewBatcher(cfg.Search.IndexWorkers, index, func(done, total int, jobID string) {
			logger.Debug("indexed document", "job_id", jobID, "done", done, "total", total)
		})

		srv := server.New(server.Config{
			Name:           "search",
			Port:           cfg.Search.Port,
			RequestTimeout: cfg.Gateway.RequestTimeout,
		}, logger)
		search.RegisterRoutes(srv.Router(), index, batcher)

		st, err := index.Status(ctx)
		if err != nil {
			return fmt.Errorf("reading index status: %w", err)
		}
		logger.Info("search starting",
			"version", Version,
			"port", cfg.Search.Port,
			"database", dbPath,
			"documents", st.Documents,
			"embeddings", st.Embeddings,
		)
		return runServer(ctx, srv, logger)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
