package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docpipe/internal/extract"
	"github.com/ziadkadry99/docpipe/internal/jobstore"
	"github.com/ziadkadry99/docpipe/internal/pipeline"
	"github.com/ziadkadry99/docpipe/internal/processor"
	"github.com/ziadkadry99/docpipe/internal/reduce"
	"github.com/ziadkadry99/docpipe/internal/retry"
	"github.com/ziadkadry99/docpipe/internal/server"
)

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Start the document processor service",
	Long: `Starts the processor: it extracts text from uploads, computes TF-IDF
features and 2-D embeddings, and keeps results in the job store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg).With("service", "processor")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := jobstore.OpenBackend(cfg.JobStore.Backend, cfg.JobStore.RedisURL)
		if err != nil {
			return fmt.Errorf("opening job store: %w", err)
		}
		store := jobstore.New(backend, cfg.JobStore.TTL)
		defer store.Close()

		if err := retry.WaitFor(ctx, logger, "job_store", cfg.Startup.Retries, cfg.Startup.Delay, store.Ping); err != nil {
			return err
		}
		monitor := retry.NewMonitor("job_store", cfg.Startup.MonitorInterval, store.Ping, logger)
		go monitor.Run(ctx)

		extractor, err := extract.New(cfg.Processor.Encodings)
		if err != nil {
			return fmt.Errorf("configuring extractor: %w", err)
		}
		orchestrator := pipeline.New(extractor, store, pipeline.Options{
			MaxFeatures:        cfg.Processor.MaxFeatures,
			PreviewChars:       cfg.Processor.PreviewChars,
			StoredPreviewChars: cfg.Processor.StoredPreviewChars,
			BatchSize:          cfg.Processor.BatchSize,
			Workers:            cfg.Processor.Workers,
			MaxInflightBatches: int64(cfg.Processor.MaxInflightBatches),
			MaxBatchDocuments:  cfg.Processor.MaxBatchDocuments,
			TSNE: reduce.TSNEOptions{
				Perplexity:   cfg.Processor.TSNE.Perplexity,
				Iterations:   cfg.Processor.TSNE.Iterations,
				LearningRate: cfg.Processor.TSNE.LearningRate,
				Seed:         cfg.Processor.TSNE.Seed,
			},
		}, logger)

		srv := server.New(server.Config{
			Name:           "processor",
			Port:           cfg.Processor.Port,
			RequestTimeout: cfg.Gateway.RequestTimeout,
		}, logger)
		processor.RegisterRoutes(srv.Router(), orchestrator, monitor, cfg.Processor.MaxUploadBytes)

		logger.Info("processor starting",
			"version", Version,
			"port", cfg.Processor.Port,
			"job_store", cfg.JobStore.Backend,
			"max_features", cfg.Processor.MaxFeatures,
			"batch_size", cfg.Processor.BatchSize,
		)
		err = runServer(ctx, srv, logger)

		logger.Info("waiting for batch jobs to finish")
		orchestrator.Wait()
		return err
	},
}

func init() {
	rootCmd.AddCommand(processorCmd)
}
