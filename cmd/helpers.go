package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ziadkadry99/docpipe/internal/config"
	"github.com/ziadkadry99/docpipe/internal/gateway"
	"github.com/ziadkadry99/docpipe/internal/logging"
	"github.com/ziadkadry99/docpipe/internal/retry"
	"github.com/ziadkadry99/docpipe/internal/server"
)

const shutdownTimeout = 30 * time.Second

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `docpipe init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout stays free for command output.
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Log.Format, os.Stderr)
}

func clientOptions(cfg *config.Config) gateway.ClientOptions {
	return gateway.ClientOptions{
		Timeout:   cfg.Gateway.RequestTimeout,
		RateLimit: cfg.Gateway.RateLimit,
		Retry: retry.Policy{
			MaxAttempts:     cfg.Gateway.Retry.MaxAttempts,
			InitialInterval: cfg.Gateway.Retry.InitialInterval,
			MaxInterval:     cfg.Gateway.Retry.MaxInterval,
		},
	}
}

// runServer serves until ctx is done, then shuts the server down.
func runServer(ctx context.Context, srv *server.Server, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errc
}
