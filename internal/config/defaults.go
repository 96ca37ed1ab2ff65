package config

import "time"

// DefaultConfigFile is where init writes and services look by default.
const DefaultConfigFile = "docpipe.yml"

// DefaultAllowedExtensions are the upload types the gateway accepts.
// Only txt is extractable; the others are rejected by the processor.
var DefaultAllowedExtensions = []string{"txt", "pdf", "doc", "docx"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Gateway: GatewayConfig{
			Port:              8000,
			ProcessorURL:      "http://localhost:5001",
			SearchURL:         "http://localhost:5002",
			MaxUploadBytes:    16 << 20,
			AllowedExtensions: DefaultAllowedExtensions,
			RequestTimeout:    30 * time.Second,
			RateLimit:         50,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 200 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
			WatchInterval: time.Second,
		},
		Processor: ProcessorConfig{
			Port:               5001,
			MaxFeatures:        1000,
			PreviewChars:       200,
			StoredPreviewChars: 1000,
			Encodings:          []string{"utf-8", "latin-1", "cp1252"},
			BatchSize:          100,
			Workers:            0,
			MaxInflightBatches: 4,
			MaxBatchDocuments:  5000,
			MaxUploadBytes:     16 << 20,
			TSNE: TSNEConfig{
				Perplexity:   30,
				Iterations:   500,
				LearningRate: 200,
				Seed:         42,
			},
		},
		JobStore: JobStoreConfig{
			Backend:  "redis",
			RedisURL: "redis://localhost:6379/0",
			TTL:      time.Hour,
		},
		Search: SearchConfig{
			Port:         5002,
			DataDir:      "data",
			IndexWorkers: 8,
		},
		Startup: StartupConfig{
			Retries:         30,
			Delay:           2 * time.Second,
			MonitorInterval: 15 * time.Second,
		},
	}
}
