package config

import "time"

// Config is the top-level docpipe configuration, corresponding to docpipe.yml.
// Every service reads the same file and uses its own section.
type Config struct {
	Log       LogConfig       `yaml:"log" koanf:"log"`
	Gateway   GatewayConfig   `yaml:"gateway" koanf:"gateway"`
	Processor ProcessorConfig `yaml:"processor" koanf:"processor"`
	JobStore  JobStoreConfig  `yaml:"job_store" koanf:"job_store"`
	Search    SearchConfig    `yaml:"search" koanf:"search"`
	Startup   StartupConfig   `yaml:"startup" koanf:"startup"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// GatewayConfig holds the public API settings.
type GatewayConfig struct {
	Port              int           `yaml:"port" koanf:"port"`
	ProcessorURL      string        `yaml:"processor_url" koanf:"processor_url"`
	SearchURL         string        `yaml:"search_url" koanf:"search_url"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" koanf:"max_upload_bytes"`
	AllowedExtensions []string      `yaml:"allowed_extensions" koanf:"allowed_extensions"`
	RequestTimeout    time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	RateLimit         float64       `yaml:"rate_limit" koanf:"rate_limit"`
	Retry             RetryConfig   `yaml:"retry" koanf:"retry"`
	WatchInterval     time.Duration `yaml:"watch_interval" koanf:"watch_interval"`
	CORSAllowAll      bool          `yaml:"cors_allow_all" koanf:"cors_allow_all"`
}

// RetryConfig bounds retries of downstream calls.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" koanf:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval" koanf:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" koanf:"max_interval"`
}

// ProcessorConfig holds the extraction and embedding settings.
type ProcessorConfig struct {
	Port               int        `yaml:"port" koanf:"port"`
	MaxFeatures        int        `yaml:"max_features" koanf:"max_features"`
	PreviewChars       int        `yaml:"preview_chars" koanf:"preview_chars"`
	StoredPreviewChars int        `yaml:"stored_preview_chars" koanf:"stored_preview_chars"`
	Encodings          []string   `yaml:"encodings" koanf:"encodings"`
	BatchSize          int        `yaml:"batch_size" koanf:"batch_size"`
	Workers            int        `yaml:"workers" koanf:"workers"`
	MaxInflightBatches int        `yaml:"max_inflight_batches" koanf:"max_inflight_batches"`
	MaxBatchDocuments  int        `yaml:"max_batch_documents" koanf:"max_batch_documents"`
	MaxUploadBytes     int64      `yaml:"max_upload_bytes" koanf:"max_upload_bytes"`
	TSNE               TSNEConfig `yaml:"tsne" koanf:"tsne"`
}

// TSNEConfig tunes the batch projection.
type TSNEConfig struct {
	Perplexity   float64 `yaml:"perplexity" koanf:"perplexity"`
	Iterations   int     `yaml:"iterations" koanf:"iterations"`
	LearningRate float64 `yaml:"learning_rate" koanf:"learning_rate"`
	Seed         uint64  `yaml:"seed" koanf:"seed"`
}

// JobStoreConfig selects the result cache.
type JobStoreConfig struct {
	Backend  string        `yaml:"backend" koanf:"backend"`
	RedisURL string        `yaml:"redis_url" koanf:"redis_url"`
	TTL      time.Duration `yaml:"ttl" koanf:"ttl"`
}

// SearchConfig holds the search service settings.
type SearchConfig struct {
	Port         int    `yaml:"port" koanf:"port"`
	DataDir      string `yaml:"data_dir" koanf:"data_dir"`
	IndexWorkers int    `yaml:"index_workers" koanf:"index_workers"`
}

// StartupConfig controls how long a service waits for its dependencies.
type StartupConfig struct {
	Retries         int           `yaml:"retries" koanf:"retries"`
	Delay           time.Duration `yaml:"delay" koanf:"delay"`
	MonitorInterval time.Duration `yaml:"monitor_interval" koanf:"monitor_interval"`
}
