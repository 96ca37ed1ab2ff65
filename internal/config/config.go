package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const envPrefix = "DOCPIPE_"

// legacyEnv maps the variable names of the docker-compose deployment
// to config keys. DOCPIPE_* variables take precedence over these.
var legacyEnv = map[string]string{
	"PROCESSOR_URL": "gateway.processor_url",
	"SEARCH_URL":    "gateway.search_url",
	"REDIS_URL":     "job_store.redis_url",
	"PORT":          "gateway.port",
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"gateway.allowed_extensions": true,
	"processor.encodings":        true,
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (DOCPIPE_GATEWAY__PORT -> gateway.port).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("applying %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Decoding merges lists element-wise into the defaults; replace them.
	if k.Exists("gateway.allowed_extensions") {
		cfg.Gateway.AllowedExtensions = k.Strings("gateway.allowed_extensions")
	}
	if k.Exists("processor.encodings") {
		cfg.Processor.Encodings = k.Strings("processor.encodings")
	}

	return cfg, nil
}

// envKey maps DOCPIPE_JOB_STORE__REDIS_URL to job_store.redis_url.
func envKey(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		return key, splitAndTrim(value)
	}
	return key, value
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log.level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}

	for name, port := range map[string]int{
		"gateway.port":   c.Gateway.Port,
		"processor.port": c.Processor.Port,
		"search.port":    c.Search.Port,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
	}

	if c.Gateway.ProcessorURL == "" {
		return fmt.Errorf("gateway.processor_url is required")
	}
	if c.Gateway.SearchURL == "" {
		return fmt.Errorf("gateway.search_url is required")
	}
	if c.Gateway.MaxUploadBytes <= 0 {
		return fmt.Errorf("gateway.max_upload_bytes must be positive")
	}
	if len(c.Gateway.AllowedExtensions) == 0 {
		return fmt.Errorf("gateway.allowed_extensions must not be empty")
	}
	if c.Gateway.RequestTimeout <= 0 {
		return fmt.Errorf("gateway.request_timeout must be positive")
	}
	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("gateway.rate_limit must be non-negative")
	}
	if c.Gateway.Retry.MaxAttempts < 1 {
		return fmt.Errorf("gateway.retry.max_attempts must be at least 1")
	}

	if c.Processor.MaxFeatures < 1 {
		return fmt.Errorf("processor.max_features must be at least 1")
	}
	if c.Processor.BatchSize < 1 {
		return fmt.Errorf("processor.batch_size must be at least 1")
	}
	if c.Processor.Workers < 0 {
		return fmt.Errorf("processor.workers must be non-negative")
	}
	if c.Processor.MaxInflightBatches < 1 {
		return fmt.Errorf("processor.max_inflight_batches must be at least 1")
	}
	if c.Processor.MaxBatchDocuments < 1 {
		return fmt.Errorf("processor.max_batch_documents must be at least 1")
	}
	if c.Processor.TSNE.Perplexity <= 0 || c.Processor.TSNE.Iterations < 1 || c.Processor.TSNE.LearningRate <= 0 {
		return fmt.Errorf("processor.tsne: perplexity, iterations and learning_rate must be positive")
	}

	if c.JobStore.Backend != "redis" && c.JobStore.Backend != "memory" {
		return fmt.Errorf("invalid job_store.backend %q: must be redis or memory", c.JobStore.Backend)
	}
	if c.JobStore.Backend == "redis" && c.JobStore.RedisURL == "" {
		return fmt.Errorf("job_store.redis_url is required for the redis backend")
	}
	if c.JobStore.TTL <= 0 {
		return fmt.Errorf("job_store.ttl must be positive")
	}

	if c.Search.DataDir == "" {
		return fmt.Errorf("search.data_dir is required")
	}
	if c.Search.IndexWorkers < 1 {
		return fmt.Errorf("search.index_workers must be at least 1")
	}

	if c.Startup.Retries < 1 {
		return fmt.Errorf("startup.retries must be at least 1")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and drops empty items.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
