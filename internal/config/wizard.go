package config

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard asks for the settings that differ between deployments, saves
// the result to path and returns it. Everything else keeps its default.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to docpipe! Let's configure your deployment.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Job store backend.
	backendPrompt := promptui.Select{
		Label: "Select job store backend",
		Items: []string{
			"redis  - shared cache, results survive processor restarts",
			"memory - in-process, for local development",
		},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("backend selection: %w", err)
	}
	cfg.JobStore.Backend = []string{"redis", "memory"}[backendIdx]

	// 2. Redis URL.
	if cfg.JobStore.Backend == "redis" {
		redisPrompt := promptui.Prompt{
			Label:    "Redis URL",
			Default:  cfg.JobStore.RedisURL,
			Validate: validateURL,
		}
		if cfg.JobStore.RedisURL, err = redisPrompt.Run(); err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
	}

	// 3. Downstream services.
	processorPrompt := promptui.Prompt{
		Label:    "Processor service URL",
		Default:  cfg.Gateway.ProcessorURL,
		Validate: validateURL,
	}
	if cfg.Gateway.ProcessorURL, err = processorPrompt.Run(); err != nil {
		return nil, fmt.Errorf("processor url: %w", err)
	}

	searchPrompt := promptui.Prompt{
		Label:    "Search service URL",
		Default:  cfg.Gateway.SearchURL,
		Validate: validateURL,
	}
	if cfg.Gateway.SearchURL, err = searchPrompt.Run(); err != nil {
		return nil, fmt.Errorf("search url: %w", err)
	}

	// 4. Gateway port.
	portPrompt := promptui.Prompt{
		Label:    "Gateway port",
		Default:  strconv.Itoa(cfg.Gateway.Port),
		Validate: validatePort,
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("gateway port: %w", err)
	}
	cfg.Gateway.Port, _ = strconv.Atoi(portStr)

	// 5. Log format.
	formatPrompt := promptui.Select{
		Label: "Log format",
		Items: []string{"text", "json"},
	}
	if _, cfg.Log.Format, err = formatPrompt.Run(); err != nil {
		return nil, fmt.Errorf("log format: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("expected scheme://host[:port]")
	}
	return nil
}

func validatePort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if p <= 0 || p > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
