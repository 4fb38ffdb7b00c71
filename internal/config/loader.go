// Package config loads the YAML configuration of the crashdispatch tooling.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultWorkers        = 8
	DefaultQueueCapacity  = 1000
	DefaultMetricsAddr    = ":9464"
)

// Load reads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates configuration from YAML bytes.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if len(cfg.Client.Kinds) == 0 {
		cfg.Client.Kinds = []string{ClientStderr}
	}
	if cfg.Client.HTTP.ConnectTimeout == 0 {
		cfg.Client.HTTP.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Executor.Mode == "" {
		cfg.Executor.Mode = ExecutorSync
	}
	if cfg.Executor.Workers == 0 {
		cfg.Executor.Workers = DefaultWorkers
	}
	if cfg.Executor.QueueCapacity == nil {
		capacity := DefaultQueueCapacity
		cfg.Executor.QueueCapacity = &capacity
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate checks values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	var errs []error

	for _, kind := range c.Client.Kinds {
		switch kind {
		case ClientHTTP:
			if c.Client.HTTP.Endpoint == "" {
				errs = append(errs, errors.New("client.http.endpoint is required"))
			}
			if c.Client.HTTP.APIKey == "" {
				errs = append(errs, errors.New("client.http.api_key is required"))
			}
		case ClientRedis:
			if c.Client.Redis.Addr == "" {
				errs = append(errs, errors.New("client.redis.addr is required"))
			}
		case ClientStderr, ClientNoop:
		default:
			errs = append(errs, fmt.Errorf("unknown client kind %q", kind))
		}
	}

	modes := []string{ExecutorSync, ExecutorGoroutine, ExecutorPool}
	if !slices.Contains(modes, c.Executor.Mode) {
		errs = append(errs, fmt.Errorf("unknown executor mode %q", c.Executor.Mode))
	}
	if c.Executor.Workers < 0 {
		errs = append(errs, errors.New("executor.workers must not be negative"))
	}

	if c.Client.HTTP.ConnectTimeout < 0 {
		errs = append(errs, errors.New("client.http.connect_timeout must not be negative"))
	}

	return errors.Join(errs...)
}
