package config

import "time"

// Client kinds accepted in ClientConfig.Kinds.
const (
	ClientHTTP   = "http"
	ClientRedis  = "redis"
	ClientStderr = "stderr"
	ClientNoop   = "noop"
)

// Executor modes accepted in ExecutorConfig.Mode.
const (
	ExecutorSync      = "sync"
	ExecutorGoroutine = "goroutine"
	ExecutorPool      = "pool"
)

// AppConfig is the top-level configuration.
type AppConfig struct {
	Version     string         `yaml:"version"`
	Tags        []string       `yaml:"tags"`
	Client      ClientConfig   `yaml:"client"`
	Executor    ExecutorConfig `yaml:"executor"`
	Scrubbing   bool           `yaml:"scrubbing"`
	Environment bool           `yaml:"environment"`
	Logging     LoggingConfig  `yaml:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

// ClientConfig selects and configures report clients. Several kinds fan out
// to every configured client.
type ClientConfig struct {
	Kinds      []string     `yaml:"kinds"`
	Instrument bool         `yaml:"instrument"`
	HTTP       HTTPConfig   `yaml:"http"`
	Redis      RedisConfig  `yaml:"redis"`
	Stderr     StderrConfig `yaml:"stderr"`
}

// HTTPConfig holds settings for the HTTP report client.
type HTTPConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Proxy          *ProxyConfig  `yaml:"proxy"`
}

// ProxyConfig is an outgoing HTTP proxy.
type ProxyConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RedisConfig holds settings for the Redis queue client.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxLen   int64  `yaml:"max_len"`
}

// StderrConfig holds settings for the stderr client.
type StderrConfig struct {
	Verbose bool `yaml:"verbose"`
}

// ExecutorConfig selects how sends run.
type ExecutorConfig struct {
	Mode          string `yaml:"mode"` // sync, goroutine, pool
	Workers       int    `yaml:"workers"`
	QueueCapacity *int   `yaml:"queue_capacity"` // nil = default, negative = unbounded
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}
