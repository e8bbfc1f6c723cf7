// Package config provides typed configuration for the substrate with
// validation and a thread-safe wrapper for live reconfiguration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/delmic/odemis-sub003/errors"
)

// Config represents the complete substrate configuration
type Config struct {
	Platform PlatformConfig `json:"platform"`
	NATS     NATSConfig     `json:"nats"`
	Executor ExecutorConfig `json:"executor"`
	Stream   StreamConfig   `json:"stream"`
}

// PlatformConfig identifies the host process
type PlatformConfig struct {
	Name     string `json:"name"`
	LogLevel string `json:"log_level,omitempty"` // debug, info, warn, error
}

// NATSConfig holds connection settings for the remote transport
type NATSConfig struct {
	URLs           []string      `json:"urls,omitempty"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`
	MaxReconnects  int           `json:"max_reconnects,omitempty"`
	ReconnectWait  time.Duration `json:"reconnect_wait,omitempty"`
	Username       string        `json:"username,omitempty"`
	Password       string        `json:"password,omitempty"`
	Token          string        `json:"token,omitempty"`
}

// ExecutorConfig sizes a task executor's worker pool
type ExecutorConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// StreamConfig holds data-stream delivery settings.
//
// DiscardBound is the maximum number of undelivered payloads a slow remote
// subscriber may lag by before older ones are dropped in favor of the
// freshest. A bound of zero means every payload must be delivered, accepting
// unbounded memory growth if a consumer cannot keep up; choosing zero is an
// explicit trade-off, never a default the substrate picks silently.
type StreamConfig struct {
	DiscardBound int `json:"discard_bound"`
}

// Default returns a configuration suitable for a single-process deployment.
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			Name:     "microscope",
			LogLevel: "info",
		},
		NATS: NATSConfig{
			URLs:           []string{"nats://127.0.0.1:4222"},
			ConnectTimeout: 5 * time.Second,
			MaxReconnects:  -1, // retry forever
			ReconnectWait:  2 * time.Second,
		},
		Executor: ExecutorConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Stream: StreamConfig{
			DiscardBound: 8,
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Platform.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "platform.name check")
	}
	switch c.Platform.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidConfig, c.Platform.LogLevel),
			"Config", "Validate", "platform.log_level check")
	}
	if c.Executor.Workers < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: executor.workers must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "executor.workers check")
	}
	if c.Executor.QueueSize < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: executor.queue_size must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "executor.queue_size check")
	}
	if c.Stream.DiscardBound < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stream.discard_bound must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "stream.discard_bound check")
	}
	for _, u := range c.NATS.URLs {
		if u == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: empty NATS URL", errors.ErrInvalidConfig),
				"Config", "Validate", "nats.urls check")
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	clone.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	return &clone
}

// Load reads and validates a configuration file in JSON format
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read file")
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"SafeConfig", "Update", "nil config check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
