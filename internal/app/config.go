package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/pyprovision/internal/toolchain"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPaths are .hcl files or directories with python declarations.
	ConfigPaths []string
	// Toolchain is a distribution requested on the command line. It is
	// ignored unless Version is set.
	Toolchain toolchain.Config

	LogFormat string
	LogLevel  string
	// Workers bounds concurrently running actions; 0 is unbounded.
	Workers int
	// Timeout bounds each download.
	Timeout time.Duration
	// EventsURL is a socket.io endpoint receiving build events.
	EventsURL string
	// List prints installed distributions instead of provisioning.
	List bool
}

// HasToolchain reports whether a distribution was requested through flags.
func (c *Config) HasToolchain() bool {
	return c.Toolchain.Version != ""
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 && !cfg.HasToolchain() && !cfg.List {
		return nil, errors.New("nothing to do: pass a config path or --python-version")
	}
	if cfg.HasToolchain() {
		if err := cfg.Toolchain.Validate(); err != nil {
			return nil, err
		}
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.Workers < 0 {
		return nil, errors.New("workers must not be negative")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}
	return &cfg, nil
}
