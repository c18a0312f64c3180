package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pyprovision/internal/fault"
	"github.com/vk/pyprovision/internal/toolchain"
)

func TestNewConfig(t *testing.T) {
	valid := Config{ConfigPaths: []string{"python.hcl"}, LogFormat: "text", LogLevel: "info"}

	t.Run("valid", func(t *testing.T) {
		cfg, err := NewConfig(valid)
		require.NoError(t, err)
		assert.Equal(t, valid.ConfigPaths, cfg.ConfigPaths)
	})

	t.Run("list needs no declarations", func(t *testing.T) {
		_, err := NewConfig(Config{List: true, LogFormat: "json", LogLevel: "debug"})
		assert.NoError(t, err)
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"nothing to do", func(c *Config) { c.ConfigPaths = nil }, "nothing to do"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log-format"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log-level"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewConfig(cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	t.Run("flag toolchain is validated", func(t *testing.T) {
		cfg := valid
		cfg.Toolchain = toolchain.Config{Version: "3.10.16", BuildTime: "20241219", Triple: "sparc-sun-solaris"}
		_, err := NewConfig(cfg)
		assert.ErrorIs(t, err, fault.ErrConfiguration)
	})
}
