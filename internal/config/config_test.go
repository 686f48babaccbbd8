package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/secmon/internal/errs"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 10*time.Minute, cfg.Scorer.HalfLife)
	assert.Equal(t, float64(15), cfg.Scorer.Weights["injection_attempt"])
	assert.Equal(t, float64(2), cfg.Scorer.Weights["login_failed"])

	assert.Equal(t, 4096, cfg.Window.Capacity)
	assert.Equal(t, EvalModeTick, cfg.Rules.EvalMode)
	assert.Equal(t, 30*time.Second, cfg.Rules.EvalInterval)

	assert.Equal(t, DedupBackendMemory, cfg.Dedup.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.Window)

	assert.Equal(t, 256, cfg.Router.QueueSize)
	assert.Equal(t, 3, cfg.Router.RetryCount)
	assert.Equal(t, 5*time.Second, cfg.Router.AttemptTimeout)
	assert.Equal(t, []string{"slack", "email", "pagerduty", "webhook"}, cfg.Router.Routes["critical"])
	assert.Equal(t, []string{"webhook"}, cfg.Router.Routes["low"])

	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Bus.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Monitor.ClockSkew)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9099

scorer:
  half_life: 5m
  weights:
    login_failed: 4
    injection_attempt: 20

rules:
  eval_mode: per_event

dedup:
  window: 2m

router:
  retry_count: 5
  attempt_timeout: 10s
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9099, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Scorer.HalfLife)
	assert.Equal(t, float64(4), cfg.Scorer.Weights["login_failed"])
	assert.Equal(t, float64(20), cfg.Scorer.Weights["injection_attempt"])
	assert.Equal(t, EvalModePerEvent, cfg.Rules.EvalMode)
	assert.Equal(t, 2*time.Minute, cfg.Dedup.Window)
	assert.Equal(t, 5, cfg.Router.RetryCount)
	assert.Equal(t, 10*time.Second, cfg.Router.AttemptTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Scorer.Weights["login_failed"] = -1 }},
		{"zero half life", func(c *Config) { c.Scorer.HalfLife = 0 }},
		{"zero window capacity", func(c *Config) { c.Window.Capacity = 0 }},
		{"bad eval mode", func(c *Config) { c.Rules.EvalMode = "eager" }},
		{"bad dedup backend", func(c *Config) { c.Dedup.Backend = "memcached" }},
		{"zero dedup window", func(c *Config) { c.Dedup.Window = 0 }},
		{"zero retry count", func(c *Config) { c.Router.RetryCount = 0 }},
		{"zero queue size", func(c *Config) { c.Router.QueueSize = 0 }},
		{"unknown route severity", func(c *Config) { c.Router.Routes["catastrophic"] = []string{"webhook"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)

			var cfgErr *errs.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T", err)
		})
	}
}
