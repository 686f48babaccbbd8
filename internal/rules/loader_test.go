package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/models"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_BuildsAllRuleTypes(t *testing.T) {
	path := writeRuleFile(t, `
rules:
  - name: brute-force
    type: rate_threshold
    event_type: login_failed
    threshold: 10
    window: 5m
    severity: high
    title: Brute force attack detected
    description: repeated failed logins
    action: block source
    block_source: true
  - name: sqli
    type: pattern
    event_type: injection_attempt
    pattern: '(?i)union\s+select'
    cooldown: 10m
    severity: critical
    title: Injection attempt detected
  - name: spike
    type: anomaly
    short_window: 1m
    multiplier: 3
    min_events: 20
    severity: medium
    title: Event volume spike
`)

	rules, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	rate, ok := rules[0].(*RateThresholdRule)
	require.True(t, ok)
	assert.Equal(t, "brute-force", rate.Name())
	assert.True(t, rate.BlocksSource())
	// Cooldown defaults to the window length.
	assert.Equal(t, 5*time.Minute, rate.cooldown.period)

	pattern, ok := rules[1].(*PatternRule)
	require.True(t, ok)
	assert.Equal(t, "sqli", pattern.Name())
	assert.Equal(t, 10*time.Minute, pattern.cooldown.period)

	_, ok = rules[2].(*AnomalyRule)
	require.True(t, ok)
}

func TestLoadFile_LoadedRulesEvaluate(t *testing.T) {
	path := writeRuleFile(t, `
rules:
  - name: brute-force
    type: rate_threshold
    event_type: login_failed
    threshold: 10
    window: 5m
    severity: high
    title: Brute force attack detected
`)
	rules, err := LoadFile(path)
	require.NoError(t, err)

	events := loginFailures("10.0.0.1", 11, testBase, time.Second)
	alerts, err := rules[0].Evaluate(events, testBase.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
}

func TestLoadFile_Errors(t *testing.T) {
	var cfgErr *errs.ConfigurationError

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile("/nonexistent/rules.yaml")
		require.Error(t, err)
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("malformed regex", func(t *testing.T) {
		path := writeRuleFile(t, `
rules:
  - name: bad
    type: pattern
    event_type: injection_attempt
    pattern: '(unclosed'
    severity: high
    title: x
`)
		_, err := LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("unknown type", func(t *testing.T) {
		path := writeRuleFile(t, `
rules:
  - name: weird
    type: ml_model
    severity: low
    title: x
`)
		_, err := LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeRuleFile(t, `
rules:
  - name: r
    type: rate_threshold
    event_type: login_failed
    threshold: 5
    window: five-minutes
    severity: high
    title: x
`)
		_, err := LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("empty rule set", func(t *testing.T) {
		path := writeRuleFile(t, "rules: []\n")
		_, err := LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.As(err, &cfgErr))
	})
}

func TestDefaults(t *testing.T) {
	rules := Defaults()
	require.Len(t, rules, 4)

	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.Name())
	}
	assert.Contains(t, names, "brute-force-login")
	assert.Contains(t, names, "rate-limit-abuse")
	assert.Contains(t, names, "injection-pattern")
	assert.Contains(t, names, "event-volume-spike")
}
