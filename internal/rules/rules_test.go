package rules

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/models"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func loginFailures(source string, n int, start time.Time, spacing time.Duration) []models.SecurityEvent {
	events := make([]models.SecurityEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, models.SecurityEvent{
			ID:        fmt.Sprintf("%s-%d", source, i),
			EventType: models.EventLoginFailed,
			Timestamp: start.Add(time.Duration(i) * spacing),
			SourceID:  source,
			Endpoint:  "/api/login",
		})
	}
	return events
}

func bruteForceRule(t *testing.T) *RateThresholdRule {
	t.Helper()
	rule, err := NewRateThreshold(RateThresholdSpec{
		Name:        "brute-force-login",
		EventType:   models.EventLoginFailed,
		Threshold:   10,
		Window:      5 * time.Minute,
		Severity:    models.SeverityHigh,
		Title:       "Brute force attack detected",
		Description: "repeated failed logins",
		Action:      "block source",
		BlockSource: true,
	})
	require.NoError(t, err)
	return rule
}

func TestRateThreshold_FiresOncePastThreshold(t *testing.T) {
	rule := bruteForceRule(t)

	// 11 failures for one source within 4 minutes: exactly one HIGH alert.
	events := loginFailures("10.0.0.1", 11, testBase, 4*time.Minute/10)
	now := testBase.Add(4 * time.Minute)

	alerts, err := rule.Evaluate(events, now)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Brute force attack detected", alerts[0].Title)
	assert.Equal(t, "10.0.0.1", alerts[0].SourceID)
	assert.Equal(t, models.EventLoginFailed, alerts[0].EventType)

	// A 12th failure inside the cooldown produces nothing.
	events = append(events, models.SecurityEvent{
		EventType: models.EventLoginFailed,
		Timestamp: now.Add(time.Second),
		SourceID:  "10.0.0.1",
	})
	alerts, err = rule.Evaluate(events, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRateThreshold_AtThresholdDoesNotFire(t *testing.T) {
	rule := bruteForceRule(t)

	events := loginFailures("10.0.0.1", 10, testBase, time.Second)
	alerts, err := rule.Evaluate(events, testBase.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRateThreshold_EventsOutsideWindowIgnored(t *testing.T) {
	rule := bruteForceRule(t)

	// 11 failures spread over 11 minutes: never more than the threshold
	// inside any 5-minute window at evaluation time.
	events := loginFailures("10.0.0.1", 11, testBase, time.Minute)
	alerts, err := rule.Evaluate(events, testBase.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRateThreshold_FiresPerSource(t *testing.T) {
	rule := bruteForceRule(t)

	events := append(
		loginFailures("10.0.0.1", 11, testBase, time.Second),
		loginFailures("10.0.0.2", 11, testBase, time.Second)...,
	)
	alerts, err := rule.Evaluate(events, testBase.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestRateThreshold_CooldownExpires(t *testing.T) {
	rule := bruteForceRule(t)

	events := loginFailures("10.0.0.1", 11, testBase, time.Second)
	alerts, err := rule.Evaluate(events, testBase.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	// After the cooldown (= window) elapses, a fresh burst fires again.
	later := testBase.Add(7 * time.Minute)
	events = loginFailures("10.0.0.1", 11, later, time.Second)
	alerts, err = rule.Evaluate(events, later.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestNewRateThreshold_InvalidSpec(t *testing.T) {
	_, err := NewRateThreshold(RateThresholdSpec{Name: "r", Threshold: 0, Window: time.Minute, Severity: models.SeverityHigh})
	var cfgErr *errs.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = NewRateThreshold(RateThresholdSpec{Name: "r", Threshold: 1, Window: time.Minute, Severity: "extreme"})
	assert.True(t, errors.As(err, &cfgErr))
}

func TestPattern_MatchesEndpointAndAttributes(t *testing.T) {
	rule, err := NewPattern(PatternSpec{
		Name:      "injection-pattern",
		EventType: models.EventInjectionAttempt,
		Pattern:   `(?i)(union\s+select|<script)`,
		Severity:  models.SeverityCritical,
		Title:     "Injection attempt detected",
	})
	require.NoError(t, err)

	events := []models.SecurityEvent{
		{
			EventType:  models.EventInjectionAttempt,
			Timestamp:  testBase,
			SourceID:   "10.0.0.1",
			Endpoint:   "/api/products",
			Attributes: map[string]string{"query": "1 UNION SELECT password FROM users"},
		},
		{
			// Matching payload but wrong event type: ignored.
			EventType:  models.EventSuspiciousActivity,
			Timestamp:  testBase,
			SourceID:   "10.0.0.2",
			Attributes: map[string]string{"query": "<script>alert(1)</script>"},
		},
	}

	alerts, err := rule.Evaluate(events, testBase.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "10.0.0.1", alerts[0].SourceID)
}

func TestPattern_CooldownPerSource(t *testing.T) {
	rule, err := NewPattern(PatternSpec{
		Name:      "injection-pattern",
		EventType: models.EventInjectionAttempt,
		Pattern:   `<script`,
		Cooldown:  5 * time.Minute,
		Severity:  models.SeverityCritical,
		Title:     "Injection attempt detected",
	})
	require.NoError(t, err)

	event := models.SecurityEvent{
		EventType:  models.EventInjectionAttempt,
		Timestamp:  testBase,
		SourceID:   "10.0.0.1",
		Attributes: map[string]string{"body": "<script>"},
	}

	alerts, err := rule.Evaluate([]models.SecurityEvent{event}, testBase)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alerts, err = rule.Evaluate([]models.SecurityEvent{event, event}, testBase.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestNewPattern_MalformedRegex(t *testing.T) {
	_, err := NewPattern(PatternSpec{
		Name:     "bad",
		Pattern:  "(unclosed",
		Severity: models.SeverityHigh,
	})
	require.Error(t, err)
	var cfgErr *errs.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestAnomaly_FiresOnVolumeSpike(t *testing.T) {
	rule, err := NewAnomaly(AnomalySpec{
		Name:        "spike",
		ShortWindow: time.Minute,
		Multiplier:  3,
		MinEvents:   20,
		Severity:    models.SeverityMedium,
		Title:       "Security event volume spike",
	})
	require.NoError(t, err)

	now := testBase.Add(10 * time.Minute)
	var events []models.SecurityEvent

	// Baseline: ~2 events per minute over the prior 9 minutes.
	for i := 0; i < 18; i++ {
		events = append(events, models.SecurityEvent{
			EventType: models.EventAccessDenied,
			Timestamp: testBase.Add(time.Duration(i) * 30 * time.Second),
			SourceID:  "10.0.0.1",
		})
	}
	// Spike: 30 events in the last minute.
	for i := 0; i < 30; i++ {
		events = append(events, models.SecurityEvent{
			EventType: models.EventAccessDenied,
			Timestamp: now.Add(-time.Duration(i) * time.Second),
			SourceID:  "10.0.0.2",
		})
	}

	alerts, err := rule.Evaluate(events, now)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
}

func TestAnomaly_QuietWithoutBaseline(t *testing.T) {
	rule, err := NewAnomaly(AnomalySpec{
		Name:        "spike",
		ShortWindow: time.Minute,
		Multiplier:  3,
		MinEvents:   5,
		Severity:    models.SeverityMedium,
		Title:       "Security event volume spike",
	})
	require.NoError(t, err)

	// All events inside the short window: no prior span to baseline against.
	var events []models.SecurityEvent
	for i := 0; i < 30; i++ {
		events = append(events, models.SecurityEvent{
			EventType: models.EventAccessDenied,
			Timestamp: testBase.Add(time.Duration(i) * time.Second),
		})
	}

	alerts, err := rule.Evaluate(events, testBase.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
