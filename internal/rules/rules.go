// Package rules implements windowed detection rules and the engine that
// evaluates them. The rule set is closed: rate-threshold, pattern-match,
// and anomaly variants, built from configuration at process start.
package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/models"
)

// Rule evaluates a snapshot of recent events and produces zero or more
// alerts, at most one per distinct source per cooldown period.
type Rule interface {
	Name() string
	Evaluate(events []models.SecurityEvent, now time.Time) ([]*models.SecurityAlert, error)
}

// cooldownTracker enforces the per-source firing cooldown. Rules are only
// evaluated under the engine's lock, so no internal synchronization.
type cooldownTracker struct {
	period    time.Duration
	lastFired map[string]time.Time
}

func newCooldownTracker(period time.Duration) *cooldownTracker {
	return &cooldownTracker{
		period:    period,
		lastFired: make(map[string]time.Time),
	}
}

func (c *cooldownTracker) ready(source string, now time.Time) bool {
	last, ok := c.lastFired[source]
	return !ok || now.Sub(last) >= c.period
}

func (c *cooldownTracker) mark(source string, now time.Time) {
	c.lastFired[source] = now
	// Drop entries two cooldowns old so the map stays bounded.
	for src, at := range c.lastFired {
		if now.Sub(at) >= 2*c.period {
			delete(c.lastFired, src)
		}
	}
}

func newAlert(title, description string, severity models.Severity, eventType models.EventType, source, action string, now time.Time) *models.SecurityAlert {
	id, _ := uuid.NewV7()
	return &models.SecurityAlert{
		ID:                id.String(),
		Title:             title,
		Description:       description,
		Severity:          severity,
		EventType:         eventType,
		SourceID:          source,
		RecommendedAction: action,
		CreatedAt:         now,
	}
}

// RateThresholdRule fires when more than Threshold events of EventType are
// observed for a single source within Window.
type RateThresholdRule struct {
	name        string
	eventType   models.EventType
	threshold   int
	window      time.Duration
	severity    models.Severity
	title       string
	description string
	action      string
	blockSource bool
	cooldown    *cooldownTracker
}

// RateThresholdSpec configures a RateThresholdRule.
type RateThresholdSpec struct {
	Name        string
	EventType   models.EventType
	Threshold   int
	Window      time.Duration
	Cooldown    time.Duration // defaults to Window
	Severity    models.Severity
	Title       string
	Description string
	Action      string
	BlockSource bool
}

// NewRateThreshold validates the spec and builds the rule.
func NewRateThreshold(spec RateThresholdSpec) (*RateThresholdRule, error) {
	if spec.Threshold <= 0 {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".threshold", Err: fmt.Errorf("must be positive, got %d", spec.Threshold)}
	}
	if spec.Window <= 0 {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".window", Err: fmt.Errorf("must be positive, got %s", spec.Window)}
	}
	if !models.ValidSeverity(spec.Severity) {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".severity", Err: fmt.Errorf("unknown severity %q", spec.Severity)}
	}
	cooldown := spec.Cooldown
	if cooldown <= 0 {
		cooldown = spec.Window
	}
	return &RateThresholdRule{
		name:        spec.Name,
		eventType:   spec.EventType,
		threshold:   spec.Threshold,
		window:      spec.Window,
		severity:    spec.Severity,
		title:       spec.Title,
		description: spec.Description,
		action:      spec.Action,
		blockSource: spec.BlockSource,
		cooldown:    newCooldownTracker(cooldown),
	}, nil
}

func (r *RateThresholdRule) Name() string { return r.name }

// BlocksSource reports whether a firing should block the offending source.
func (r *RateThresholdRule) BlocksSource() bool { return r.blockSource }

func (r *RateThresholdRule) Evaluate(events []models.SecurityEvent, now time.Time) ([]*models.SecurityAlert, error) {
	cutoff := now.Add(-r.window)
	counts := make(map[string]int)
	for _, event := range events {
		if event.EventType != r.eventType || event.Timestamp.Before(cutoff) {
			continue
		}
		counts[event.SourceID]++
	}

	var alerts []*models.SecurityAlert
	for source, count := range counts {
		if count <= r.threshold || !r.cooldown.ready(source, now) {
			continue
		}
		r.cooldown.mark(source, now)
		description := fmt.Sprintf("%s: %d %s events from %s within %s (threshold %d)",
			r.description, count, r.eventType, source, r.window, r.threshold)
		alert := newAlert(r.title, description, r.severity, r.eventType, source, r.action, now)
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// PatternRule fires when an event of EventType carries an endpoint or
// attribute value matching the compiled pattern.
type PatternRule struct {
	name      string
	eventType models.EventType
	pattern   *regexp.Regexp
	severity  models.Severity
	title     string
	action    string
	cooldown  *cooldownTracker
}

// PatternSpec configures a PatternRule. Pattern is compiled at build time;
// a malformed expression is a fatal configuration error.
type PatternSpec struct {
	Name      string
	EventType models.EventType
	Pattern   string
	Cooldown  time.Duration
	Severity  models.Severity
	Title     string
	Action    string
}

// NewPattern compiles the spec's regular expression and builds the rule.
func NewPattern(spec PatternSpec) (*PatternRule, error) {
	pattern, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".pattern", Err: err}
	}
	if !models.ValidSeverity(spec.Severity) {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".severity", Err: fmt.Errorf("unknown severity %q", spec.Severity)}
	}
	cooldown := spec.Cooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &PatternRule{
		name:      spec.Name,
		eventType: spec.EventType,
		pattern:   pattern,
		severity:  spec.Severity,
		title:     spec.Title,
		action:    spec.Action,
		cooldown:  newCooldownTracker(cooldown),
	}, nil
}

func (r *PatternRule) Name() string { return r.name }

func (r *PatternRule) Evaluate(events []models.SecurityEvent, now time.Time) ([]*models.SecurityAlert, error) {
	var alerts []*models.SecurityAlert
	for _, event := range events {
		if event.EventType != r.eventType {
			continue
		}
		matched, sample := r.match(event)
		if !matched || !r.cooldown.ready(event.SourceID, now) {
			continue
		}
		r.cooldown.mark(event.SourceID, now)
		description := fmt.Sprintf("pattern %q matched %q from %s on %s",
			r.pattern.String(), sample, event.SourceID, event.Endpoint)
		alerts = append(alerts, newAlert(r.title, description, r.severity, r.eventType, event.SourceID, r.action, now))
	}
	return alerts, nil
}

func (r *PatternRule) match(event models.SecurityEvent) (bool, string) {
	if r.pattern.MatchString(event.Endpoint) {
		return true, event.Endpoint
	}
	for _, value := range event.Attributes {
		if r.pattern.MatchString(value) {
			return true, value
		}
	}
	return false, ""
}

// AnomalyRule fires when event volume in the most recent short window
// exceeds Multiplier times the per-window baseline observed earlier in the
// snapshot. The baseline needs at least one full prior window of data.
type AnomalyRule struct {
	name        string
	shortWindow time.Duration
	multiplier  float64
	minEvents   int
	severity    models.Severity
	title       string
	action      string
	cooldown    *cooldownTracker
}

// anomalyScope keys the cooldown tracker; volume anomalies are process-wide.
const anomalyScope = "global"

// AnomalySpec configures an AnomalyRule.
type AnomalySpec struct {
	Name        string
	ShortWindow time.Duration
	Multiplier  float64
	MinEvents   int
	Cooldown    time.Duration
	Severity    models.Severity
	Title       string
	Action      string
}

// NewAnomaly validates the spec and builds the rule.
func NewAnomaly(spec AnomalySpec) (*AnomalyRule, error) {
	if spec.ShortWindow <= 0 {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".short_window", Err: fmt.Errorf("must be positive, got %s", spec.ShortWindow)}
	}
	if spec.Multiplier <= 1 {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".multiplier", Err: fmt.Errorf("must be greater than 1, got %f", spec.Multiplier)}
	}
	if !models.ValidSeverity(spec.Severity) {
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".severity", Err: fmt.Errorf("unknown severity %q", spec.Severity)}
	}
	minEvents := spec.MinEvents
	if minEvents <= 0 {
		minEvents = 10
	}
	cooldown := spec.Cooldown
	if cooldown <= 0 {
		cooldown = spec.ShortWindow
	}
	return &AnomalyRule{
		name:        spec.Name,
		shortWindow: spec.ShortWindow,
		multiplier:  spec.Multiplier,
		minEvents:   minEvents,
		severity:    spec.Severity,
		title:       spec.Title,
		action:      spec.Action,
		cooldown:    newCooldownTracker(cooldown),
	}, nil
}

func (r *AnomalyRule) Name() string { return r.name }

func (r *AnomalyRule) Evaluate(events []models.SecurityEvent, now time.Time) ([]*models.SecurityAlert, error) {
	if len(events) == 0 || !r.cooldown.ready(anomalyScope, now) {
		return nil, nil
	}

	shortCutoff := now.Add(-r.shortWindow)
	recent := 0
	prior := 0
	oldest := now
	for _, event := range events {
		if event.Timestamp.Before(oldest) {
			oldest = event.Timestamp
		}
		if event.Timestamp.Before(shortCutoff) {
			prior++
		} else {
			recent++
		}
	}

	// Baseline is the mean per-window volume over the prior span.
	priorSpan := shortCutoff.Sub(oldest)
	if priorSpan < r.shortWindow || prior == 0 {
		return nil, nil
	}
	buckets := float64(priorSpan) / float64(r.shortWindow)
	baseline := float64(prior) / buckets

	if recent < r.minEvents || float64(recent) <= r.multiplier*baseline {
		return nil, nil
	}

	r.cooldown.mark(anomalyScope, now)
	description := fmt.Sprintf("%d events in the last %s against a baseline of %.1f per window (x%.1f)",
		recent, r.shortWindow, baseline, float64(recent)/baseline)
	return []*models.SecurityAlert{
		newAlert(r.title, description, r.severity, models.EventSuspiciousActivity, "", r.action, now),
	}, nil
}
