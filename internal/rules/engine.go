package rules

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/telhawk-systems/secmon/internal/logging"
	"github.com/telhawk-systems/secmon/internal/metrics"
	"github.com/telhawk-systems/secmon/internal/models"
)

// Engine evaluates all detection rules against a window snapshot.
// Evaluation is serialized under one mutex so rules can keep their cooldown
// state unsynchronized. A failing or panicking rule is logged and skipped;
// it never aborts the other rules or the ingestion path.
type Engine struct {
	mu     sync.Mutex
	rules  []Rule
	logger *slog.Logger
}

// NewEngine creates an Engine over the given rule set.
func NewEngine(rules []Rule, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:  rules,
		logger: logger.With(logging.Component("rule_engine")),
	}
}

// Rules returns the configured rule set.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Firing pairs an alert with the rule that produced it, so callers can act
// on rule-specific policy such as source blocking.
type Firing struct {
	Rule  Rule
	Alert *models.SecurityAlert
}

// Evaluate runs every rule over the snapshot and collects the firings.
func (e *Engine) Evaluate(events []models.SecurityEvent, now time.Time) []Firing {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := prometheus.NewTimer(metrics.EvaluationDuration)
	defer timer.ObserveDuration()

	var out []Firing
	for _, rule := range e.rules {
		for _, alert := range e.evaluateRule(rule, events, now) {
			out = append(out, Firing{Rule: rule, Alert: alert})
		}
	}
	return out
}

func (e *Engine) evaluateRule(rule Rule, events []models.SecurityEvent, now time.Time) (alerts []*models.SecurityAlert) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rule panicked during evaluation",
				logging.Rule(rule.Name()), slog.Any("panic", rec))
			metrics.RuleErrors.WithLabelValues(rule.Name()).Inc()
			alerts = nil
		}
	}()

	alerts, err := rule.Evaluate(events, now)
	if err != nil {
		e.logger.Error("rule evaluation failed",
			logging.Rule(rule.Name()), logging.Error(err))
		metrics.RuleErrors.WithLabelValues(rule.Name()).Inc()
		return nil
	}
	return alerts
}
