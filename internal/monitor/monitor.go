// Package monitor wires the detection pipeline together: validation,
// metrics, threat scoring, the sliding event window, rule evaluation,
// deduplication, persistence, and dispatch.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/secmon/internal/dedup"
	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/logging"
	"github.com/telhawk-systems/secmon/internal/metrics"
	"github.com/telhawk-systems/secmon/internal/models"
	"github.com/telhawk-systems/secmon/internal/repository"
	"github.com/telhawk-systems/secmon/internal/router"
	"github.com/telhawk-systems/secmon/internal/rules"
	"github.com/telhawk-systems/secmon/internal/scorer"
	"github.com/telhawk-systems/secmon/internal/window"
)

// AlertPublisher publishes admitted alerts to an external bus. Optional.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *models.SecurityAlert) error
}

// sourceBlocker is implemented by rules whose firing should block the
// offending source.
type sourceBlocker interface {
	BlocksSource() bool
}

// Evaluation modes.
const (
	EvalModeTick     = "tick"
	EvalModePerEvent = "per_event"
)

// Config controls monitor behavior.
type Config struct {
	// ClockSkew is the tolerated future drift on event timestamps.
	ClockSkew time.Duration

	// EvalMode selects rule evaluation on every event ("per_event") or on a
	// background ticker ("tick").
	EvalMode string

	// EvalInterval is the tick period in tick mode.
	EvalInterval time.Duration
}

// Snapshot is a point-in-time view of the pipeline for operators.
type Snapshot struct {
	ThreatScore          float64                    `json:"threat_score"`
	ThreatBand           string                     `json:"threat_band"`
	ActiveAlerts         int                        `json:"active_alerts"`
	UnacknowledgedAlerts int                        `json:"unacknowledged_alerts"`
	EventCounts          map[models.EventType]int64 `json:"event_counts"`
	BlockedSources       int                        `json:"blocked_sources"`
	DroppedAlerts        int64                      `json:"dropped_alerts"`
	DedupedAlerts        int64                      `json:"deduped_alerts"`
}

// Monitor is the pipeline orchestrator. RecordEvent is safe for concurrent
// use by many producers.
type Monitor struct {
	cfg       Config
	logger    *slog.Logger
	scorer    *scorer.Scorer
	window    *window.Buffer
	engine    *rules.Engine
	dedup     dedup.Deduplicator
	repo      repository.Repository
	router    *router.Router
	publisher AlertPublisher
	now       func() time.Time

	mu          sync.Mutex
	blocked     map[string]struct{}
	eventCounts map[models.EventType]int64

	deduped atomic.Int64

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// Deps are the pipeline components the monitor orchestrates. Publisher may
// be nil. Now may be nil, in which case time.Now is used.
type Deps struct {
	Scorer    *scorer.Scorer
	Window    *window.Buffer
	Engine    *rules.Engine
	Dedup     dedup.Deduplicator
	Repo      repository.Repository
	Router    *router.Router
	Publisher AlertPublisher
	Now       func() time.Time
}

// New builds a Monitor. EvalInterval must be positive in tick mode.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Monitor, error) {
	if cfg.EvalMode != EvalModeTick && cfg.EvalMode != EvalModePerEvent {
		return nil, &errs.ConfigurationError{Key: "rules.eval_mode", Err: fmt.Errorf("unknown mode %q", cfg.EvalMode)}
	}
	if cfg.EvalMode == EvalModeTick && cfg.EvalInterval <= 0 {
		return nil, &errs.ConfigurationError{Key: "rules.eval_interval", Err: fmt.Errorf("must be positive, got %s", cfg.EvalInterval)}
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		cfg:         cfg,
		logger:      logger.With(logging.Component("monitor")),
		scorer:      deps.Scorer,
		window:      deps.Window,
		engine:      deps.Engine,
		dedup:       deps.Dedup,
		repo:        deps.Repo,
		router:      deps.Router,
		publisher:   deps.Publisher,
		now:         now,
		blocked:     make(map[string]struct{}),
		eventCounts: make(map[models.EventType]int64),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start launches the dispatch workers and, in tick mode, the evaluation
// loop.
func (m *Monitor) Start() {
	if m.started {
		return
	}
	m.started = true
	m.router.Start()

	if m.cfg.EvalMode == EvalModeTick {
		m.wg.Add(1)
		go m.tickLoop()
	}
	m.logger.Info("monitor started",
		slog.String("eval_mode", m.cfg.EvalMode),
		slog.Duration("eval_interval", m.cfg.EvalInterval))
}

// Stop halts the tick loop, drains the dispatch queue, and closes the
// deduplicator.
func (m *Monitor) Stop() {
	if !m.started {
		return
	}
	m.started = false
	close(m.stopChan)
	m.wg.Wait()
	m.router.Stop()
	if err := m.dedup.Close(); err != nil {
		m.logger.Warn("dedup close failed", logging.Error(err))
	}
	m.logger.Info("monitor stopped")
}

func (m *Monitor) tickLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evaluate(context.Background())
		case <-m.stopChan:
			return
		}
	}
}

// RecordEvent validates and ingests one security event. Validation failures
// return a ValidationError before any shared state is touched. The event's
// ID and timestamp are filled in when absent.
func (m *Monitor) RecordEvent(ctx context.Context, event *models.SecurityEvent) error {
	now := m.now()

	if event.EventType == "" {
		return &errs.ValidationError{Field: "event_type", Reason: "must not be empty"}
	}
	if event.SourceID == "" {
		return &errs.ValidationError{Field: "source_id", Reason: "must not be empty"}
	}
	if !event.Timestamp.IsZero() && event.Timestamp.After(now.Add(m.cfg.ClockSkew)) {
		return &errs.ValidationError{Field: "timestamp", Reason: "too far in the future"}
	}

	if event.ID == "" {
		id, _ := uuid.NewV7()
		event.ID = id.String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	metrics.EventsTotal.WithLabelValues(string(event.EventType)).Inc()
	if event.EventType == models.EventLoginFailed {
		endpoint := event.Endpoint
		if endpoint == "" {
			endpoint = "unknown"
		}
		metrics.FailedLoginAttempts.WithLabelValues(endpoint).Inc()
	}

	m.mu.Lock()
	m.eventCounts[event.EventType]++
	m.mu.Unlock()

	m.scorer.Update(*event)
	m.window.Append(*event)

	m.logger.Debug("event recorded",
		logging.EventID(event.ID),
		logging.EventType(string(event.EventType)),
		logging.SourceID(event.SourceID))

	if m.cfg.EvalMode == EvalModePerEvent {
		m.evaluate(ctx)
	}
	return nil
}

// evaluate runs the rule engine over the current window snapshot and pushes
// every admitted alert through dedup, persistence, dispatch, and the
// optional bus.
func (m *Monitor) evaluate(ctx context.Context) {
	snapshot := m.window.Snapshot()
	firings := m.engine.Evaluate(snapshot, m.now())
	for _, firing := range firings {
		m.handleFiring(ctx, firing)
	}
}

func (m *Monitor) handleFiring(ctx context.Context, firing rules.Firing) {
	alert := firing.Alert

	admitted, err := m.dedup.Admit(ctx, alert)
	if err != nil {
		m.logger.Warn("dedup admission error", logging.AlertID(alert.ID), logging.Error(err))
	}
	if !admitted {
		m.deduped.Add(1)
		return
	}

	metrics.AlertsTotal.WithLabelValues(string(alert.Severity)).Inc()
	m.logger.Info("alert raised",
		logging.AlertID(alert.ID),
		logging.Rule(firing.Rule.Name()),
		logging.Severity(string(alert.Severity)),
		logging.SourceID(alert.SourceID))

	if blocker, ok := firing.Rule.(sourceBlocker); ok && blocker.BlocksSource() && alert.SourceID != "" {
		m.blockSource(alert.SourceID)
	}

	if err := m.repo.Save(ctx, alert); err != nil {
		m.logger.Error("alert save failed", logging.AlertID(alert.ID), logging.Error(err))
	} else {
		m.refreshAlertGauges(ctx)
	}

	m.router.Enqueue(alert)

	if m.publisher != nil {
		if err := m.publisher.PublishAlert(ctx, alert); err != nil {
			m.logger.Warn("alert publish failed", logging.AlertID(alert.ID), logging.Error(err))
		}
	}
}

func (m *Monitor) blockSource(source string) {
	m.mu.Lock()
	_, already := m.blocked[source]
	if !already {
		m.blocked[source] = struct{}{}
	}
	m.mu.Unlock()

	if !already {
		metrics.BlockedIPsTotal.Inc()
		m.logger.Warn("source blocked", logging.SourceID(source))
	}
}

// Blocked reports whether a source has been blocked by a detection rule.
func (m *Monitor) Blocked(source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[source]
	return ok
}

// Acknowledge marks the alert acknowledged. Unknown ids return a
// NotFoundError; re-acknowledging is a no-op.
func (m *Monitor) Acknowledge(ctx context.Context, id string) error {
	changed, err := m.repo.Acknowledge(ctx, id, m.now())
	if err != nil {
		return err
	}
	if changed {
		m.refreshAlertGauges(ctx)
	}
	return nil
}

func (m *Monitor) refreshAlertGauges(ctx context.Context) {
	counts, err := m.repo.Counts(ctx)
	if err != nil {
		m.logger.Warn("alert count refresh failed", logging.Error(err))
		return
	}
	metrics.AlertsActive.Set(float64(counts.Active))
	metrics.AlertsUnacknowledged.Set(float64(counts.Unacknowledged))
}

// Snapshot returns the current pipeline state.
func (m *Monitor) Snapshot(ctx context.Context) (Snapshot, error) {
	counts, err := m.repo.Counts(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	eventCounts := make(map[models.EventType]int64, len(m.eventCounts))
	for eventType, count := range m.eventCounts {
		eventCounts[eventType] = count
	}
	blocked := len(m.blocked)
	m.mu.Unlock()

	stats := m.router.Stats()

	return Snapshot{
		ThreatScore:          m.scorer.CurrentScore(),
		ThreatBand:           m.scorer.Band(),
		ActiveAlerts:         counts.Active,
		UnacknowledgedAlerts: counts.Unacknowledged,
		EventCounts:          eventCounts,
		BlockedSources:       blocked,
		DroppedAlerts:        stats.Dropped,
		DedupedAlerts:        m.deduped.Load(),
	}, nil
}
