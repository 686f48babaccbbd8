// Package router dispatches admitted alerts to their severity-routed
// notification channels through a bounded queue and a fixed worker pool.
// Delivery is fire-and-forget relative to ingestion: failures are recorded
// in outcomes and statistics, never surfaced to the event producer.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/logging"
	"github.com/telhawk-systems/secmon/internal/metrics"
	"github.com/telhawk-systems/secmon/internal/models"
	"github.com/telhawk-systems/secmon/internal/notify"
)

// Config holds router tuning.
type Config struct {
	QueueSize      int
	Workers        int
	RetryCount     int // total attempts per channel
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	Routes         map[models.Severity][]string
}

// Stats are cumulative dispatch statistics.
type Stats struct {
	Routed          int64
	Delivered       int64
	PartialFailures int64
	Failed          int64
	Dropped         int64
}

// Router owns alert dispatch. Enqueue never blocks: when the queue is full
// the oldest queued alert is dropped and counted.
type Router struct {
	cfg      Config
	channels map[string]notify.Channel
	logger   *slog.Logger

	queue   chan *models.SecurityAlert
	wg      sync.WaitGroup
	started bool

	statsMu sync.Mutex
	stats   Stats

	// onDispatch, when set, observes every completed dispatch. Used by the
	// monitor for snapshot statistics and by tests.
	onDispatch func(alert *models.SecurityAlert, outcomes []models.DeliveryOutcome)
}

// New validates the routing table against the available channels and builds
// the router. Severities routed to unknown channels are a configuration
// error.
func New(cfg Config, channels []notify.Channel, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}

	byName := make(map[string]notify.Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	for severity, names := range cfg.Routes {
		for _, name := range names {
			if _, ok := byName[name]; !ok {
				return nil, &errs.ConfigurationError{
					Key: "router.routes." + string(severity),
					Err: fmt.Errorf("unknown channel %q", name),
				}
			}
		}
	}

	return &Router{
		cfg:      cfg,
		channels: byName,
		logger:   logger.With(logging.Component("alert_router")),
		queue:    make(chan *models.SecurityAlert, cfg.QueueSize),
	}, nil
}

// SetDispatchHook registers an observer for completed dispatches. Must be
// called before Start.
func (r *Router) SetDispatchHook(hook func(alert *models.SecurityAlert, outcomes []models.DeliveryOutcome)) {
	r.onDispatch = hook
}

// Start launches the worker pool.
func (r *Router) Start() {
	if r.started {
		return
	}
	r.started = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

// Stop closes the queue and waits for in-flight dispatches to finish.
func (r *Router) Stop() {
	if !r.started {
		return
	}
	r.started = false
	close(r.queue)
	r.wg.Wait()
}

// Enqueue hands an alert to the worker pool without blocking. When the
// queue is full the oldest queued alert is dropped in its favor.
func (r *Router) Enqueue(alert *models.SecurityAlert) {
	for {
		select {
		case r.queue <- alert:
			return
		default:
		}
		select {
		case dropped := <-r.queue:
			metrics.AlertsDropped.Inc()
			r.statsMu.Lock()
			r.stats.Dropped++
			r.statsMu.Unlock()
			r.logger.Warn("dispatch queue full, dropped oldest alert",
				logging.AlertID(dropped.ID), logging.Severity(string(dropped.Severity)))
		default:
			// A worker drained the queue between the two selects; retry the send.
		}
	}
}

func (r *Router) worker() {
	defer r.wg.Done()
	for alert := range r.queue {
		outcomes := r.Dispatch(alert)
		if r.onDispatch != nil {
			r.onDispatch(alert, outcomes)
		}
	}
}

// Dispatch fans the alert out to all channels routed for its severity,
// concurrently and independently, and reports one outcome per channel.
func (r *Router) Dispatch(alert *models.SecurityAlert) []models.DeliveryOutcome {
	names := r.cfg.Routes[alert.Severity]
	outcomes := make([]models.DeliveryOutcome, len(names))

	metrics.AlertsRouted.Inc()

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, ch notify.Channel) {
			defer wg.Done()
			outcomes[i] = r.deliver(ch, alert)
		}(i, r.channels[name])
	}
	wg.Wait()

	delivered := false
	failures := 0
	for _, outcome := range outcomes {
		if outcome.Delivered {
			delivered = true
		} else {
			failures++
		}
	}

	r.statsMu.Lock()
	r.stats.Routed++
	switch {
	case delivered && failures == 0:
		r.stats.Delivered++
	case delivered:
		r.stats.Delivered++
		r.stats.PartialFailures++
	case len(names) > 0:
		r.stats.Failed++
	}
	r.statsMu.Unlock()

	if !delivered && len(names) > 0 {
		r.logger.Error("alert delivery failed on every channel",
			logging.AlertID(alert.ID), logging.Severity(string(alert.Severity)))
	}
	return outcomes
}

// deliver makes up to RetryCount attempts on one channel, each bounded by
// the attempt timeout, with exponential backoff between attempts.
func (r *Router) deliver(ch notify.Channel, alert *models.SecurityAlert) models.DeliveryOutcome {
	outcome := models.DeliveryOutcome{Channel: ch.Name()}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.RetryCount; attempt++ {
		outcome.Attempts = attempt

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AttemptTimeout)
		err := ch.Send(ctx, alert)
		cancel()

		if err == nil {
			outcome.Delivered = true
			metrics.ChannelDeliveries.WithLabelValues(ch.Name(), string(alert.Severity), "success").Inc()
			return outcome
		}

		lastErr = &errs.DeliveryError{Channel: ch.Name(), Err: err}
		r.logger.Warn("channel delivery attempt failed",
			logging.AlertID(alert.ID), logging.Channel(ch.Name()),
			slog.Int("attempt", attempt), logging.Error(err))

		if attempt < r.cfg.RetryCount {
			time.Sleep(r.cfg.BackoffBase * (1 << (attempt - 1)))
		}
	}

	outcome.LastError = lastErr.Error()
	metrics.ChannelDeliveries.WithLabelValues(ch.Name(), string(alert.Severity), "failure").Inc()
	return outcome
}

// Stats returns a copy of the cumulative dispatch statistics.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}
