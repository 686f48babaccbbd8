// Package metrics defines the Prometheus collectors exported by the
// monitoring pipeline. The counter and gauge names below are a
// compatibility contract with the external collector and must not be
// renamed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Total number of security events recorded by event type",
		},
		[]string{"event_type"},
	)

	FailedLoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_failed_login_attempts",
			Help: "Total number of failed login events by endpoint",
		},
		[]string{"endpoint"},
	)

	BlockedIPsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_blocked_ips_total",
			Help: "Total number of source identifiers blocked by detection rules",
		},
	)

	// Threat scoring metrics
	ThreatScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_threat_score",
			Help: "Current aggregate threat score (0-100)",
		},
	)

	// Alerting metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_alerts_total",
			Help: "Total number of alerts admitted past deduplication by severity",
		},
		[]string{"severity"},
	)

	AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_alerts_active",
			Help: "Number of alerts currently retained",
		},
	)

	AlertsUnacknowledged = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_alerts_unacknowledged",
			Help: "Number of retained alerts not yet acknowledged",
		},
	)

	AlertsDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_alerts_deduped_total",
			Help: "Total number of alerts suppressed by the deduplicator",
		},
	)

	// Routing metrics
	AlertsRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_alerts_routed_total",
			Help: "Total number of alerts dispatched by the router",
		},
	)

	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_alerts_dropped_total",
			Help: "Total number of alerts dropped from a full dispatch queue",
		},
	)

	ChannelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_channel_deliveries_total",
			Help: "Total channel delivery outcomes by channel, severity, and status",
		},
		[]string{"channel", "severity", "status"},
	)

	// Rule engine metrics
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "security_rule_evaluation_duration_seconds",
			Help:    "Duration of a full rule evaluation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_rule_errors_total",
			Help: "Total number of isolated rule evaluation errors by rule",
		},
		[]string{"rule"},
	)
)
