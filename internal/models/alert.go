package models

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Severity levels, ordered from least to most severe.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a numeric ordering for severity comparison.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s Severity) bool {
	return s.Rank() > 0
}

// SecurityAlert is produced by a detection rule trigger. Only the
// acknowledgment fields are ever mutated after creation.
type SecurityAlert struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Severity          Severity   `json:"severity"`
	EventType         EventType  `json:"event_type"`
	SourceID          string     `json:"source_id,omitempty"`
	RecommendedAction string     `json:"recommended_action,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	Acknowledged      bool       `json:"acknowledged"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty"`
}

// Fingerprint derives the deduplication key for the alert. Alerts with the
// same title, event type, and severity are considered "the same alert".
// Computed on demand, never stored.
func (a *SecurityAlert) Fingerprint() string {
	h := sha256.Sum256([]byte(a.Title + "|" + string(a.EventType) + "|" + string(a.Severity)))
	return fmt.Sprintf("%x", h[:8])
}

// DeliveryOutcome records the result of dispatching one alert to one channel.
type DeliveryOutcome struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Threat score bands. The band boundaries are a fixed contract; the scoring
// weights that feed them are configuration.
const (
	BandNormal   = "normal"
	BandElevated = "elevated"
	BandHigh     = "high"
	BandCritical = "critical"
)

// ThreatBand maps a threat score in [0,100] to its band.
func ThreatBand(score float64) string {
	switch {
	case score >= 85:
		return BandCritical
	case score >= 70:
		return BandHigh
	case score >= 50:
		return BandElevated
	default:
		return BandNormal
	}
}
