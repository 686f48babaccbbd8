package models

import "time"

// EventType classifies a security-relevant event. The set is open: unknown
// types are accepted, counted, and scored with the default weight.
type EventType string

const (
	EventLoginFailed        EventType = "login_failed"
	EventInjectionAttempt   EventType = "injection_attempt"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventAccessDenied       EventType = "access_denied"
	EventSystemError        EventType = "system_error"
)

// SecurityEvent is an already-classified security signal produced by an
// upstream collector (auth middleware, WAF, rate limiter). Events are
// immutable after ingestion and retained only inside bounded sliding windows.
type SecurityEvent struct {
	ID         string            `json:"id"`
	EventType  EventType         `json:"event_type"`
	Timestamp  time.Time         `json:"timestamp"`
	SourceID   string            `json:"source_id"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
