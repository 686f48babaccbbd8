package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldComponent = "component"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldSourceID  = "source_id"
	FieldAlertID   = "alert_id"
	FieldRule      = "rule"
	FieldChannel   = "channel"
	FieldSeverity  = "severity"
	FieldError     = "error"
)

// Component returns a slog attribute for the pipeline component name.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// EventID returns a slog attribute for a security event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for the event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// SourceID returns a slog attribute for the event source identifier.
func SourceID(id string) slog.Attr {
	return slog.String(FieldSourceID, id)
}

// AlertID returns a slog attribute for an alert ID.
func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}

// Rule returns a slog attribute for a detection rule name.
func Rule(name string) slog.Attr {
	return slog.String(FieldRule, name)
}

// Channel returns a slog attribute for a notification channel name.
func Channel(name string) slog.Attr {
	return slog.String(FieldChannel, name)
}

// Severity returns a slog attribute for an alert severity.
func Severity(s string) slog.Attr {
	return slog.String(FieldSeverity, s)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
