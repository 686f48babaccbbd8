// Package errs defines the error taxonomy of the monitoring pipeline.
// Validation errors surface synchronously to the ingestion caller,
// configuration errors are fatal at startup, delivery errors stay inside
// the router, and not-found errors surface from the acknowledgment path.
package errs

import "fmt"

// ValidationError rejects a malformed or stale event before any shared
// state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

// ConfigurationError indicates invalid startup configuration, such as a
// malformed rule regex or a negative scoring weight. Always fatal.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DeliveryError records a per-channel delivery failure. It is stored in the
// delivery outcome and statistics, never propagated to the event producer.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NotFoundError is returned when acknowledging an unknown alert id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
