// Package ports defines the primary and secondary port interfaces following
// hexagonal architecture (ports and adapters pattern).
//
// This package contains interfaces that define the contract between the core
// engine (pipeline, dedup, countermeasure controller) and external
// infrastructure (record sources, alert outputs, firewall sinks, storage).
//
// Design Principles:
//   - Interfaces are small and focused (Interface Segregation Principle)
//   - Dependencies flow inward (core domain has no external dependencies)
//   - Implementations provided by adapters in internal/adapters/
package ports

import (
	"context"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// Alerter defines the interface for dispatching alerts to outputs.
//
// Implementations:
//   - JSONAlerter: Writes alerts as JSON lines to file or stdout
//   - MemoryAlerter: In-memory ring buffer for the dashboard and status API
//   - NATSAlerter: Publishes alerts on alerts.<severity> subjects
//
// Thread Safety: Implementations MUST be safe for concurrent Send() calls,
// although the emitter only calls them from its dispatcher goroutine.
type Alerter interface {
	// Send dispatches an alert to the output destination.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - alert: Immutable alert to dispatch (Seq already assigned)
	//
	// Returns:
	//   - nil on success
	//   - Error if dispatch fails (the emitter logs and continues)
	Send(ctx context.Context, alert *domain.Alert) error

	// Flush forces pending alerts to be written to destination.
	// Called during graceful shutdown to ensure alert delivery.
	Flush() error

	// Close releases resources and ensures all alerts are flushed.
	Close() error
}

// AlertSubscriber defines the callback interface for alert notification.
// Used by the emitter to notify interested components (TUI, metrics).
type AlertSubscriber interface {
	// OnAlert is called from the emitter's dispatcher goroutine in stream
	// order.
	//
	// Performance: Implementation should return quickly to avoid blocking
	// the stream. Use buffering for expensive operations.
	OnAlert(alert *domain.Alert)
}

// MetricsCollector defines the interface for observability metric collection.
// Implemented by the Prometheus adapter.
//
// Thread Safety: All methods MUST be safe for concurrent calls.
type MetricsCollector interface {
	// IncrementEvents records one normalized event.
	IncrementEvents()

	// IncrementFindings records one detector hit by signature.
	IncrementFindings(sig domain.Signature)

	// IncrementDecision records the dedup verdict for a finding.
	IncrementDecision(d domain.Decision)

	// ObserveProcessingTime records per-event processing duration.
	//
	// Parameters:
	//   - seconds: Processing duration in seconds
	ObserveProcessingTime(seconds float64)

	// SetActiveLanes updates the pipeline lane gauge.
	SetActiveLanes(count int)
}
