package ports

import "github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"

// ProcessingObserver defines the interface for observing processing results.
// Used to track metrics for every record, not just the ones raising alerts.
type ProcessingObserver interface {
	// IncrementEventsByResult records the outcome of processing one record.
	//
	// Parameters:
	//   - result: "clean", "finding" or "rejected"
	//
	// Thread Safety: Implementations MUST be safe for concurrent calls.
	IncrementEventsByResult(result string)
}

// CountermeasureObserver receives the outcome of every sink command.
type CountermeasureObserver interface {
	// ObserveSinkCommand records a block or unblock attempt.
	//
	// Parameters:
	//   - op: "block" or "unblock"
	//   - err: nil when the sink acknowledged the command
	ObserveSinkCommand(op string, err error)

	// SetActiveBlocks reports the number of active block entries.
	SetActiveBlocks(n int)
}

// DecisionObserver is notified of every dedup verdict, including
// suppressed findings which never reach the alert stream.
type DecisionObserver interface {
	OnDecision(f domain.Finding, d domain.Decision)
}
