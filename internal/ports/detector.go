// Package ports defines the detection engine interfaces.
//
// Detector is the primary interface for all detection engines.
// Implementations inspect normalized events and return zero or more findings.
package ports

import (
	"context"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// Detector defines the interface for detection engines.
//
// Implementations:
//   - SignatureDetector: Pattern families (SQLi, XSS, command injection,
//     directory traversal, recon) with Aho-Corasick prefilter
//   - PortScanDetector: Distinct destination ports per source in a window
//   - SYNFloodDetector: Connection attempt rate per source in a window
//
// Thread Safety: Implementations MUST be safe for concurrent Inspect()
// calls for different sources. The pipeline guarantees that events of one
// source are inspected sequentially, in arrival order.
type Detector interface {
	// Inspect analyzes an event for attack indicators.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - ev: Normalized event (immutable, do not modify)
	//
	// Returns:
	//   - One Finding per matched signature family
	//   - nil if the event is benign for this detector
	//
	// Contract:
	//   - MUST NOT modify the event
	//   - MUST NOT panic on malformed payloads
	Inspect(ctx context.Context, ev *domain.Event) []domain.Finding

	// ID returns the detector's identifier for logging and metrics.
	// Format: lowercase with underscores (e.g., "sqli", "port_scan")
	ID() string

	// Signature returns the signature family this detector emits.
	Signature() domain.Signature
}

// StatefulDetector is a Detector that keeps per-source state and must be
// swept periodically.
type StatefulDetector interface {
	Detector

	// Cleanup reclaims profiles idle for longer than the detector window,
	// measured against now.
	Cleanup(now time.Time) int

	// TrackedSources returns the number of live per-source profiles.
	TrackedSources() int
}
