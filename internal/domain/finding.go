package domain

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

type Signature string

const (
	SignatureSQLInjection     Signature = "SQL_INJECTION"
	SignatureXSS              Signature = "XSS"
	SignatureCommandInjection Signature = "COMMAND_INJECTION"
	SignatureDirTraversal     Signature = "DIRECTORY_TRAVERSAL"
	SignatureRecon            Signature = "RECON"
	SignaturePortScan         Signature = "PORT_SCAN"
	SignatureSYNFlood         Signature = "SYN_FLOOD"
	SignatureSinkHealth       Signature = "SINK_HEALTH"
)

// Finding is a single detector hit. Values are immutable: escalation
// produces a new Finding instead of rewriting an existing one.
type Finding struct {
	ID            string            `json:"id"`
	DetectorID    string            `json:"detector_id"`
	SourceIP      netip.Addr        `json:"source_ip"`
	Severity      Severity          `json:"severity"`
	Signature     Signature         `json:"signature"`
	MatchType     string            `json:"match_type,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Evidence      map[string]string `json:"evidence,omitempty"`
	EscalatedFrom string            `json:"escalated_from,omitempty"`
}

func NewFinding(detectorID string, ev *Event, sig Signature, matchType string, sev Severity, evidence map[string]string) Finding {
	return Finding{
		ID:         uuid.NewString(),
		DetectorID: detectorID,
		SourceIP:   ev.SourceIP,
		Severity:   sev,
		Signature:  sig,
		MatchType:  matchType,
		Timestamp:  ev.Timestamp,
		Evidence:   evidence,
	}
}

func (f Finding) Key() DedupKey {
	return DedupKey{SourceIP: f.SourceIP, Signature: f.Signature}
}

// Escalated returns a copy of f carrying sev, a fresh ID and a link back
// to the finding it was derived from.
func (f Finding) Escalated(sev Severity) Finding {
	out := f
	out.ID = uuid.NewString()
	out.Severity = sev
	out.EscalatedFrom = f.ID
	if len(f.Evidence) > 0 {
		out.Evidence = make(map[string]string, len(f.Evidence)+1)
		for k, v := range f.Evidence {
			out.Evidence[k] = v
		}
	} else {
		out.Evidence = make(map[string]string, 1)
	}
	out.Evidence["escalated_from_severity"] = f.Severity.String()
	return out
}

func (f Finding) Ref() FindingRef {
	return FindingRef{ID: f.ID, Signature: f.Signature, Severity: f.Severity, Timestamp: f.Timestamp}
}

// FindingRef is the part of a Finding carried by alerts and block entries.
type FindingRef struct {
	ID        string    `json:"id"`
	Signature Signature `json:"signature"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

type Decision int

const (
	DecisionNew Decision = iota
	DecisionSuppressed
	DecisionEscalated
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "NEW"
	case DecisionSuppressed:
		return "SUPPRESSED"
	case DecisionEscalated:
		return "ESCALATED"
	}
	return "UNKNOWN"
}

// Propagates reports whether a finding with this decision continues
// downstream to the controller and emitter.
func (d Decision) Propagates() bool {
	return d == DecisionNew || d == DecisionEscalated
}

type DedupKey struct {
	SourceIP  netip.Addr
	Signature Signature
}

type DedupEntry struct {
	LastSeen        time.Time
	EpochStart      time.Time
	OccurrenceCount int
	CurrentSeverity Severity
}
