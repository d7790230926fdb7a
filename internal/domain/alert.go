package domain

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

type AlertKind string

const (
	AlertKindFinding      AlertKind = "finding"
	AlertKindBlock        AlertKind = "block"
	AlertKindUnblock      AlertKind = "unblock"
	AlertKindSystemHealth AlertKind = "system_health"
)

// Alert is an entry of the append-only alert stream. Exactly one of
// Finding and Block is set.
type Alert struct {
	ID        string            `json:"id"`
	Seq       uint64            `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      AlertKind         `json:"kind"`
	SourceIP  netip.Addr        `json:"source_ip"`
	Severity  Severity          `json:"severity"`
	Signature Signature         `json:"signature"`
	Decision  string            `json:"decision,omitempty"`
	Message   string            `json:"message"`
	Finding   *FindingRef       `json:"finding,omitempty"`
	Block     *BlockRef         `json:"block,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func NewFindingAlert(f Finding, decision Decision) *Alert {
	ref := f.Ref()
	a := &Alert{
		ID:        uuid.NewString(),
		Timestamp: f.Timestamp,
		Kind:      AlertKindFinding,
		SourceIP:  f.SourceIP,
		Severity:  f.Severity,
		Signature: f.Signature,
		Decision:  decision.String(),
		Message:   fmt.Sprintf("%s detected from %s", f.Signature, ipString(f.SourceIP)),
		Finding:   &ref,
		Metadata:  make(map[string]string, len(f.Evidence)+2),
	}
	for k, v := range f.Evidence {
		a.Metadata[k] = v
	}
	a.Metadata["detector"] = f.DetectorID
	if f.MatchType != "" {
		a.Metadata["match_type"] = f.MatchType
	}
	return a
}

// NewBlockAlert builds the alert for a block or unblock transition.
func NewBlockAlert(kind AlertKind, b *BlockEntry, at time.Time) *Alert {
	ref := b.Ref()
	var msg string
	switch kind {
	case AlertKindUnblock:
		msg = fmt.Sprintf("Block on %s expired", ipString(b.SourceIP))
	default:
		kind = AlertKindBlock
		msg = fmt.Sprintf("Blocked %s until %s", ipString(b.SourceIP), b.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return &Alert{
		ID:        uuid.NewString(),
		Timestamp: at,
		Kind:      kind,
		SourceIP:  b.SourceIP,
		Severity:  b.Reason.Severity,
		Signature: b.Reason.Signature,
		Message:   msg,
		Block:     &ref,
		Metadata:  make(map[string]string),
	}
}

// NewHealthAlert reports a sink that keeps failing for the given entry.
func NewHealthAlert(b *BlockEntry, sink string, at time.Time) *Alert {
	ref := b.Ref()
	a := &Alert{
		ID:        uuid.NewString(),
		Timestamp: at,
		Kind:      AlertKindSystemHealth,
		SourceIP:  b.SourceIP,
		Severity:  SeverityCritical,
		Signature: SignatureSinkHealth,
		Message: fmt.Sprintf("Countermeasure sink %s failed %d times (%s pending for %s)",
			sink, b.Attempts, b.Pending, ipString(b.SourceIP)),
		Block:    &ref,
		Metadata: map[string]string{"sink": sink, "pending": string(b.Pending)},
	}
	if b.LastError != "" {
		a.Metadata["last_error"] = b.LastError
	}
	return a
}

// References reports whether the alert points at exactly one subject.
func (a *Alert) References() bool {
	return (a.Finding != nil) != (a.Block != nil)
}

func (a *Alert) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

func (a *Alert) ToJSONPretty() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

func (a *Alert) AddMetadata(key, value string) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]string)
	}
	a.Metadata[key] = value
}

func (a *Alert) IPString() string {
	return ipString(a.SourceIP)
}

func ipString(ip netip.Addr) string {
	if !ip.IsValid() {
		return "unknown"
	}
	return ip.String()
}
