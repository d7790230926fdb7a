package domain

import (
	"net/netip"
	"strings"
	"time"
)

const (
	MaxPayloadLength = 8192
	MaxRecordLength  = 16384
)

type EventKind string

const (
	EventKindConnection  EventKind = "connection"
	EventKindHTTPRequest EventKind = "http_request"
	EventKindLogLine     EventKind = "log_line"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventKindConnection, EventKindHTTPRequest, EventKindLogLine:
		return true
	}
	return false
}

// RawRecord is a record exactly as a source delivered it.
type RawRecord struct {
	Data       string
	ReceivedAt time.Time
	Origin     string
}

// Event is the normalized unit of work. It is never mutated after
// normalization and is shared read-only between detectors.
type Event struct {
	SourceIP           netip.Addr `json:"source_ip"`
	DestinationIP      netip.Addr `json:"destination_ip,omitempty"`
	DestinationPort    uint16     `json:"destination_port,omitempty"`
	Protocol           string     `json:"protocol,omitempty"`
	Timestamp          time.Time  `json:"timestamp"`
	SyntheticTimestamp bool       `json:"synthetic_timestamp,omitempty"`
	Kind               EventKind  `json:"kind"`
	Payload            string     `json:"payload,omitempty"`
	Truncated          bool       `json:"truncated,omitempty"`

	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Flags      string `json:"flags,omitempty"`
	Origin     string `json:"origin,omitempty"`
}

// SetPayload stores p, cutting it at MaxPayloadLength.
func (e *Event) SetPayload(p string) {
	if len(p) > MaxPayloadLength {
		e.Payload = p[:MaxPayloadLength]
		e.Truncated = true
		return
	}
	e.Payload = p
}

func (e *Event) IPString() string {
	if !e.SourceIP.IsValid() {
		return ""
	}
	return e.SourceIP.String()
}

// IsConnectionAttempt reports whether the event opens a connection: a
// connection record whose flags are empty or carry SYN without ACK.
func (e *Event) IsConnectionAttempt() bool {
	if e.Kind != EventKindConnection {
		return false
	}
	if e.Flags == "" {
		return true
	}
	flags := strings.ToUpper(e.Flags)
	return strings.Contains(flags, "SYN") && !strings.Contains(flags, "ACK")
}

// InspectableText returns the fields signature detectors look at, keyed by
// field name. Empty fields are omitted.
func (e *Event) InspectableText() map[string]string {
	out := make(map[string]string, 3)
	if e.Path != "" {
		out["path"] = e.Path
	}
	if e.UserAgent != "" {
		out["user_agent"] = e.UserAgent
	}
	if e.Payload != "" && e.Payload != e.Path {
		out["payload"] = e.Payload
	}
	return out
}

// SourceProfile is a read-only snapshot of aggregator state for one source.
type SourceProfile struct {
	SourceIP        netip.Addr `json:"source_ip"`
	WindowStart     time.Time  `json:"window_start"`
	LastSeen        time.Time  `json:"last_seen"`
	Ports           []uint16   `json:"ports,omitempty"`
	ConnectionCount int        `json:"connection_count"`
}
