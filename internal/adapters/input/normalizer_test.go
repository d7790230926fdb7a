package input

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, format string) *Adapter {
	t.Helper()
	a, err := NewAdapter(AdapterConfig{Format: format, Clock: func() time.Time { return fixedNow }, Location: time.UTC})
	require.NoError(t, err)
	return a
}

type resultCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *resultCounter) IncrementEventsByResult(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[result]++
}

func TestAdapter_AutoDetect(t *testing.T) {
	a := newTestAdapter(t, FormatAuto)

	tests := []struct {
		name     string
		line     string
		wantKind domain.EventKind
		wantIP   string
	}{
		{"json", `{"kind":"connection","source_ip":"10.0.0.5","destination_port":22}`, domain.EventKindConnection, "10.0.0.5"},
		{"netfilter", "SRC=10.0.0.6 DST=10.0.0.1 PROTO=TCP SPT=1 DPT=80 SYN", domain.EventKindConnection, "10.0.0.6"},
		{"combined", `10.0.0.7 - - [01/May/2024:12:00:00 +0000] "GET /index.html HTTP/1.1" 200 10 "-" "curl/8"`, domain.EventKindHTTPRequest, "10.0.0.7"},
		{"dashboard", "2024-05-01 12:00:00,000 - IP: 10.0.0.8 - Request: /home | User-Agent: Mozilla", domain.EventKindHTTPRequest, "10.0.0.8"},
		{"generic", "auth failure from IP: 10.0.0.9", domain.EventKindLogLine, "10.0.0.9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := a.Normalize(domain.RawRecord{Data: tc.line, Origin: "test"})
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, ev.Kind)
			assert.Equal(t, tc.wantIP, ev.SourceIP.String())
			assert.Equal(t, "test", ev.Origin)
		})
	}
}

func TestAdapter_SyntheticTimestamp(t *testing.T) {
	a := newTestAdapter(t, FormatAuto)
	received := fixedNow.Add(-time.Minute)

	ev, err := a.Normalize(domain.RawRecord{Data: "SRC=10.0.0.6 DST=10.0.0.1 PROTO=TCP DPT=80", ReceivedAt: received})
	require.NoError(t, err)
	assert.True(t, ev.SyntheticTimestamp)
	assert.Equal(t, received, ev.Timestamp)

	ev, err = a.Normalize(domain.RawRecord{Data: "SRC=10.0.0.6 DST=10.0.0.1 PROTO=TCP DPT=80"})
	require.NoError(t, err)
	assert.True(t, ev.SyntheticTimestamp)
	assert.Equal(t, fixedNow, ev.Timestamp)

	ev, err = a.Normalize(domain.RawRecord{Data: "2024-05-01T11:00:00Z SRC=10.0.0.6 DST=10.0.0.1 PROTO=TCP DPT=80"})
	require.NoError(t, err)
	assert.False(t, ev.SyntheticTimestamp)
}

func TestAdapter_Malformed(t *testing.T) {
	a := newTestAdapter(t, FormatAuto)

	for name, line := range map[string]string{
		"empty":            "",
		"whitespace":       "   \r\n",
		"no address":       "the quick brown fox",
		"schema violation": `{"kind":"connection","source_ip":"10.0.0.1","destination_port":-1}`,
		"json without ip":  `{"kind":"log_line","payload":"IP: 10.0.0.1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Normalize(domain.RawRecord{Data: line})
			require.Error(t, err)
			assert.True(t, domain.IsMalformed(err))
		})
	}
}

func TestAdapter_IngestCountsRejected(t *testing.T) {
	counter := &resultCounter{}
	a, err := NewAdapter(AdapterConfig{Observer: counter})
	require.NoError(t, err)

	lines := []string{
		"garbage",
		"SRC=10.0.0.6 DST=10.0.0.1 PROTO=TCP DPT=80",
		`{"broken":`,
		"198.51.100.1 hello",
	}
	accepted := 0
	for _, l := range lines {
		if _, ok := a.Ingest(domain.RawRecord{Data: l}); ok {
			accepted++
		}
	}
	assert.Equal(t, 2, accepted)
	assert.Equal(t, uint64(2), a.Rejected())
	assert.Equal(t, uint64(2), a.Accepted())
	assert.Equal(t, 2, counter.counts["rejected"])
}

func TestAdapter_FixedFormat(t *testing.T) {
	a := newTestAdapter(t, "netfilter")
	_, err := a.Normalize(domain.RawRecord{Data: "198.51.100.1 hello"})
	assert.Error(t, err)

	_, err = NewAdapter(AdapterConfig{Format: "xml"})
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestAdapter_OversizedRecordTruncated(t *testing.T) {
	a := newTestAdapter(t, FormatAuto)
	line := "198.51.100.1 " + strings.Repeat("A", domain.MaxRecordLength*2)

	ev, err := a.Normalize(domain.RawRecord{Data: line})
	require.NoError(t, err)
	assert.True(t, ev.Truncated)
	assert.LessOrEqual(t, len(ev.Payload), domain.MaxPayloadLength)
}

func TestAdapter_IngestRejectsSchemaViolations(t *testing.T) {
	counter := &resultCounter{}
	a, err := NewAdapter(AdapterConfig{Format: "json", Observer: counter})
	require.NoError(t, err)

	tests := []struct {
		name string
		line string
		ok   bool
	}{
		{"valid connection", `{"kind":"connection","source_ip":"10.0.0.1","destination_port":443}`, true},
		{"port out of range", `{"kind":"connection","source_ip":"10.0.0.1","destination_port":70000}`, false},
		{"connection without port", `{"kind":"connection","source_ip":"10.0.0.1"}`, false},
		{"fractional status", `{"kind":"http_request","source_ip":"10.0.0.1","status_code":200.5}`, false},
		{"unknown kind", `{"kind":"telepathy","source_ip":"10.0.0.1"}`, false},
	}
	rejected := 0
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := a.Ingest(domain.RawRecord{Data: tc.line})
			assert.Equal(t, tc.ok, ok)
		})
		if !tc.ok {
			rejected++
		}
	}
	assert.Equal(t, uint64(rejected), a.Rejected())
	assert.Equal(t, rejected, counter.counts["rejected"])
}

func TestSchemaValidator_Validate(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	assert.NoError(t, v.Validate(`{"remote_addr":"10.0.0.1","request_uri":"/","status":200}`))
	assert.Error(t, v.Validate(`{"request_uri":"/"}`))
	assert.Error(t, v.Validate(`{"source_ip":`))

	require.Error(t, v.Replace([]byte(`{"type": 12}`)))
	assert.NoError(t, v.Validate(`{"source_ip":"10.0.0.1"}`), "failed replace keeps the old schema")
}
