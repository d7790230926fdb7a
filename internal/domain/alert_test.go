package domain

import (
	"encoding/json"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFinding(sev Severity) Finding {
	ev := &Event{
		SourceIP:  netip.MustParseAddr("10.0.0.9"),
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Kind:      EventKindHTTPRequest,
		Path:      "/items?id=1' UNION SELECT 1--",
	}
	return NewFinding("sqli", ev, SignatureSQLInjection, "union_based", sev, map[string]string{"field": "path"})
}

func TestNewFindingAlert(t *testing.T) {
	f := testFinding(SeverityHigh)
	alert := NewFindingAlert(f, DecisionNew)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, AlertKindFinding, alert.Kind)
	assert.Equal(t, "10.0.0.9", alert.IPString())
	assert.Equal(t, SeverityHigh, alert.Severity)
	assert.Equal(t, SignatureSQLInjection, alert.Signature)
	assert.Equal(t, "NEW", alert.Decision)
	require.NotNil(t, alert.Finding)
	assert.Equal(t, f.ID, alert.Finding.ID)
	assert.Nil(t, alert.Block)
	assert.True(t, alert.References())
	assert.Equal(t, "sqli", alert.Metadata["detector"])
	assert.Equal(t, "path", alert.Metadata["field"])
}

func TestBlockAlerts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := NewBlockEntry(testFinding(SeverityHigh), now, 10*time.Minute)

	tests := []struct {
		name string
		kind AlertKind
		want AlertKind
	}{
		{"block", AlertKindBlock, AlertKindBlock},
		{"unblock", AlertKindUnblock, AlertKindUnblock},
		{"unknown kind falls back to block", AlertKind("other"), AlertKindBlock},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			alert := NewBlockAlert(tc.kind, entry, now)
			assert.Equal(t, tc.want, alert.Kind)
			require.NotNil(t, alert.Block)
			assert.Nil(t, alert.Finding)
			assert.True(t, alert.References())
			assert.Equal(t, now.Add(10*time.Minute), alert.Block.ExpiresAt)
		})
	}
}

func TestHealthAlertReferencesBlock(t *testing.T) {
	now := time.Now()
	entry := NewBlockEntry(testFinding(SeverityHigh), now, time.Minute)
	entry.Pending = PendingBlock
	entry.Attempts = 3
	entry.LastError = "connection refused"

	alert := NewHealthAlert(entry, "sdn", now)

	assert.Equal(t, AlertKindSystemHealth, alert.Kind)
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.True(t, alert.References())
	assert.Equal(t, "sdn", alert.Metadata["sink"])
	assert.Equal(t, "connection refused", alert.Metadata["last_error"])
	assert.Contains(t, alert.Message, "failed 3 times")
}

func TestAlertToJSON(t *testing.T) {
	alert := NewFindingAlert(testFinding(SeverityMedium), DecisionEscalated)
	alert.Seq = 7

	jsonBytes, err := alert.ToJSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonBytes, &parsed))

	assert.Equal(t, "SQL_INJECTION", parsed["signature"])
	assert.Equal(t, "MEDIUM", parsed["severity"])
	assert.Equal(t, "finding", parsed["kind"])
	assert.Equal(t, float64(7), parsed["seq"])
	assert.NotContains(t, parsed, "block")
}

func TestAlertToJSONPretty(t *testing.T) {
	alert := NewFindingAlert(testFinding(SeverityLow), DecisionNew)

	jsonBytes, err := alert.ToJSONPretty()
	require.NoError(t, err)

	assert.Contains(t, string(jsonBytes), "\n")
}

func TestAlertAddMetadata(t *testing.T) {
	alert := &Alert{}
	alert.AddMetadata("sink", "iptables")
	assert.Equal(t, "iptables", alert.Metadata["sink"])
}
