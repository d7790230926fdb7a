package app

import (
	"context"
	"fmt"
	"math/rand"
	"net/netip"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/detection"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

func mixedEvents() []*domain.Event {
	var events []*domain.Event
	for port := 1; port <= 25; port++ {
		events = append(events, &domain.Event{
			SourceIP:        netip.MustParseAddr("10.0.0.5"),
			DestinationIP:   netip.MustParseAddr("10.0.0.1"),
			DestinationPort: uint16(port),
			Protocol:        "TCP",
			Flags:           "SYN",
			Timestamp:       t0.Add(time.Duration(port) * 100 * time.Millisecond),
			Kind:            domain.EventKindConnection,
		})
	}
	paths := []string{
		"/index.html",
		"/search?id=1 UNION SELECT username,password FROM users",
		"/ping?host=127.0.0.1;cat /etc/passwd",
		"/comment?text=<script>alert(1)</script>",
		"/.env",
		"/download?file=../../etc/shadow",
		"/login?user=admin' OR 1=1 --",
	}
	for i, p := range paths {
		events = append(events, httpEvent(fmt.Sprintf("10.0.2.%d", i+1), p, t0.Add(time.Duration(i)*time.Second)))
	}
	line := &domain.Event{SourceIP: netip.MustParseAddr("10.0.3.1"), Timestamp: t0, Kind: domain.EventKindLogLine}
	line.SetPayload("input rejected: a && whoami")
	return append(events, line)
}

func findingKey(f domain.Finding) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", f.DetectorID, f.SourceIP, f.Signature, f.MatchType, f.Severity, f.Timestamp.Format(time.RFC3339Nano))
}

// inspectAll runs a fresh detector set, reordered by perm, over events.
func inspectAll(t *testing.T, perm []int, parallel bool) []string {
	t.Helper()
	set, err := detection.Build(detection.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, perm, len(set.Detectors))

	dets := make([]ports.Detector, len(perm))
	for i, j := range perm {
		dets[i] = set.Detectors[j]
	}
	dedup, err := NewDedupCache(DedupConfig{Policy: DefaultDedupPolicy()})
	require.NoError(t, err)
	p, err := NewPipeline(PipelineConfig{Lanes: 1, BufferSize: 10, ParallelDetectors: parallel}, dets, PipelineDeps{
		Dedup:   dedup,
		Emitter: NewEmitter(DefaultEmitterConfig(), nil),
	})
	require.NoError(t, err)

	var keys []string
	for _, ev := range mixedEvents() {
		for _, f := range p.inspect(context.Background(), ev) {
			keys = append(keys, findingKey(f))
		}
	}
	sort.Strings(keys)
	return keys
}

func TestPipeline_DetectorOrderDoesNotChangeFindings(t *testing.T) {
	n := len(detection.AllFamilies())
	identity := make([]int, n)
	reversed := make([]int, n)
	for i := range identity {
		identity[i] = i
		reversed[i] = n - 1 - i
	}

	want := inspectAll(t, identity, false)
	require.NotEmpty(t, want)
	assert.Contains(t, want, findingKey(domain.Finding{
		DetectorID: "port_scan",
		SourceIP:   netip.MustParseAddr("10.0.0.5"),
		Signature:  domain.SignaturePortScan,
		MatchType:  "distinct_ports",
		Severity:   domain.SeverityHigh,
		Timestamp:  t0.Add(21 * 100 * time.Millisecond),
	}))

	rng := rand.New(rand.NewSource(7))
	perms := map[string][]int{"identity": identity, "reversed": reversed}
	for i := 0; i < 5; i++ {
		perm := append([]int(nil), identity...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		perms[fmt.Sprintf("shuffle %d", i)] = perm
	}

	for name, perm := range perms {
		for _, parallel := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s parallel=%v", name, parallel), func(t *testing.T) {
				assert.Equal(t, want, inspectAll(t, perm, parallel))
			})
		}
	}
}
