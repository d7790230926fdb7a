package detection

import (
	"context"
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func connEvent(src string, port uint16, ts time.Time, flags string) *domain.Event {
	return &domain.Event{
		SourceIP:        netip.MustParseAddr(src),
		DestinationIP:   netip.MustParseAddr("10.0.0.1"),
		DestinationPort: port,
		Protocol:        "TCP",
		Timestamp:       ts,
		Kind:            domain.EventKindConnection,
		Flags:           flags,
	}
}

func portScanTestConfig(threshold int, window time.Duration) PortScanConfig {
	cfg := DefaultPortScanConfig()
	cfg.Threshold = threshold
	cfg.Window = window
	cfg.ShardCount = 4
	cfg.SourcesPerShard = 100
	cfg.CleanupInterval = time.Hour
	return cfg
}

func TestPortScanDetector_FiresOnceThresholdExceeded(t *testing.T) {
	d := NewPortScanDetector(portScanTestConfig(20, 60*time.Second))
	defer d.Stop()
	ctx := context.Background()

	var findings []domain.Finding
	firstAt := -1
	for i := 0; i < 50; i++ {
		ts := baseTime.Add(time.Duration(i) * 200 * time.Millisecond)
		got := d.Inspect(ctx, connEvent("10.0.0.5", uint16(i+1), ts, "SYN"))
		if len(got) > 0 && firstAt < 0 {
			firstAt = i
		}
		findings = append(findings, got...)
	}

	require.Len(t, findings, 2, "fires at port 21 and again after the reset at port 42")
	assert.Equal(t, 20, firstAt)
	f := findings[0]
	assert.Equal(t, domain.SignaturePortScan, f.Signature)
	assert.Equal(t, domain.SeverityHigh, f.Severity)
	assert.Equal(t, "21", f.Evidence["distinct_ports"])
	assert.Equal(t, "20", f.Evidence["threshold"])
	assert.Equal(t, "10.0.0.5", f.SourceIP.String())
}

func TestPortScanDetector_Thresholds(t *testing.T) {
	tests := []struct {
		name     string
		ports    int
		spacing  time.Duration
		repeat   bool
		findings int
	}{
		{"exactly threshold", 20, time.Second, false, 0},
		{"one above threshold", 21, time.Second, false, 1},
		{"spread beyond window", 40, 4 * time.Second, false, 0},
		{"same port repeatedly", 100, 10 * time.Millisecond, true, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewPortScanDetector(portScanTestConfig(20, 60*time.Second))
			total := 0
			for i := 0; i < tc.ports; i++ {
				port := uint16(i + 1)
				if tc.repeat {
					port = 443
				}
				ev := connEvent("192.168.1.10", port, baseTime.Add(time.Duration(i)*tc.spacing), "")
				total += len(d.Inspect(context.Background(), ev))
			}
			assert.Equal(t, tc.findings, total)
		})
	}
}

func TestPortScanDetector_WindowExpiry(t *testing.T) {
	d := NewPortScanDetector(portScanTestConfig(20, 60*time.Second))
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		assert.Empty(t, d.Inspect(ctx, connEvent("10.1.1.1", uint16(100+i), baseTime, "SYN")))
	}
	later := baseTime.Add(61 * time.Second)
	for i := 0; i < 10; i++ {
		assert.Empty(t, d.Inspect(ctx, connEvent("10.1.1.1", uint16(200+i), later, "SYN")))
	}

	profile, ok := d.Profile(netip.MustParseAddr("10.1.1.1"))
	require.True(t, ok)
	assert.Len(t, profile.Ports, 10)
}

func TestPortScanDetector_SourcesIndependent(t *testing.T) {
	d := NewPortScanDetector(portScanTestConfig(5, time.Minute))
	ctx := context.Background()

	total := 0
	for i := 0; i < 5; i++ {
		for _, src := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
			total += len(d.Inspect(ctx, connEvent(src, uint16(i+1), baseTime, "SYN")))
		}
	}
	assert.Zero(t, total)
	assert.Equal(t, 3, d.TrackedSources())
}

func TestPortScanDetector_IgnoresNonConnections(t *testing.T) {
	d := NewPortScanDetector(portScanTestConfig(1, time.Minute))
	ev := &domain.Event{SourceIP: netip.MustParseAddr("10.0.0.9"), Kind: domain.EventKindHTTPRequest, DestinationPort: 80, Timestamp: baseTime}
	for i := 0; i < 5; i++ {
		assert.Empty(t, d.Inspect(context.Background(), ev))
	}
	assert.Zero(t, d.TrackedSources())
}

func TestPortScanDetector_SetThresholds(t *testing.T) {
	d := NewPortScanDetector(portScanTestConfig(20, time.Minute))
	d.SetThresholds(3, 0)

	threshold, window := d.Thresholds()
	assert.Equal(t, 3, threshold)
	assert.Equal(t, time.Minute, window)

	total := 0
	for i := 0; i < 4; i++ {
		total += len(d.Inspect(context.Background(), connEvent("10.2.2.2", uint16(i+1), baseTime, "SYN")))
	}
	assert.Equal(t, 1, total)
}

func TestPortScanDetector_Cleanup(t *testing.T) {
	d := NewPortScanDetector(portScanTestConfig(20, time.Minute))
	ctx := context.Background()

	d.Inspect(ctx, connEvent("10.3.3.1", 22, baseTime, "SYN"))
	d.Inspect(ctx, connEvent("10.3.3.2", 22, baseTime.Add(5*time.Minute), "SYN"))
	require.Equal(t, 2, d.TrackedSources())

	removed := d.Cleanup(time.Now())

	assert.Equal(t, 1, removed)
	_, ok := d.Profile(netip.MustParseAddr("10.3.3.2"))
	assert.True(t, ok)
}

func TestPortScanDetector_LRUBound(t *testing.T) {
	cfg := portScanTestConfig(20, time.Minute)
	cfg.ShardCount = 1
	cfg.SourcesPerShard = 10
	d := NewPortScanDetector(cfg)

	for i := 0; i < 50; i++ {
		d.Inspect(context.Background(), connEvent("10.9.0."+strconv.Itoa(i+1), 80, baseTime, "SYN"))
	}
	assert.Equal(t, 10, d.TrackedSources())
}

func TestPortScanDetector_ConcurrentSources(t *testing.T) {
	d := NewPortScanDetector(portScanTestConfig(20, time.Minute))
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			src := "172.16.0." + strconv.Itoa(s+1)
			n := 0
			for p := 0; p < 21; p++ {
				n += len(d.Inspect(context.Background(), connEvent(src, uint16(p+1), baseTime, "SYN")))
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	assert.Equal(t, 8, total)
}

func synFloodTestConfig(threshold int, window time.Duration) SYNFloodConfig {
	cfg := DefaultSYNFloodConfig()
	cfg.Threshold = threshold
	cfg.Window = window
	cfg.ShardCount = 4
	cfg.CleanupInterval = time.Hour
	return cfg
}

func TestSYNFloodDetector_Thresholds(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		spacing  time.Duration
		flags    string
		findings int
	}{
		{"at threshold", 100, 5 * time.Millisecond, "SYN", 0},
		{"above threshold", 101, 5 * time.Millisecond, "SYN", 1},
		{"two bursts", 202, 5 * time.Millisecond, "SYN", 2},
		{"slow rate", 300, 100 * time.Millisecond, "SYN", 0},
		{"handshake replies ignored", 300, time.Millisecond, "SYN ACK", 0},
		{"bare connection records count", 101, time.Millisecond, "", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewSYNFloodDetector(synFloodTestConfig(100, 5*time.Second))
			total := 0
			var last []domain.Finding
			for i := 0; i < tc.attempts; i++ {
				got := d.Inspect(context.Background(), connEvent("203.0.113.7", 80, baseTime.Add(time.Duration(i)*tc.spacing), tc.flags))
				if len(got) > 0 {
					last = got
				}
				total += len(got)
			}
			assert.Equal(t, tc.findings, total)
			if tc.findings > 0 {
				assert.Equal(t, domain.SignatureSYNFlood, last[0].Signature)
				assert.Equal(t, "101", last[0].Evidence["attempts"])
			}
		})
	}
}

func TestSYNFloodDetector_ResizeOnThresholdChange(t *testing.T) {
	d := NewSYNFloodDetector(synFloodTestConfig(100, 5*time.Second))
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		assert.Empty(t, d.Inspect(ctx, connEvent("203.0.113.8", 80, baseTime, "SYN")))
	}

	d.SetThresholds(10, 0)
	got := d.Inspect(ctx, connEvent("203.0.113.8", 80, baseTime, "SYN"))
	require.Len(t, got, 1)

	profile, ok := d.Profile(netip.MustParseAddr("203.0.113.8"))
	require.True(t, ok)
	assert.Zero(t, profile.ConnectionCount)
}

func TestSYNFloodDetector_Cleanup(t *testing.T) {
	d := NewSYNFloodDetector(synFloodTestConfig(100, 5*time.Second))
	d.Inspect(context.Background(), connEvent("198.51.100.1", 80, baseTime, "SYN"))
	d.Inspect(context.Background(), connEvent("198.51.100.2", 80, baseTime.Add(time.Minute), "SYN"))

	assert.Equal(t, 1, d.Cleanup(time.Now()))
	assert.Equal(t, 1, d.TrackedSources())
}

func TestTimeRing(t *testing.T) {
	r := newTimeRing(3)
	for i := int64(1); i <= 5; i++ {
		r.push(i)
	}
	assert.Equal(t, 3, r.len())
	assert.Equal(t, int64(3), r.oldest())

	r.evictBefore(5)
	assert.Equal(t, 1, r.len())

	r.push(6)
	r.push(7)
	r.resize(2)
	assert.Equal(t, 2, r.len())
	assert.Equal(t, int64(6), r.oldest())

	r.reset()
	assert.Zero(t, r.len())
}
