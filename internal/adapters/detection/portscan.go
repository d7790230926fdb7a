package detection

import (
	"context"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// PortScanConfig configures the port scan aggregator.
type PortScanConfig struct {
	Threshold       int             // Distinct ports that must be exceeded (default: 20)
	Window          time.Duration   // Sliding window (default: 60s)
	Severity        domain.Severity // Finding severity (default: HIGH)
	ShardCount      int             // Number of shards (default: 16)
	SourcesPerShard int             // LRU capacity per shard (default: 10000)
	CleanupInterval time.Duration   // Idle sweep interval (default: 30s)
}

func DefaultPortScanConfig() PortScanConfig {
	return PortScanConfig{
		Threshold:       20,
		Window:          60 * time.Second,
		Severity:        domain.SeverityHigh,
		ShardCount:      defaultShardCount,
		SourcesPerShard: defaultSourcesPerShard,
		CleanupInterval: 30 * time.Second,
	}
}

// portProfile holds the distinct ports a source touched inside the window.
// Its size never exceeds threshold+1: reaching that fires and clears it.
type portProfile struct {
	ports       map[uint16]int64 // port -> newest hit (unix nanos)
	windowStart int64
	lastSeen    int64
	connections int
}

func newPortProfile() *portProfile {
	return &portProfile{ports: make(map[uint16]int64, 8)}
}

func (p *portProfile) reset() {
	clear(p.ports)
	p.windowStart = 0
	p.connections = 0
}

// PortScanDetector counts distinct destination ports per source within a
// sliding window and fires when the count exceeds the threshold.
//
// Thread Safety: Safe for concurrent Inspect calls. State is sharded by
// source address.
type PortScanDetector struct {
	profiles  *profileTable[*portProfile]
	clock     streamClock
	threshold atomic.Int64
	window    atomic.Int64
	severity  domain.Severity
	janitor   *janitor
}

func NewPortScanDetector(cfg PortScanConfig) *PortScanDetector {
	def := DefaultPortScanConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if !cfg.Severity.Valid() {
		cfg.Severity = def.Severity
	}
	d := &PortScanDetector{
		profiles: newProfileTable[*portProfile](cfg.ShardCount, cfg.SourcesPerShard),
		severity: cfg.Severity,
		janitor:  newJanitor(cfg.CleanupInterval),
	}
	d.threshold.Store(int64(cfg.Threshold))
	d.window.Store(int64(cfg.Window))
	return d
}

func (d *PortScanDetector) ID() string                  { return "port_scan" }
func (d *PortScanDetector) Signature() domain.Signature { return domain.SignaturePortScan }

// SetThresholds swaps threshold and window. Existing profiles adopt the new
// values on their next event.
func (d *PortScanDetector) SetThresholds(threshold int, window time.Duration) {
	if threshold > 0 {
		d.threshold.Store(int64(threshold))
	}
	if window > 0 {
		d.window.Store(int64(window))
	}
}

func (d *PortScanDetector) Thresholds() (int, time.Duration) {
	return int(d.threshold.Load()), time.Duration(d.window.Load())
}

func (d *PortScanDetector) Inspect(ctx context.Context, ev *domain.Event) []domain.Finding {
	if ev == nil || ev.Kind != domain.EventKindConnection || ev.DestinationPort == 0 || !ev.SourceIP.IsValid() {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	d.clock.observe(ev.Timestamp)

	threshold := int(d.threshold.Load())
	window := d.window.Load()
	ts := ev.Timestamp.UnixNano()

	var (
		fired       bool
		ports       []uint16
		windowStart int64
		connections int
	)
	d.profiles.with(ev.SourceIP, newPortProfile, func(p *portProfile) {
		if ts > p.lastSeen {
			p.lastSeen = ts
		}
		cutoff := p.lastSeen - window
		for port, seen := range p.ports {
			if seen < cutoff {
				delete(p.ports, port)
			}
		}
		if ts < cutoff {
			return
		}
		if len(p.ports) == 0 {
			p.windowStart = ts
			p.connections = 0
		}
		if prev, ok := p.ports[ev.DestinationPort]; !ok || ts > prev {
			p.ports[ev.DestinationPort] = ts
		}
		p.connections++

		if len(p.ports) > threshold {
			fired = true
			ports = sortedPorts(p.ports)
			windowStart = p.windowStart
			connections = p.connections
			p.reset()
		}
	})
	if !fired {
		return nil
	}

	evidence := map[string]string{
		"distinct_ports": strconv.Itoa(len(ports)),
		"threshold":      strconv.Itoa(threshold),
		"window":         time.Duration(window).String(),
		"connections":    strconv.Itoa(connections),
		"ports":          joinPorts(ports, 32),
		"window_start":   time.Unix(0, windowStart).UTC().Format(time.RFC3339Nano),
	}
	return []domain.Finding{
		domain.NewFinding(d.ID(), ev, domain.SignaturePortScan, "distinct_ports", d.severity, evidence),
	}
}

// Profile returns a snapshot of the tracked state for ip.
func (d *PortScanDetector) Profile(ip netip.Addr) (domain.SourceProfile, bool) {
	var snap domain.SourceProfile
	ok := d.profiles.peek(ip, func(p *portProfile) {
		snap = domain.SourceProfile{
			SourceIP:        ip,
			WindowStart:     time.Unix(0, p.windowStart),
			LastSeen:        time.Unix(0, p.lastSeen),
			Ports:           sortedPorts(p.ports),
			ConnectionCount: p.connections,
		}
	})
	return snap, ok
}

// Cleanup reclaims sources with no port inside the window.
func (d *PortScanDetector) Cleanup(now time.Time) int {
	cutoff := d.clock.reference(now).UnixNano() - d.window.Load()
	return d.profiles.sweep(func(p *portProfile) bool {
		return p.lastSeen < cutoff
	})
}

func (d *PortScanDetector) TrackedSources() int {
	return d.profiles.len()
}

// StartCleanup launches the background idle sweep.
func (d *PortScanDetector) StartCleanup(ctx context.Context) {
	d.janitor.run(ctx, d.ID(), d.Cleanup)
}

func (d *PortScanDetector) Stop() {
	d.janitor.halt()
}

func sortedPorts(set map[uint16]int64) []uint16 {
	out := make([]uint16, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinPorts(ports []uint16, limit int) string {
	var b strings.Builder
	for i, p := range ports {
		if i == limit {
			b.WriteString(",...")
			break
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(p)))
	}
	return b.String()
}
