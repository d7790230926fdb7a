package detection

import (
	"context"
	"net/netip"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// SYNFloodConfig configures the SYN flood aggregator.
type SYNFloodConfig struct {
	Threshold       int             // Attempts that must be exceeded (default: 100)
	Window          time.Duration   // Sliding window (default: 5s)
	Severity        domain.Severity // Finding severity (default: HIGH)
	ShardCount      int
	SourcesPerShard int
	CleanupInterval time.Duration
}

func DefaultSYNFloodConfig() SYNFloodConfig {
	return SYNFloodConfig{
		Threshold:       100,
		Window:          5 * time.Second,
		Severity:        domain.SeverityHigh,
		ShardCount:      defaultShardCount,
		SourcesPerShard: defaultSourcesPerShard,
		CleanupInterval: 30 * time.Second,
	}
}

type floodProfile struct {
	attempts *timeRing
	lastSeen int64
}

// SYNFloodDetector counts connection attempts per source inside a sliding
// window. A ring of threshold+1 timestamps per source is all the state it
// keeps.
type SYNFloodDetector struct {
	profiles  *profileTable[*floodProfile]
	clock     streamClock
	threshold atomic.Int64
	window    atomic.Int64
	severity  domain.Severity
	janitor   *janitor
}

func NewSYNFloodDetector(cfg SYNFloodConfig) *SYNFloodDetector {
	def := DefaultSYNFloodConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if !cfg.Severity.Valid() {
		cfg.Severity = def.Severity
	}
	d := &SYNFloodDetector{
		profiles: newProfileTable[*floodProfile](cfg.ShardCount, cfg.SourcesPerShard),
		severity: cfg.Severity,
		janitor:  newJanitor(cfg.CleanupInterval),
	}
	d.threshold.Store(int64(cfg.Threshold))
	d.window.Store(int64(cfg.Window))
	return d
}

func (d *SYNFloodDetector) ID() string                  { return "syn_flood" }
func (d *SYNFloodDetector) Signature() domain.Signature { return domain.SignatureSYNFlood }

func (d *SYNFloodDetector) SetThresholds(threshold int, window time.Duration) {
	if threshold > 0 {
		d.threshold.Store(int64(threshold))
	}
	if window > 0 {
		d.window.Store(int64(window))
	}
}

func (d *SYNFloodDetector) Thresholds() (int, time.Duration) {
	return int(d.threshold.Load()), time.Duration(d.window.Load())
}

func (d *SYNFloodDetector) Inspect(ctx context.Context, ev *domain.Event) []domain.Finding {
	if ev == nil || !ev.IsConnectionAttempt() || !ev.SourceIP.IsValid() {
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
		fired bool
		count int
		first int64
	)
	d.profiles.with(ev.SourceIP, func() *floodProfile {
		return &floodProfile{attempts: newTimeRing(threshold + 1)}
	}, func(p *floodProfile) {
		if ts > p.lastSeen {
			p.lastSeen = ts
		}
		cutoff := p.lastSeen - window
		if ts < cutoff {
			return
		}
		p.attempts.resize(threshold + 1)
		p.attempts.evictBefore(cutoff)
		p.attempts.push(ts)
		if p.attempts.len() > threshold {
			fired = true
			count = p.attempts.len()
			first = p.attempts.oldest()
			p.attempts.reset()
		}
	})
	if !fired {
		return nil
	}

	evidence := map[string]string{
		"attempts":     strconv.Itoa(count),
		"threshold":    strconv.Itoa(threshold),
		"window":       time.Duration(window).String(),
		"first_packet": time.Unix(0, first).UTC().Format(time.RFC3339Nano),
	}
	if ev.DestinationPort != 0 {
		evidence["destination_port"] = strconv.Itoa(int(ev.DestinationPort))
	}
	return []domain.Finding{
		domain.NewFinding(d.ID(), ev, domain.SignatureSYNFlood, "connection_rate", d.severity, evidence),
	}
}

func (d *SYNFloodDetector) Profile(ip netip.Addr) (domain.SourceProfile, bool) {
	var snap domain.SourceProfile
	ok := d.profiles.peek(ip, func(p *floodProfile) {
		snap = domain.SourceProfile{
			SourceIP:        ip,
			WindowStart:     time.Unix(0, p.attempts.oldest()),
			LastSeen:        time.Unix(0, p.lastSeen),
			ConnectionCount: p.attempts.len(),
		}
	})
	return snap, ok
}

func (d *SYNFloodDetector) Cleanup(now time.Time) int {
	cutoff := d.clock.reference(now).UnixNano() - d.window.Load()
	return d.profiles.sweep(func(p *floodProfile) bool {
		return p.lastSeen < cutoff
	})
}

func (d *SYNFloodDetector) TrackedSources() int {
	return d.profiles.len()
}

func (d *SYNFloodDetector) StartCleanup(ctx context.Context) {
	d.janitor.run(ctx, d.ID(), d.Cleanup)
}

func (d *SYNFloodDetector) Stop() {
	d.janitor.halt()
}
