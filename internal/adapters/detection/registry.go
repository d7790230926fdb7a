package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

// Config selects and tunes the detector set.
type Config struct {
	Enabled         []Family
	PortScan        PortScanConfig
	SYNFlood        SYNFloodConfig
	ExtraRules      map[Family][]*Pattern
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:         AllFamilies(),
		PortScan:        DefaultPortScanConfig(),
		SYNFlood:        DefaultSYNFloodConfig(),
		CleanupInterval: 30 * time.Second,
	}
}

// Set is the built detector list plus handles to the stateful members so
// callers can retune them and run their sweeps.
type Set struct {
	Detectors []ports.Detector
	PortScan  *PortScanDetector
	SYNFlood  *SYNFloodDetector
}

// Build constructs the enabled detectors in the fixed family order,
// regardless of the order they are listed in cfg.Enabled.
func Build(cfg Config) (*Set, error) {
	enabled := make(map[Family]bool, len(cfg.Enabled))
	for _, f := range cfg.Enabled {
		if _, ok := ParseFamily(string(f)); !ok {
			return nil, fmt.Errorf("unknown detector %q", f)
		}
		enabled[f] = true
	}
	if cfg.CleanupInterval > 0 {
		cfg.PortScan.CleanupInterval = cfg.CleanupInterval
		cfg.SYNFlood.CleanupInterval = cfg.CleanupInterval
	}

	set := &Set{}
	for _, f := range AllFamilies() {
		if !enabled[f] {
			continue
		}
		switch f {
		case FamilyPortScan:
			set.PortScan = NewPortScanDetector(cfg.PortScan)
			set.Detectors = append(set.Detectors, set.PortScan)
		case FamilySYNFlood:
			set.SYNFlood = NewSYNFloodDetector(cfg.SYNFlood)
			set.Detectors = append(set.Detectors, set.SYNFlood)
		default:
			patterns := append(DefaultPatterns(f), cfg.ExtraRules[f]...)
			d, err := NewSignatureDetector(f, patterns)
			if err != nil {
				return nil, err
			}
			set.Detectors = append(set.Detectors, d)
		}
	}
	if len(set.Detectors) == 0 {
		return nil, fmt.Errorf("no detectors enabled")
	}
	return set, nil
}

// Stateful returns the aggregating detectors that need periodic cleanup.
func (s *Set) Stateful() []ports.StatefulDetector {
	var out []ports.StatefulDetector
	if s.PortScan != nil {
		out = append(out, s.PortScan)
	}
	if s.SYNFlood != nil {
		out = append(out, s.SYNFlood)
	}
	return out
}

// SetThresholds retunes the aggregators. Zero values keep the current
// setting.
func (s *Set) SetThresholds(portThreshold int, portWindow time.Duration, floodThreshold int, floodWindow time.Duration) {
	if s.PortScan != nil {
		s.PortScan.SetThresholds(portThreshold, portWindow)
	}
	if s.SYNFlood != nil {
		s.SYNFlood.SetThresholds(floodThreshold, floodWindow)
	}
}

func (s *Set) StartCleanup(ctx context.Context) {
	if s.PortScan != nil {
		s.PortScan.StartCleanup(ctx)
	}
	if s.SYNFlood != nil {
		s.SYNFlood.StartCleanup(ctx)
	}
}

func (s *Set) Stop() {
	if s.PortScan != nil {
		s.PortScan.Stop()
	}
	if s.SYNFlood != nil {
		s.SYNFlood.Stop()
	}
}
