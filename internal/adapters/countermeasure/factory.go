package countermeasure

import (
	"fmt"
	"strings"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/bus"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

// Options carries what the individual sinks need.
type Options struct {
	Runner      Runner
	SDNURL      string
	SDNDPID     int
	SinkTimeout time.Duration
	// Publisher is required by the nats sink.
	Publisher bus.Publisher
}

// Build creates the named sinks in order. Duplicates are ignored.
func Build(names []string, opts Options) ([]ports.BlockSink, error) {
	seen := make(map[string]bool, len(names))
	var sinks []ports.BlockSink
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "log":
			sinks = append(sinks, NewLogSink())
		case "iptables":
			sinks = append(sinks, NewIPTablesSink(opts.Runner))
		case "netsh":
			sinks = append(sinks, NewNetshSink(opts.Runner))
		case "sdn":
			sinks = append(sinks, NewSDNSink(SDNConfig{BaseURL: opts.SDNURL, DPID: opts.SDNDPID, Timeout: opts.SinkTimeout}))
		case "nats":
			if opts.Publisher == nil {
				return nil, &domain.ConfigurationError{Field: "countermeasure.sinks", Value: name, Reason: "nats sink requires a NATS connection"}
			}
			sinks = append(sinks, NewNATSSink(opts.Publisher))
		case "recording":
			sinks = append(sinks, NewRecordingSink(""))
		default:
			return nil, &domain.ConfigurationError{Field: "countermeasure.sinks", Value: raw, Reason: "unknown sink"}
		}
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no countermeasure sinks configured")
	}
	return sinks, nil
}
