package input

import (
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var tcpFlagTokens = map[string]bool{
	"SYN": true, "ACK": true, "FIN": true, "RST": true, "PSH": true, "URG": true, "CWR": true, "ECE": true,
}

// NetfilterParser reads kernel LOG target lines, e.g.
//
//	May  1 12:00:00 gw kernel: [ 1.2] FW-IN: IN=eth0 OUT= SRC=10.0.0.5 DST=10.0.0.1 LEN=60 PROTO=TCP SPT=40000 DPT=22 WINDOW=64240 RES=0x00 SYN URGP=0
//
// into connection events. A leading RFC3339 or syslog stamp becomes the
// event timestamp; syslog stamps take their year from Now.
type NetfilterParser struct {
	Now func() time.Time
}

func NewNetfilterParser() *NetfilterParser {
	return &NetfilterParser{Now: time.Now}
}

func (p *NetfilterParser) Parse(line string) (*domain.Event, error) {
	srcAt := strings.Index(line, "SRC=")
	if srcAt < 0 {
		return nil, domain.NewMalformedInput("missing SRC field", line)
	}

	ev := &domain.Event{
		Kind:      domain.EventKindConnection,
		Timestamp: p.prefixTimestamp(line),
	}

	var flags []string
	seenSrc := false
	for _, tok := range strings.Fields(line[srcAt:]) {
		key, value, hasValue := strings.Cut(tok, "=")
		if !hasValue {
			if tcpFlagTokens[tok] {
				flags = append(flags, tok)
			}
			continue
		}
		switch key {
		case "SRC":
			addr, err := netip.ParseAddr(value)
			if err != nil {
				return nil, domain.NewMalformedInput("invalid source address", line)
			}
			ev.SourceIP = addr.Unmap()
			seenSrc = true
		case "DST":
			if addr, err := netip.ParseAddr(value); err == nil {
				ev.DestinationIP = addr.Unmap()
			}
		case "PROTO":
			ev.Protocol = strings.ToUpper(value)
		case "DPT":
			port, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return nil, domain.NewMalformedInput("invalid destination port", line)
			}
			ev.DestinationPort = uint16(port)
		}
	}
	if !seenSrc {
		return nil, domain.NewMalformedInput("missing source address", line)
	}
	if ev.Protocol == "" {
		return nil, domain.NewMalformedInput("missing PROTO field", line)
	}
	ev.Flags = strings.Join(flags, " ")
	ev.SetPayload(strings.Clone(line))
	return ev, nil
}

func (p *NetfilterParser) prefixTimestamp(line string) time.Time {
	first, _, _ := strings.Cut(line, " ")
	if ts, err := time.Parse(time.RFC3339Nano, first); err == nil {
		return ts
	}
	if len(line) < len(time.Stamp) {
		return time.Time{}
	}
	ts, err := time.Parse(time.Stamp, line[:len(time.Stamp)])
	if err != nil {
		return time.Time{}
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return ts.AddDate(now().Year(), 0, 0)
}

func (p *NetfilterParser) Format() string {
	return "netfilter"
}

func (p *NetfilterParser) Validate(line string) bool {
	return strings.Contains(line, "SRC=") && strings.Contains(line, "PROTO=")
}
