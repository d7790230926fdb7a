package input

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

const FormatAuto = "auto"

// AdapterConfig selects the record format and the clock used for records
// that arrive without a timestamp.
type AdapterConfig struct {
	Format   string
	Clock    func() time.Time
	Location *time.Location
	Observer ports.ProcessingObserver
}

// Adapter normalizes raw records into Events. With the auto format it
// tries, in order: JSON, netfilter, combined log, dashboard, generic.
type Adapter struct {
	format   string
	parsers  []LineParser
	clock    func() time.Time
	observer ports.ProcessingObserver

	accepted atomic.Uint64
	rejected atomic.Uint64
}

func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Format == "" {
		cfg.Format = FormatAuto
	}

	jsonParser, err := NewJSONParser()
	if err != nil {
		return nil, err
	}
	netfilter := &NetfilterParser{Now: cfg.Clock}
	dashboard := NewDashboardParser()
	if cfg.Location != nil {
		dashboard.Location = cfg.Location
	}
	all := []LineParser{jsonParser, netfilter, NewCombinedLogParser(), dashboard, NewGenericLineParser()}

	a := &Adapter{format: cfg.Format, clock: cfg.Clock, observer: cfg.Observer}
	if cfg.Format == FormatAuto {
		a.parsers = all
		return a, nil
	}
	for _, p := range all {
		if p.Format() == cfg.Format {
			a.parsers = []LineParser{p}
			return a, nil
		}
	}
	return nil, &domain.ConfigurationError{Field: "input.format", Value: cfg.Format, Reason: "unknown format"}
}

// Formats lists the names accepted by AdapterConfig.Format.
func Formats() []string {
	return []string{FormatAuto, "json", "netfilter", "combined", "dashboard", "generic"}
}

// Normalize parses one record. It has no side effects.
func (a *Adapter) Normalize(raw domain.RawRecord) (*domain.Event, error) {
	line := strings.TrimRight(raw.Data, "\r\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, domain.NewMalformedInput("empty record", raw.Data)
	}
	truncated := false
	if len(line) > domain.MaxRecordLength {
		line = line[:domain.MaxRecordLength]
		truncated = true
	}

	ev, err := a.parse(line)
	if err != nil {
		return nil, err
	}
	if !ev.SourceIP.IsValid() {
		return nil, domain.NewMalformedInput("invalid source address", line)
	}
	if !ev.Kind.Valid() {
		return nil, domain.NewMalformedInput(fmt.Sprintf("unknown event kind %q", ev.Kind), line)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = raw.ReceivedAt
		if ev.Timestamp.IsZero() {
			ev.Timestamp = a.clock()
		}
		ev.SyntheticTimestamp = true
	}
	ev.Truncated = ev.Truncated || truncated
	ev.Origin = raw.Origin
	return ev, nil
}

func (a *Adapter) parse(line string) (*domain.Event, error) {
	var firstErr error
	for _, p := range a.parsers {
		if len(a.parsers) > 1 && !p.Validate(line) {
			continue
		}
		ev, err := p.Parse(line)
		if err == nil {
			return ev, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		// A JSON object never falls through to the text formats.
		if p.Format() == "json" {
			break
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, domain.NewMalformedInput("no known format", line)
}

// Ingest is the stream entry point: malformed records are dropped and
// counted instead of returned as errors.
func (a *Adapter) Ingest(raw domain.RawRecord) (*domain.Event, bool) {
	ev, err := a.Normalize(raw)
	if err != nil {
		a.rejected.Add(1)
		if a.observer != nil {
			a.observer.IncrementEventsByResult("rejected")
		}
		log.Debug().Err(err).Str("origin", raw.Origin).Msg("Dropped malformed record")
		return nil, false
	}
	a.accepted.Add(1)
	return ev, true
}

func (a *Adapter) Format() string {
	return a.format
}

func (a *Adapter) Rejected() uint64 {
	return a.rejected.Load()
}

func (a *Adapter) Accepted() uint64 {
	return a.accepted.Load()
}

var _ ports.Normalizer = (*Adapter)(nil)
