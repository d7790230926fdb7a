package app

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func finding(ip string, sig domain.Signature, sev domain.Severity, at time.Time) domain.Finding {
	ev := &domain.Event{SourceIP: netip.MustParseAddr(ip), Timestamp: at, Kind: domain.EventKindHTTPRequest}
	return domain.NewFinding("test", ev, sig, "", sev, nil)
}

func httpEvent(ip, path string, at time.Time) *domain.Event {
	ev := &domain.Event{
		SourceIP:  netip.MustParseAddr(ip),
		Timestamp: at,
		Kind:      domain.EventKindHTTPRequest,
		Method:    "GET",
		Path:      path,
	}
	ev.SetPayload(path)
	return ev
}

// mockDetector fires on every event whose path starts with "/attack".
type mockDetector struct {
	id          string
	severity    domain.Severity
	shouldPanic bool
	delay       time.Duration
	inspected   atomic.Int64
}

func (m *mockDetector) Inspect(ctx context.Context, ev *domain.Event) []domain.Finding {
	m.inspected.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.shouldPanic {
		panic("intentional panic for testing")
	}
	if len(ev.Path) >= 7 && ev.Path[:7] == "/attack" {
		return []domain.Finding{domain.NewFinding(m.ID(), ev, m.Signature(), "mock", m.severity, nil)}
	}
	return nil
}

func (m *mockDetector) ID() string {
	if m.id == "" {
		return "mock"
	}
	return m.id
}

func (m *mockDetector) Signature() domain.Signature { return domain.SignatureSQLInjection }

type mockAlerter struct {
	mu      sync.Mutex
	alerts  []*domain.Alert
	flushed atomic.Int64
	closed  atomic.Bool
	delay   time.Duration
}

func (m *mockAlerter) Send(ctx context.Context, alert *domain.Alert) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockAlerter) Flush() error { m.flushed.Add(1); return nil }
func (m *mockAlerter) Close() error { m.closed.Store(true); return nil }

func (m *mockAlerter) Alerts() []*domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

func (m *mockAlerter) OfKind(kind domain.AlertKind) []*domain.Alert {
	var out []*domain.Alert
	for _, a := range m.Alerts() {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type resultObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *resultObserver) IncrementEventsByResult(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[result]++
}

func (r *resultObserver) Count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[result]
}

type decisionRecorder struct {
	mu        sync.Mutex
	decisions []domain.Decision
	findings  []domain.Finding
}

func (d *decisionRecorder) OnDecision(f domain.Finding, dec domain.Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decisions = append(d.decisions, dec)
	d.findings = append(d.findings, f)
}

func (d *decisionRecorder) Decisions() []domain.Decision {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Decision(nil), d.decisions...)
}

func (d *decisionRecorder) Findings() []domain.Finding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Finding(nil), d.findings...)
}
