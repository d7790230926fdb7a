package app

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/countermeasure"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/detection"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/input"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/store"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

type engineFixture struct {
	engine    *Engine
	set       *detection.Set
	sink      *countermeasure.RecordingSink
	alerter   *mockAlerter
	decisions *decisionRecorder
}

func newEngineFixture(t *testing.T, lines []string, deterministic bool, clock func() time.Time, tune ...func(*EngineConfig)) *engineFixture {
	t.Helper()
	set, err := detection.Build(detection.DefaultConfig())
	require.NoError(t, err)
	adapter, err := input.NewAdapter(input.AdapterConfig{})
	require.NoError(t, err)

	f := &engineFixture{
		set:       set,
		sink:      countermeasure.NewRecordingSink(""),
		alerter:   &mockAlerter{},
		decisions: &decisionRecorder{},
	}
	cfg := DefaultEngineConfig()
	// sweeps are driven by the tests
	cfg.Countermeasure.SweepInterval = cfg.Countermeasure.BlockDuration
	for _, fn := range tune {
		fn(cfg)
	}
	f.engine, err = NewEngine(cfg, EngineOptions{
		Sources:       []ports.RecordSource{input.NewLineSource("test", lines...)},
		Ingester:      adapter,
		Detectors:     set.Detectors,
		DetectorSet:   set,
		Sinks:         []ports.BlockSink{f.sink},
		Store:         store.NewMemoryBlockStore(),
		Alerters:      []ports.Alerter{f.alerter},
		Decisions:     f.decisions,
		Deterministic: deterministic,
		Clock:         clock,
	})
	require.NoError(t, err)
	return f
}

func TestEngine_PortScanBlocksSource(t *testing.T) {
	var lines []string
	for port := 1; port <= 50; port++ {
		ts := t0.Add(time.Duration(port-1) * 200 * time.Millisecond)
		lines = append(lines, fmt.Sprintf("%s SRC=10.0.0.5 DST=10.0.0.1 PROTO=TCP DPT=%d SYN", ts.Format(time.RFC3339Nano), port))
	}
	f := newEngineFixture(t, lines, true, nil)

	require.NoError(t, f.engine.RunToCompletion(context.Background()))

	findings := f.alerter.OfKind(domain.AlertKindFinding)
	require.Len(t, findings, 1)
	assert.Equal(t, domain.SignaturePortScan, findings[0].Signature)
	assert.Equal(t, domain.SeverityHigh, findings[0].Severity)
	assert.Equal(t, "NEW", findings[0].Decision)
	assert.Equal(t, "10.0.0.5", findings[0].SourceIP.String())

	blocks := f.alerter.OfKind(domain.AlertKindBlock)
	require.Len(t, blocks, 1)
	require.NotNil(t, blocks[0].Block)
	assert.Equal(t, 600*time.Second, blocks[0].Block.ExpiresAt.Sub(blocks[0].Block.BlockedAt))
	assert.Equal(t, t0.Add(20*200*time.Millisecond), blocks[0].Block.BlockedAt)
	assert.Greater(t, blocks[0].Seq, findings[0].Seq)

	// the second firing at port 42 is suppressed
	assert.Equal(t, []domain.Decision{domain.DecisionNew, domain.DecisionSuppressed}, f.decisions.Decisions())

	calls := f.sink.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "block", calls[0].Op)
	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), calls[0].IP)
	assert.Equal(t, 10*time.Minute, calls[0].Duration)

	snap := f.engine.Metrics()
	assert.Equal(t, int64(50), snap.EventsProcessed)
	assert.Equal(t, int64(1), snap.BlocksIssued)
	assert.Equal(t, int64(2), snap.TotalAlerts)
	assert.False(t, f.engine.IsRunning())
}

func sqliLine(at time.Time) string {
	return fmt.Sprintf(`10.0.0.9 - - [%s] "GET /login?user=admin'-- HTTP/1.1" 200 512 "-" "curl/8.0"`,
		at.Format("02/Jan/2006:15:04:05 -0700"))
}

func TestEngine_RepeatedSQLInjectionEscalates(t *testing.T) {
	lines := []string{
		sqliLine(t0),
		sqliLine(t0.Add(10 * time.Second)),
		sqliLine(t0.Add(20 * time.Second)),
		"this line has no address at all",
	}
	f := newEngineFixture(t, lines, true, nil)

	require.NoError(t, f.engine.RunToCompletion(context.Background()))

	assert.Equal(t, []domain.Decision{domain.DecisionNew, domain.DecisionSuppressed, domain.DecisionEscalated}, f.decisions.Decisions())

	alerts := f.alerter.Alerts()
	require.Len(t, alerts, 3)
	assert.Equal(t, domain.AlertKindFinding, alerts[0].Kind)
	assert.Equal(t, domain.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, domain.SignatureSQLInjection, alerts[0].Signature)
	assert.Equal(t, "NEW", alerts[0].Decision)

	assert.Equal(t, domain.AlertKindFinding, alerts[1].Kind)
	assert.Equal(t, domain.SeverityHigh, alerts[1].Severity)
	assert.Equal(t, "ESCALATED", alerts[1].Decision)

	assert.Equal(t, domain.AlertKindBlock, alerts[2].Kind)
	assert.Equal(t, "10.0.0.9", alerts[2].SourceIP.String())
	assert.Equal(t, t0.Add(20*time.Second), alerts[2].Block.BlockedAt)

	assert.Equal(t, int64(1), f.engine.Metrics().EventsRejected)
	assert.Equal(t, 1, f.sink.Count("block"))
}

func unionLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf(`10.0.1.%d - - [%s] "GET /products?id=1%%20UNION%%20SELECT%%20password%%20FROM%%20users HTTP/1.1" 200 64 "-" "curl/8.0"`,
			i+1, t0.Add(time.Duration(i)*time.Second).Format("02/Jan/2006:15:04:05 -0700"))
	}
	return lines
}

func tinyQueues(cfg *EngineConfig) {
	cfg.Pipeline.Lanes = 1
	cfg.Pipeline.BufferSize = 1
	cfg.Pipeline.SubmitTimeout = time.Millisecond
}

func TestEngine_DeterministicSlowAlerterLosesNothing(t *testing.T) {
	f := newEngineFixture(t, unionLines(6), true, nil, tinyQueues)
	f.alerter.delay = 20 * time.Millisecond

	require.NoError(t, f.engine.RunToCompletion(context.Background()))

	assert.Equal(t, 6, f.sink.Count("block"))
	assert.Len(t, f.alerter.OfKind(domain.AlertKindFinding), 6)
	assert.Len(t, f.alerter.OfKind(domain.AlertKindBlock), 6)
	assert.Zero(t, f.engine.Emitter().Dropped())
	assert.Zero(t, f.engine.Emitter().Overflowed())
	assert.Equal(t, int64(12), f.engine.Emitter().Emitted())

	alerts := f.alerter.Alerts()
	for i := 1; i < len(alerts); i++ {
		assert.Greater(t, alerts[i].Seq, alerts[i-1].Seq)
	}
}

func TestEngine_LiveSlowAlerterSpillsToOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts-overflow.jsonl")
	f := newEngineFixture(t, unionLines(6), false, nil, tinyQueues, func(cfg *EngineConfig) {
		cfg.Output.OverflowPath = path
	})
	f.alerter.delay = 20 * time.Millisecond

	require.NoError(t, f.engine.RunToCompletion(context.Background()))

	em := f.engine.Emitter()
	assert.Zero(t, em.Dropped())
	assert.Equal(t, em.Emitted(), int64(len(f.alerter.Alerts()))+em.Overflowed())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int(em.Overflowed()), strings.Count(string(data), `"type":"alert"`))
}

func TestEngine_SweepLiftsExpiredBlocks(t *testing.T) {
	clock := newFakeClock(t0)
	lines := []string{
		sqliLine(t0),
		sqliLine(t0.Add(time.Second)),
		sqliLine(t0.Add(2 * time.Second)),
	}
	f := newEngineFixture(t, lines, false, clock.Now)

	require.NoError(t, f.engine.Start(context.Background()))
	<-f.engine.Done()
	require.Eventually(t, func() bool { return f.engine.Pipeline().Processed() == 3 }, 2*time.Second, time.Millisecond)
	require.Equal(t, 1, f.engine.Controller().ActiveCount())

	clock.Advance(9 * time.Minute)
	assert.Zero(t, f.engine.Sweep())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, f.engine.Sweep())
	assert.Zero(t, f.engine.Controller().ActiveCount())

	f.engine.Stop()
	unblocks := f.alerter.OfKind(domain.AlertKindUnblock)
	require.Len(t, unblocks, 1)
	assert.Equal(t, "10.0.0.9", unblocks[0].SourceIP.String())
	assert.Equal(t, 1, f.sink.Count("unblock"))
}

func TestEngine_Apply(t *testing.T) {
	f := newEngineFixture(t, nil, true, nil)

	cfg := DefaultEngineConfig()
	cfg.Detection.PortScanThreshold = 5
	cfg.Dedup.EscalationCount = 7
	cfg.Countermeasure.BlockThreshold = "CRITICAL"
	require.NoError(t, f.engine.Apply(cfg))

	threshold, _ := f.set.PortScan.Thresholds()
	assert.Equal(t, 5, threshold)
	assert.Equal(t, 7, f.engine.Dedup().Policy().EscalationCount)
	assert.Equal(t, domain.SeverityCritical, f.engine.Controller().Policy().Threshold)
	assert.Same(t, cfg, f.engine.Config())

	bad := DefaultEngineConfig()
	bad.Dedup.Cooldown = 0
	assert.Error(t, f.engine.Apply(bad))
	assert.Same(t, cfg, f.engine.Config())
}

func TestNewEngine_Requirements(t *testing.T) {
	adapter, err := input.NewAdapter(input.AdapterConfig{})
	require.NoError(t, err)

	_, err = NewEngine(nil, EngineOptions{Detectors: []ports.Detector{&mockDetector{}}})
	assert.Error(t, err)

	_, err = NewEngine(nil, EngineOptions{Ingester: adapter})
	assert.Error(t, err)

	bad := DefaultEngineConfig()
	bad.Pipeline.Lanes = 0
	_, err = NewEngine(bad, EngineOptions{Ingester: adapter, Detectors: []ports.Detector{&mockDetector{}}})
	assert.True(t, domain.IsConfigurationError(err))

	e, err := NewEngine(nil, EngineOptions{Ingester: adapter, Detectors: []ports.Detector{&mockDetector{}}})
	require.NoError(t, err)
	assert.Nil(t, e.Controller(), "no sinks, no countermeasures")
	assert.Zero(t, e.Sweep())
}
