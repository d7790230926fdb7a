// Package app wires the detection engine: the lane pipeline that feeds
// events through detectors, the dedup cache, the countermeasure controller
// and the ordered alert emitter.
package app

import (
	"context"
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

// PipelineConfig defines lane and backpressure options.
type PipelineConfig struct {
	Lanes             int           // Number of lanes (default: 16)
	BufferSize        int           // Total queued events across lanes (default: 10000)
	SubmitTimeout     time.Duration // Backpressure timeout (default: 100ms)
	ParallelDetectors bool          // Fan detectors out per event
	OverflowPath      string        // Events that could not be queued (empty disables)
	QuarantinePath    string        // Events that made a lane panic (empty disables)
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Lanes:             16,
		BufferSize:        10000,
		SubmitTimeout:     100 * time.Millisecond,
		ParallelDetectors: true,
	}
}

// PipelineDeps are the collaborators a pipeline hands findings to.
// Controller and the observers are optional.
type PipelineDeps struct {
	Dedup      *DedupCache
	Controller *Controller
	Emitter    *Emitter
	Metrics    *domain.EngineMetrics
	Collector  ports.MetricsCollector
	Observer   ports.ProcessingObserver
	Decisions  ports.DecisionObserver
}

// Pipeline routes events to lanes by source address. A lane handles its
// events one at a time in arrival order, so every source sees its events
// in order while unrelated sources proceed in parallel.
//
// Thread Safety: All public methods are safe for concurrent access.
type Pipeline struct {
	lanes         []chan *domain.Event
	seed          maphash.Seed
	detectors     atomic.Pointer[[]ports.Detector]
	parallel      bool
	submitTimeout time.Duration
	capacity      int
	deps          PipelineDeps

	overflow   *OverflowWriter
	quarantine *QuarantineWriter

	streamTime atomic.Int64
	processed  atomic.Int64
	overflowed atomic.Int64
	panics     atomic.Int64

	mu       sync.RWMutex
	running  bool
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPipeline(cfg PipelineConfig, detectors []ports.Detector, deps PipelineDeps) (*Pipeline, error) {
	if deps.Dedup == nil || deps.Emitter == nil {
		return nil, fmt.Errorf("pipeline requires a dedup cache and an emitter")
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = 16
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 100 * time.Millisecond
	}
	perLane := cfg.BufferSize / cfg.Lanes
	if perLane < 1 {
		perLane = 1
	}

	p := &Pipeline{
		lanes:         make([]chan *domain.Event, cfg.Lanes),
		seed:          maphash.MakeSeed(),
		parallel:      cfg.ParallelDetectors,
		submitTimeout: cfg.SubmitTimeout,
		capacity:      perLane * cfg.Lanes,
		deps:          deps,
		stopCh:        make(chan struct{}),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan *domain.Event, perLane)
	}
	p.SetDetectors(detectors)

	if cfg.OverflowPath != "" {
		overflow, err := NewOverflowWriter(cfg.OverflowPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.OverflowPath).Msg("Failed to create overflow writer")
		} else {
			p.overflow = overflow
		}
	}
	if cfg.QuarantinePath != "" {
		quarantine, err := NewQuarantineWriter(cfg.QuarantinePath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.QuarantinePath).Msg("Failed to create quarantine writer")
		} else {
			p.quarantine = quarantine
		}
	}
	return p, nil
}

// SetDetectors swaps the detector set. Events already in a lane finish
// with the set they started with.
func (p *Pipeline) SetDetectors(detectors []ports.Detector) {
	dets := make([]ports.Detector, len(detectors))
	copy(dets, detectors)
	p.detectors.Store(&dets)
}

func (p *Pipeline) Detectors() []ports.Detector {
	return *p.detectors.Load()
}

// Start launches one goroutine per lane. Processing continues until Stop
// even when ctx is cancelled, so queued events are drained.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	procCtx := context.WithoutCancel(ctx)
	for i := range p.lanes {
		p.wg.Add(1)
		go p.lane(procCtx, i)
	}

	if p.deps.Metrics != nil {
		p.deps.Metrics.SetActiveLanes(len(p.lanes))
	}
	if p.deps.Collector != nil {
		p.deps.Collector.SetActiveLanes(len(p.lanes))
	}

	log.Info().
		Int("lanes", len(p.lanes)).
		Bool("parallel_detectors", p.parallel).
		Int("detectors", len(p.Detectors())).
		Msg("Pipeline started")
}

func (p *Pipeline) lane(ctx context.Context, id int) {
	defer p.wg.Done()

	var current *domain.Event

	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			ip := ""
			if current != nil {
				ip = current.IPString()
			}
			log.Error().
				Interface("panic", r).
				Int("lane", id).
				Str("source_ip", ip).
				Msg("Lane panic recovered")

			if p.quarantine != nil && p.quarantine.Enabled() {
				if err := p.quarantine.Quarantine(id, r, current); err != nil {
					log.Error().Err(err).Int("lane", id).Msg("Failed to quarantine event")
				}
			}

			p.wg.Add(1)
			go p.lane(ctx, id)
		}
	}()

	for ev := range p.lanes[id] {
		current = ev
		p.process(ctx, ev)
		current = nil
	}
}

func (p *Pipeline) process(ctx context.Context, ev *domain.Event) {
	start := time.Now()
	p.advanceStreamTime(ev.Timestamp)

	findings := p.inspect(ctx, ev)

	if m := p.deps.Metrics; m != nil {
		m.IncrementEvents()
		m.AddFindings(len(findings))
	}
	if c := p.deps.Collector; c != nil {
		c.IncrementEvents()
	}
	if o := p.deps.Observer; o != nil {
		if len(findings) > 0 {
			o.IncrementEventsByResult("finding")
		} else {
			o.IncrementEventsByResult("clean")
		}
	}

	for _, f := range findings {
		p.admit(ctx, f)
	}

	p.processed.Add(1)
	if c := p.deps.Collector; c != nil {
		c.ObserveProcessingTime(time.Since(start).Seconds())
	}
}

func (p *Pipeline) admit(ctx context.Context, f domain.Finding) {
	if c := p.deps.Collector; c != nil {
		c.IncrementFindings(f.Signature)
	}

	adm := p.deps.Dedup.Admit(f)

	if m := p.deps.Metrics; m != nil {
		m.RecordDecision(adm.Decision)
	}
	if c := p.deps.Collector; c != nil {
		c.IncrementDecision(adm.Decision)
	}
	if d := p.deps.Decisions; d != nil {
		d.OnDecision(adm.Finding, adm.Decision)
	}
	if !adm.Decision.Propagates() {
		return
	}

	alert := domain.NewFindingAlert(adm.Finding, adm.Decision)
	if adm.Finding.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	p.deps.Emitter.Emit(alert)

	if p.deps.Controller != nil {
		p.deps.Emitter.EmitAll(p.deps.Controller.Handle(ctx, adm.Finding))
	}
}

// inspect runs every detector on ev and returns findings in detector order.
func (p *Pipeline) inspect(ctx context.Context, ev *domain.Event) []domain.Finding {
	dets := *p.detectors.Load()
	if !p.parallel || len(dets) < 2 {
		var out []domain.Finding
		for _, d := range dets {
			out = append(out, d.Inspect(ctx, ev)...)
		}
		return out
	}

	results := make([][]domain.Finding, len(dets))
	panics := make([]interface{}, len(dets))
	var wg sync.WaitGroup
	for i, d := range dets {
		wg.Add(1)
		go func(i int, d ports.Detector) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panics[i] = fmt.Errorf("detector %s: %v", d.ID(), r)
				}
			}()
			results[i] = d.Inspect(ctx, ev)
		}(i, d)
	}
	wg.Wait()

	for _, r := range panics {
		if r != nil {
			// rethrown on the lane goroutine so the event is quarantined
			panic(r)
		}
	}

	var out []domain.Finding
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (p *Pipeline) advanceStreamTime(ts time.Time) {
	if ts.IsZero() {
		return
	}
	n := ts.UnixNano()
	for {
		cur := p.streamTime.Load()
		if n <= cur || p.streamTime.CompareAndSwap(cur, n) {
			return
		}
	}
}

// StreamTime returns the latest event timestamp seen, or the zero time
// before the first event.
func (p *Pipeline) StreamTime() time.Time {
	n := p.streamTime.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (p *Pipeline) laneFor(ev *domain.Event) chan *domain.Event {
	b := ev.SourceIP.As16()
	return p.lanes[maphash.Bytes(p.seed, b[:])%uint64(len(p.lanes))]
}

// Submit queues ev on its lane, waiting at most the submit timeout. When
// the lane stays full the event goes to the overflow file if one is
// configured, otherwise domain.ErrQueueFull is returned.
func (p *Pipeline) Submit(ev *domain.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running || p.stopped {
		return domain.ErrStopped
	}
	lane := p.laneFor(ev)

	select {
	case lane <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(p.submitTimeout)
	defer timer.Stop()
	select {
	case lane <- ev:
		return nil
	case <-timer.C:
	case <-p.stopCh:
		return domain.ErrStopped
	}

	if p.overflow != nil && p.overflow.Enabled() {
		if err := p.overflow.WriteEvent(ev); err != nil {
			log.Error().Err(err).Msg("Failed to write event to overflow")
			return domain.ErrQueueFull
		}
		p.overflowed.Add(1)
		return nil
	}
	return domain.ErrQueueFull
}

// SubmitBlocking waits for lane space. Replays use it so that no event is
// dropped and results are deterministic.
func (p *Pipeline) SubmitBlocking(ctx context.Context, ev *domain.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running || p.stopped {
		return domain.ErrStopped
	}
	select {
	case p.laneFor(ev) <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return domain.ErrStopped
	}
}

// Stop closes the lanes and waits until every queued event is processed.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)

		p.mu.Lock()
		p.stopped = true
		wasRunning := p.running
		p.running = false
		for _, l := range p.lanes {
			close(l)
		}
		p.mu.Unlock()

		if wasRunning {
			p.wg.Wait()
		}

		if p.overflow != nil {
			if err := p.overflow.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close overflow writer")
			}
		}
		if p.quarantine != nil {
			if err := p.quarantine.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close quarantine writer")
			}
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.SetActiveLanes(0)
		}
		if p.deps.Collector != nil {
			p.deps.Collector.SetActiveLanes(0)
		}

		if n := p.overflowed.Load(); n > 0 {
			log.Warn().Int64("overflow_events", n).Msg("Pipeline stopped with events in overflow file")
		} else {
			log.Info().Int64("processed", p.processed.Load()).Msg("Pipeline stopped")
		}
	})
}

func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Pipeline) Processed() int64 {
	return p.processed.Load()
}

func (p *Pipeline) Overflowed() int64 {
	return p.overflowed.Load()
}

func (p *Pipeline) Panics() int64 {
	return p.panics.Load()
}

// QueueLength returns events waiting across all lanes.
func (p *Pipeline) QueueLength() int {
	n := 0
	for _, l := range p.lanes {
		n += len(l)
	}
	return n
}

func (p *Pipeline) QueueCapacity() int {
	return p.capacity
}

func (p *Pipeline) LaneCount() int {
	return len(p.lanes)
}
