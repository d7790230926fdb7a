package app

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

// DetectorSet is the tunable side of the detector collection: aggregator
// thresholds and their idle sweeps.
type DetectorSet interface {
	SetThresholds(portThreshold int, portWindow time.Duration, floodThreshold int, floodWindow time.Duration)
	StartCleanup(ctx context.Context)
	Stop()
}

// EngineOptions carries the adapters the engine is assembled from.
type EngineOptions struct {
	Sources     []ports.RecordSource
	Ingester    ports.Ingester
	Detectors   []ports.Detector
	DetectorSet DetectorSet

	Sinks []ports.BlockSink
	Store ports.BlockStore

	Alerters    []ports.Alerter
	Subscribers []ports.AlertSubscriber

	Collector      ports.MetricsCollector
	Observer       ports.ProcessingObserver
	Countermeasure ports.CountermeasureObserver
	Decisions      ports.DecisionObserver

	// Deterministic makes producers wait for lane space and drives block
	// timing from event timestamps instead of the wall clock. Replays use it.
	Deterministic bool
	// Clock overrides the wall clock for block timing.
	Clock func() time.Time
}

// Engine owns the running detection pipeline and its periodic tasks.
type Engine struct {
	cfg  *EngineConfig
	opts EngineOptions

	metrics    *domain.EngineMetrics
	dedup      *DedupCache
	controller *Controller
	emitter    *Emitter
	pipeline   *Pipeline

	ctx       context.Context
	cancel    context.CancelFunc
	loopsCtx  context.Context
	stopLoops context.CancelFunc

	producers   sync.WaitGroup
	loops       sync.WaitGroup
	sourcesDone chan struct{}

	mu      sync.RWMutex
	running bool
	stopped bool

	lastEvents   int64
	lastEPSCheck time.Time
}

func NewEngine(cfg *EngineConfig, opts EngineOptions) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Ingester == nil {
		return nil, fmt.Errorf("engine requires an ingester")
	}
	if len(opts.Detectors) == 0 {
		return nil, fmt.Errorf("engine requires at least one detector")
	}

	e := &Engine{
		cfg:          cfg,
		opts:         opts,
		metrics:      domain.NewEngineMetrics(),
		sourcesDone:  make(chan struct{}),
		lastEPSCheck: time.Now(),
	}

	dedup, err := NewDedupCache(DedupConfig{
		Policy:             cfg.DedupPolicy(),
		MaxEntriesPerShard: cfg.Dedup.MaxEntriesPerShard,
	})
	if err != nil {
		return nil, err
	}
	e.dedup = dedup

	if len(opts.Sinks) > 0 {
		policy, err := cfg.BlockPolicy()
		if err != nil {
			return nil, err
		}
		e.controller, err = NewController(ControllerConfig{
			Policy:   policy,
			Clock:    e.clock(),
			Store:    opts.Store,
			Observer: opts.Countermeasure,
			Metrics:  e.metrics,
		}, opts.Sinks...)
		if err != nil {
			return nil, err
		}
	}

	e.emitter = NewEmitter(EmitterConfig{
		BufferSize:    cfg.Pipeline.BufferSize,
		SubmitTimeout: cfg.Pipeline.SubmitTimeout,
		OverflowPath:  cfg.Output.OverflowPath,
		Blocking:      opts.Deterministic,
	}, e.metrics)
	for _, a := range opts.Alerters {
		e.emitter.AddAlerter(a)
	}
	for _, s := range opts.Subscribers {
		e.emitter.AddSubscriber(s)
	}

	e.pipeline, err = NewPipeline(cfg.Pipeline, opts.Detectors, PipelineDeps{
		Dedup:      e.dedup,
		Controller: e.controller,
		Emitter:    e.emitter,
		Metrics:    e.metrics,
		Collector:  opts.Collector,
		Observer:   opts.Observer,
		Decisions:  opts.Decisions,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// clock returns the time source for block timing.
func (e *Engine) clock() func() time.Time {
	if e.opts.Clock != nil {
		return e.opts.Clock
	}
	if !e.opts.Deterministic {
		return time.Now
	}
	return func() time.Time {
		if t := e.pipeline.StreamTime(); !t.IsZero() {
			return t
		}
		return time.Now()
	}
}

// Start restores persisted blocks and launches producers, lanes and the
// periodic sweeps.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.loopsCtx, e.stopLoops = context.WithCancel(context.Background())

	if e.controller != nil {
		if _, err := e.controller.Restore(e.ctx); err != nil {
			log.Error().Err(err).Msg("Failed to restore block list")
		}
	}

	e.emitter.Start(e.loopsCtx)
	e.pipeline.Start(e.loopsCtx)
	if e.opts.DetectorSet != nil && !e.opts.Deterministic {
		e.opts.DetectorSet.StartCleanup(e.loopsCtx)
	}

	if e.controller != nil {
		e.loops.Add(1)
		go e.sweepLoop(e.cfg.Countermeasure.SweepInterval)
	}
	e.loops.Add(2)
	go e.cleanupLoop(e.cfg.Detection.CleanupInterval)
	go e.metricsLoop()

	for _, src := range e.opts.Sources {
		e.producers.Add(1)
		go e.produce(src)
	}
	go func() {
		e.producers.Wait()
		close(e.sourcesDone)
	}()

	log.Info().
		Int("sources", len(e.opts.Sources)).
		Int("detectors", len(e.opts.Detectors)).
		Int("sinks", len(e.opts.Sinks)).
		Bool("deterministic", e.opts.Deterministic).
		Msg("Engine started")
	return nil
}

func (e *Engine) produce(src ports.RecordSource) {
	defer e.producers.Done()

	records, errs := src.Start(e.ctx)
	for {
		select {
		case <-e.ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Error().Err(err).Str("stage", "source").Msg("Error reading records")
		case rec, ok := <-records:
			if !ok {
				e.drainErrors(errs)
				return
			}
			ev, ok := e.opts.Ingester.Ingest(rec)
			if !ok {
				e.metrics.IncrementRejected()
				continue
			}
			e.submit(ev)
		}
	}
}

func (e *Engine) drainErrors(errs <-chan error) {
	if errs == nil {
		return
	}
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Error().Err(err).Str("stage", "source").Msg("Error reading records")
		default:
			return
		}
	}
}

func (e *Engine) submit(ev *domain.Event) {
	var err error
	if e.opts.Deterministic {
		err = e.pipeline.SubmitBlocking(e.ctx, ev)
	} else {
		err = e.pipeline.Submit(ev)
	}
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrQueueFull):
		log.Warn().Str("source_ip", ev.IPString()).Msg("Pipeline saturated, event dropped")
	case errors.Is(err, domain.ErrStopped), errors.Is(err, context.Canceled):
	default:
		log.Error().Err(err).Str("source_ip", ev.IPString()).Msg("Failed to submit event")
	}
}

func (e *Engine) now() time.Time {
	return e.clock()()
}

func (e *Engine) sweepLoop(interval time.Duration) {
	defer e.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.loopsCtx.Done():
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Sweep runs one countermeasure sweep at the engine clock and emits the
// resulting alerts.
func (e *Engine) Sweep() int {
	if e.controller == nil {
		return 0
	}
	ctx := e.loopsCtx
	if ctx == nil {
		ctx = context.Background()
	}
	alerts := e.controller.Sweep(ctx, e.now())
	return e.emitter.EmitAll(alerts)
}

func (e *Engine) cleanupLoop(interval time.Duration) {
	defer e.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.loopsCtx.Done():
			return
		case <-ticker.C:
			e.cleanup()
		}
	}
}

func (e *Engine) cleanup() {
	now := time.Now()
	if st := e.pipeline.StreamTime(); !st.IsZero() && (e.opts.Deterministic || st.Before(now)) {
		now = st
	}
	if n := e.dedup.Sweep(now); n > 0 {
		log.Debug().Int("reclaimed", n).Msg("Dedup entries reclaimed")
	}
	if e.opts.Deterministic {
		// no janitors in this mode; sweep aggregators on the stream clock
		for _, d := range e.opts.Detectors {
			if sd, ok := d.(ports.StatefulDetector); ok {
				sd.Cleanup(now)
			}
		}
	}
}

func (e *Engine) metricsLoop() {
	defer e.loops.Done()
	ticker := time.NewTicker(time.Second)
	memTicker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	defer memTicker.Stop()

	for {
		select {
		case <-e.loopsCtx.Done():
			return
		case <-memTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			e.metrics.SetMemoryUsage(float64(m.Alloc) / 1024 / 1024)
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(e.lastEPSCheck).Seconds()
			if elapsed >= 1.0 {
				current := e.metrics.TotalEvents()
				e.metrics.UpdateEPS(float64(current-e.lastEvents) / elapsed)
				e.lastEvents = current
				e.lastEPSCheck = now
			}
		}
	}
}

// Apply installs the runtime-tunable parts of cfg: detection thresholds,
// the dedup policy and the block policy. Other settings need a restart.
func (e *Engine) Apply(cfg *EngineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := cfg.BlockPolicy()
	if err != nil {
		return err
	}
	if err := e.dedup.SetPolicy(cfg.DedupPolicy()); err != nil {
		return err
	}
	if e.controller != nil {
		if err := e.controller.SetPolicy(policy); err != nil {
			return err
		}
	}
	if e.opts.DetectorSet != nil {
		d := cfg.Detection
		e.opts.DetectorSet.SetThresholds(d.PortScanThreshold, d.PortScanWindow, d.SYNFloodThreshold, d.SYNFloodWindow)
	}

	e.mu.Lock()
	old := e.cfg
	e.cfg = cfg
	e.mu.Unlock()

	if old.Pipeline.Lanes != cfg.Pipeline.Lanes || old.Countermeasure.SweepInterval != cfg.Countermeasure.SweepInterval {
		log.Warn().Msg("Lane count and sweep interval changes take effect after restart")
	}
	log.Info().
		Dur("cooldown", cfg.Dedup.Cooldown).
		Int("escalation_count", cfg.Dedup.EscalationCount).
		Str("block_threshold", policy.Threshold.String()).
		Dur("block_duration", policy.Duration).
		Msg("Engine configuration applied")
	return nil
}

// Done is closed once every source is exhausted.
func (e *Engine) Done() <-chan struct{} {
	return e.sourcesDone
}

// Stop shuts down in dependency order: sources, lanes, sweeps, alert
// stream, then sinks and store. Active blocks stay in place.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	log.Info().Msg("Stopping engine gracefully...")

	for _, src := range e.opts.Sources {
		if err := src.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping source")
		}
	}
	e.cancel()
	e.producers.Wait()

	e.pipeline.Stop()

	e.stopLoops()
	e.loops.Wait()
	if e.opts.DetectorSet != nil {
		e.opts.DetectorSet.Stop()
	}

	if err := e.emitter.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing alert outputs")
	}
	if e.controller != nil {
		if err := e.controller.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing countermeasure controller")
		}
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	snap := e.metrics.Snapshot()
	log.Info().
		Int64("events", snap.EventsProcessed).
		Int64("rejected", snap.EventsRejected).
		Int64("alerts", snap.TotalAlerts).
		Int64("blocks", snap.BlocksIssued).
		Msg("Engine stopped")
}

// WaitForSignal blocks until SIGINT/SIGTERM, ctx cancellation or source
// exhaustion, then stops the engine.
func (e *Engine) WaitForSignal(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
	case <-e.sourcesDone:
		log.Info().Msg("All sources exhausted")
	}
	e.Stop()
}

func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	e.WaitForSignal(ctx)
	return nil
}

// RunToCompletion processes every source until exhausted and stops.
func (e *Engine) RunToCompletion(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	select {
	case <-e.sourcesDone:
	case <-ctx.Done():
	}
	e.Stop()
	return ctx.Err()
}

func (e *Engine) Metrics() domain.MetricsSnapshot {
	return e.metrics.Snapshot()
}

func (e *Engine) InternalMetrics() *domain.EngineMetrics {
	return e.metrics
}

func (e *Engine) Controller() *Controller { return e.controller }
func (e *Engine) Emitter() *Emitter       { return e.emitter }
func (e *Engine) Pipeline() *Pipeline     { return e.pipeline }
func (e *Engine) Dedup() *DedupCache      { return e.dedup }

func (e *Engine) QueueLength() int   { return e.pipeline.QueueLength() }
func (e *Engine) QueueCapacity() int { return e.pipeline.QueueCapacity() }

// ActiveBlocks returns the current block list, oldest first. It is empty
// when countermeasures are disabled.
func (e *Engine) ActiveBlocks() []*domain.BlockEntry {
	if e.controller == nil {
		return nil
	}
	return e.controller.ActiveBlocks()
}

func (e *Engine) LookupBlock(ip netip.Addr) (*domain.BlockEntry, bool) {
	if e.controller == nil {
		return nil, false
	}
	return e.controller.Lookup(ip)
}

// Degraded reports whether a countermeasure sink keeps failing.
func (e *Engine) Degraded() bool {
	return e.controller != nil && e.controller.Degraded()
}

func (e *Engine) Config() *EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running && !e.stopped
}
