package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

type EmitterConfig struct {
	BufferSize    int
	SubmitTimeout time.Duration
	// OverflowPath receives alerts that could not be queued within
	// SubmitTimeout. Empty drops them instead.
	OverflowPath string
	// Blocking makes Emit wait for queue space with no timeout. Replays
	// use it so that the delivered stream does not depend on alerter speed.
	Blocking bool
}

func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{BufferSize: 10000, SubmitTimeout: 100 * time.Millisecond}
}

// Emitter is the single ordered alert stream. Emit assigns Seq, and one
// dispatcher goroutine hands alerts to alerters and subscribers in Seq
// order.
type Emitter struct {
	out           chan *domain.Alert
	submitTimeout time.Duration
	blocking      bool
	overflow      *OverflowWriter
	metrics       *domain.EngineMetrics

	alerters    []ports.Alerter
	subscribers []ports.AlertSubscriber

	// sendMu orders Seq assignment with the channel send
	sendMu sync.Mutex
	seq    uint64
	closed bool

	mu      sync.RWMutex
	wg      sync.WaitGroup
	once    sync.Once
	started atomic.Bool
	dropped atomic.Int64
	spilled atomic.Int64
	emitted atomic.Int64
	// pending counts alerts queued but not yet delivered
	pending atomic.Int64
}

func NewEmitter(cfg EmitterConfig, metrics *domain.EngineMetrics) *Emitter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 100 * time.Millisecond
	}
	e := &Emitter{
		out:           make(chan *domain.Alert, cfg.BufferSize),
		submitTimeout: cfg.SubmitTimeout,
		blocking:      cfg.Blocking,
		metrics:       metrics,
	}
	if cfg.OverflowPath != "" {
		overflow, err := NewOverflowWriter(cfg.OverflowPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.OverflowPath).Msg("Failed to create alert overflow writer")
		} else {
			e.overflow = overflow
		}
	}
	return e
}

func (e *Emitter) AddAlerter(a ports.Alerter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerters = append(e.alerters, a)
}

func (e *Emitter) AddSubscriber(s ports.AlertSubscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, s)
}

// Start launches the dispatcher. Alerts emitted before Start are buffered.
func (e *Emitter) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(1)
	go e.dispatch(ctx)
}

// Emit appends alert to the stream. It returns false when the alert was
// dropped: the emitter is closed, or the queue stayed full for the submit
// timeout and no overflow file is configured. A blocking emitter never
// drops an alert once it is open.
func (e *Emitter) Emit(alert *domain.Alert) bool {
	if alert == nil {
		return false
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.closed {
		return false
	}

	e.seq++
	alert.Seq = e.seq
	if e.metrics != nil {
		e.metrics.IncrementAlerts()
	}
	e.emitted.Add(1)
	e.pending.Add(1)

	if e.blocking {
		e.out <- alert
		return true
	}

	select {
	case e.out <- alert:
		return true
	default:
	}

	timer := time.NewTimer(e.submitTimeout)
	defer timer.Stop()
	select {
	case e.out <- alert:
		return true
	case <-timer.C:
	}
	e.pending.Add(-1)

	if e.overflow != nil && e.overflow.Enabled() {
		if err := e.overflow.WriteAlert(alert); err != nil {
			log.Error().Err(err).Uint64("seq", alert.Seq).Msg("Failed to write alert to overflow")
			e.dropped.Add(1)
			return false
		}
		e.spilled.Add(1)
		return true
	}
	e.dropped.Add(1)
	log.Warn().Uint64("seq", alert.Seq).Str("kind", string(alert.Kind)).Msg("Alert queue full, alert dropped")
	return false
}

// EmitAll emits alerts in order and returns how many were accepted.
func (e *Emitter) EmitAll(alerts []*domain.Alert) int {
	n := 0
	for _, a := range alerts {
		if e.Emit(a) {
			n++
		}
	}
	return n
}

func (e *Emitter) dispatch(ctx context.Context) {
	defer e.wg.Done()
	for alert := range e.out {
		e.deliver(ctx, alert)
		e.pending.Add(-1)
	}
}

func (e *Emitter) deliver(ctx context.Context, alert *domain.Alert) {
	e.mu.RLock()
	alerters := e.alerters
	subscribers := e.subscribers
	e.mu.RUnlock()

	for _, a := range alerters {
		if err := a.Send(ctx, alert); err != nil {
			log.Debug().Err(err).Uint64("seq", alert.Seq).Msg("Alert send failed")
		}
	}
	for _, s := range subscribers {
		s.OnAlert(alert)
	}
}

// Flush waits until every queued alert has been delivered and flushes the
// alerters. The dispatcher must be running.
func (e *Emitter) Flush() error {
	e.waitIdle()
	e.mu.RLock()
	defer e.mu.RUnlock()
	var firstErr error
	for _, a := range e.alerters {
		if err := a.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.overflow != nil {
		if err := e.overflow.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Emitter) waitIdle() {
	if !e.started.Load() {
		return
	}
	for e.pending.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// Close stops accepting alerts, drains the queue and closes the alerters.
func (e *Emitter) Close() error {
	var err error
	e.once.Do(func() {
		e.sendMu.Lock()
		e.closed = true
		close(e.out)
		e.sendMu.Unlock()

		if !e.started.Load() {
			// nobody will consume what is buffered
			e.wg.Add(1)
			go e.dispatch(context.Background())
		}
		e.wg.Wait()

		e.mu.RLock()
		for _, a := range e.alerters {
			if ferr := a.Flush(); ferr != nil {
				log.Error().Err(ferr).Msg("Failed to flush alerter")
			}
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		e.mu.RUnlock()

		if e.overflow != nil {
			if cerr := e.overflow.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}

		log.Info().
			Int64("emitted", e.emitted.Load()).
			Int64("overflowed", e.spilled.Load()).
			Int64("dropped", e.dropped.Load()).
			Msg("Alert emitter closed")
	})
	return err
}

func (e *Emitter) Emitted() int64 {
	return e.emitted.Load()
}

func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Overflowed is the number of alerts written to the overflow file.
func (e *Emitter) Overflowed() int64 {
	return e.spilled.Load()
}

func (e *Emitter) QueueLength() int {
	return len(e.out)
}
