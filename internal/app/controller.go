package app

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"io"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

const defaultControllerShards = 16

// BlockPolicy decides which findings block their source and for how long.
type BlockPolicy struct {
	Threshold       domain.Severity
	Duration        time.Duration
	SinkTimeout     time.Duration
	MaxSinkFailures int
}

func DefaultBlockPolicy() BlockPolicy {
	return BlockPolicy{
		Threshold:       domain.SeverityHigh,
		Duration:        10 * time.Minute,
		SinkTimeout:     3 * time.Second,
		MaxSinkFailures: 3,
	}
}

func (p BlockPolicy) validate() error {
	if !p.Threshold.Valid() {
		return &domain.ConfigurationError{Field: "countermeasure.block_threshold", Value: p.Threshold, Reason: "unknown severity"}
	}
	if p.Duration <= 0 {
		return &domain.ConfigurationError{Field: "countermeasure.block_duration", Value: p.Duration, Reason: "must be positive"}
	}
	if p.SinkTimeout <= 0 {
		return &domain.ConfigurationError{Field: "countermeasure.sink_timeout", Value: p.SinkTimeout, Reason: "must be positive"}
	}
	if p.MaxSinkFailures < 1 {
		return &domain.ConfigurationError{Field: "countermeasure.max_sink_failures", Value: p.MaxSinkFailures, Reason: "must be at least 1"}
	}
	return nil
}

type ControllerConfig struct {
	Policy     BlockPolicy
	ShardCount int
	// Clock supplies "now" for block timing. Defaults to time.Now.
	Clock    func() time.Time
	Store    ports.BlockStore
	Observer ports.CountermeasureObserver
	Metrics  *domain.EngineMetrics
}

// Controller owns the block list. Each source is either UNBLOCKED (no
// entry) or BLOCKED (one active entry); sink commands for one source are
// serialized by that source's slot lock and never run under a shard lock.
type Controller struct {
	policy   atomic.Pointer[BlockPolicy]
	sinks    []ports.BlockSink
	store    ports.BlockStore
	clock    func() time.Time
	observer ports.CountermeasureObserver
	metrics  *domain.EngineMetrics

	seed   maphash.Seed
	shards []*blockShard
	active atomic.Int64

	degraded atomic.Bool
	closed   atomic.Bool
}

type blockShard struct {
	mu    sync.Mutex
	slots map[netip.Addr]*blockSlot
}

type blockSlot struct {
	mu       sync.Mutex
	entry    *domain.BlockEntry
	failures int
	reported bool
	removed  bool
}

func NewController(cfg ControllerConfig, sinks ...ports.BlockSink) (*Controller, error) {
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		return nil, &domain.ConfigurationError{Field: "countermeasure.sinks", Value: "", Reason: "at least one sink is required"}
	}
	seen := make(map[string]bool, len(sinks))
	for _, sink := range sinks {
		if seen[sink.Name()] {
			return nil, &domain.ConfigurationError{Field: "countermeasure.sinks", Value: sink.Name(), Reason: "duplicate sink name"}
		}
		seen[sink.Name()] = true
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = defaultControllerShards
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	c := &Controller{
		sinks:    sinks,
		store:    cfg.Store,
		clock:    cfg.Clock,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		seed:     maphash.MakeSeed(),
		shards:   make([]*blockShard, cfg.ShardCount),
	}
	for i := range c.shards {
		c.shards[i] = &blockShard{slots: make(map[netip.Addr]*blockSlot)}
	}
	policy := cfg.Policy
	c.policy.Store(&policy)
	return c, nil
}

func (c *Controller) SetPolicy(p BlockPolicy) error {
	if err := p.validate(); err != nil {
		return err
	}
	c.policy.Store(&p)
	return nil
}

func (c *Controller) Policy() BlockPolicy {
	return *c.policy.Load()
}

func (c *Controller) shardFor(ip netip.Addr) *blockShard {
	b := ip.As16()
	return c.shards[maphash.Bytes(c.seed, b[:])%uint64(len(c.shards))]
}

// lockSlot returns the locked slot for ip, creating it when create is set.
// A nil return means no slot exists.
func (c *Controller) lockSlot(ip netip.Addr, create bool) *blockSlot {
	shard := c.shardFor(ip)
	for {
		shard.mu.Lock()
		slot, ok := shard.slots[ip]
		if !ok {
			if !create {
				shard.mu.Unlock()
				return nil
			}
			slot = &blockSlot{}
			shard.slots[ip] = slot
		}
		shard.mu.Unlock()

		slot.mu.Lock()
		if !slot.removed {
			return slot
		}
		// lost a race with removeSlot; look again
		slot.mu.Unlock()
	}
}

// removeSlot detaches a slot. The caller holds slot.mu.
func (c *Controller) removeSlot(ip netip.Addr, slot *blockSlot) {
	slot.removed = true
	slot.entry = nil
	shard := c.shardFor(ip)
	shard.mu.Lock()
	if shard.slots[ip] == slot {
		delete(shard.slots, ip)
	}
	shard.mu.Unlock()
}

// Handle applies the block policy to an admitted finding and returns the
// alerts it produced. Findings below the threshold produce nothing.
func (c *Controller) Handle(ctx context.Context, f domain.Finding) []*domain.Alert {
	policy := c.policy.Load()
	if !f.Severity.AtLeast(policy.Threshold) || !f.SourceIP.IsValid() || c.closed.Load() {
		return nil
	}
	now := c.clock()

	slot := c.lockSlot(f.SourceIP, true)
	defer slot.mu.Unlock()

	if e := slot.entry; e != nil && e.Active {
		e.ExpiresAt = now.Add(policy.Duration)
		e.Refreshes++
		if e.Pending == domain.PendingUnblock {
			// sinks that already lifted the block must get it back
			e.Pending = domain.PendingNone
			if len(e.Applied) < len(c.sinks) {
				e.Pending = domain.PendingBlock
			}
			e.Attempts = 0
			e.LastError = ""
		}
		c.persist(e)
		log.Debug().
			Str("source_ip", f.SourceIP.String()).
			Time("expires_at", e.ExpiresAt).
			Int("refreshes", e.Refreshes).
			Msg("Block refreshed")
		return nil
	}

	entry := domain.NewBlockEntry(f, now, policy.Duration)
	slot.entry = entry
	c.setActive(c.active.Add(1))
	if c.metrics != nil {
		c.metrics.IncrementBlocks()
	}

	alerts := make([]*domain.Alert, 0, 2)
	err := c.command(ctx, policy, "block", entry, policy.Duration)
	if err != nil {
		entry.Pending = domain.PendingBlock
		alerts = append(alerts, c.recordFailure(slot, policy, err, now)...)
		log.Warn().Err(err).
			Str("source_ip", f.SourceIP.String()).
			Time("timestamp", now).
			Str("stage", "block").
			Msg("Block command failed, will retry")
	} else {
		c.recordSuccess(slot)
		log.Info().
			Str("source_ip", f.SourceIP.String()).
			Str("signature", string(f.Signature)).
			Str("severity", f.Severity.String()).
			Time("expires_at", entry.ExpiresAt).
			Msg("Source blocked")
	}
	c.persist(entry)

	blockAlert := domain.NewBlockAlert(domain.AlertKindBlock, entry, now)
	if entry.Pending != domain.PendingNone {
		blockAlert.AddMetadata("pending", string(entry.Pending))
	}
	return append([]*domain.Alert{blockAlert}, alerts...)
}

// Sweep retries pending commands and lifts expired blocks.
func (c *Controller) Sweep(ctx context.Context, now time.Time) []*domain.Alert {
	policy := c.policy.Load()
	var alerts []*domain.Alert

	for _, ip := range c.sources() {
		if ctx.Err() != nil {
			break
		}
		slot := c.lockSlot(ip, false)
		if slot == nil {
			continue
		}
		alerts = append(alerts, c.sweepSlot(ctx, policy, ip, slot, now)...)
		slot.mu.Unlock()
	}
	return alerts
}

func (c *Controller) sweepSlot(ctx context.Context, policy *BlockPolicy, ip netip.Addr, slot *blockSlot, now time.Time) []*domain.Alert {
	e := slot.entry
	if e == nil {
		c.removeSlot(ip, slot)
		return nil
	}

	if e.Expired(now) {
		if len(e.Applied) == 0 {
			// nothing left to lift
			return c.release(ip, slot, e, now, e.Pending == domain.PendingUnblock)
		}
		if err := c.command(ctx, policy, "unblock", e, 0); err != nil {
			e.Pending = domain.PendingUnblock
			alerts := c.recordFailure(slot, policy, err, now)
			c.persist(e)
			log.Warn().Err(err).
				Str("source_ip", ip.String()).
				Time("timestamp", now).
				Str("stage", "unblock").
				Msg("Unblock command failed, will retry")
			return alerts
		}
		c.recordSuccess(slot)
		return c.release(ip, slot, e, now, true)
	}

	if e.Pending == domain.PendingBlock {
		if err := c.command(ctx, policy, "block", e, e.Remaining(now)); err != nil {
			alerts := c.recordFailure(slot, policy, err, now)
			c.persist(e)
			return alerts
		}
		e.Pending = domain.PendingNone
		c.recordSuccess(slot)
		c.persist(e)
		log.Info().Str("source_ip", ip.String()).Msg("Pending block applied")
	}
	return nil
}

func (c *Controller) release(ip netip.Addr, slot *blockSlot, e *domain.BlockEntry, now time.Time, applied bool) []*domain.Alert {
	e.Active = false
	e.Pending = domain.PendingNone
	c.removeSlot(ip, slot)
	c.setActive(c.active.Add(-1))
	if c.store != nil {
		if err := c.store.Delete(ip); err != nil {
			log.Error().Err(err).Str("source_ip", ip.String()).Msg("Failed to delete block from store")
		}
	}
	log.Info().Str("source_ip", ip.String()).Bool("applied", applied).Msg("Block expired")

	alert := domain.NewBlockAlert(domain.AlertKindUnblock, e, now)
	if !applied {
		alert.AddMetadata("sink_applied", "false")
	}
	return []*domain.Alert{alert}
}

// command sends op to the sinks whose state differs from the goal, each
// bounded by the sink timeout. A block goes to sinks not yet enforcing it,
// an unblock to sinks still enforcing it. e.Applied tracks the outcome.
func (c *Controller) command(ctx context.Context, policy *BlockPolicy, op string, e *domain.BlockEntry, d time.Duration) error {
	ip := e.SourceIP
	var errs []error
	for _, sink := range c.sinks {
		if (op == "block") == e.AppliedBy(sink.Name()) {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, policy.SinkTimeout)
		var err error
		if op == "block" {
			err = sink.Block(callCtx, ip, d)
		} else {
			err = sink.Unblock(callCtx, ip)
		}
		cancel()

		if err != nil {
			var su *domain.SinkUnavailableError
			if !errors.As(err, &su) {
				err = &domain.SinkUnavailableError{Sink: sink.Name(), Op: op, IP: ip, Err: err}
			}
			errs = append(errs, err)
			if c.metrics != nil {
				c.metrics.IncrementSinkErrors()
			}
		} else if op == "block" {
			e.MarkApplied(sink.Name())
		} else {
			e.MarkLifted(sink.Name())
		}
		if c.observer != nil {
			c.observer.ObserveSinkCommand(op, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) recordFailure(slot *blockSlot, policy *BlockPolicy, err error, now time.Time) []*domain.Alert {
	e := slot.entry
	e.Attempts++
	e.LastError = err.Error()
	slot.failures++
	if slot.failures < policy.MaxSinkFailures || slot.reported {
		return nil
	}
	slot.reported = true
	c.degraded.Store(true)
	if c.metrics != nil {
		c.metrics.SetDegraded(true)
	}
	log.Error().
		Str("source_ip", e.SourceIP.String()).
		Int("failures", slot.failures).
		Str("pending", string(e.Pending)).
		Msg("Countermeasure sink unhealthy")
	return []*domain.Alert{domain.NewHealthAlert(e, c.sinkNames(), now)}
}

func (c *Controller) recordSuccess(slot *blockSlot) {
	slot.failures = 0
	slot.reported = false
	if slot.entry != nil {
		slot.entry.Attempts = 0
		slot.entry.LastError = ""
	}
	if c.degraded.CompareAndSwap(true, false) {
		if c.metrics != nil {
			c.metrics.SetDegraded(false)
		}
		log.Info().Msg("Countermeasure sink recovered")
	}
}

func (c *Controller) persist(e *domain.BlockEntry) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(e); err != nil {
		log.Error().Err(err).Str("source_ip", e.SourceIP.String()).Str("stage", "persist").Msg("Failed to persist block")
	}
}

func (c *Controller) setActive(n int64) {
	if c.metrics != nil {
		c.metrics.SetActiveBlocks(int(n))
	}
	if c.observer != nil {
		c.observer.SetActiveBlocks(int(n))
	}
}

func (c *Controller) sources() []netip.Addr {
	var out []netip.Addr
	for _, shard := range c.shards {
		shard.mu.Lock()
		for ip := range shard.slots {
			out = append(out, ip)
		}
		shard.mu.Unlock()
	}
	return out
}

func (c *Controller) sinkNames() string {
	names := make([]string, len(c.sinks))
	for i, s := range c.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

// Restore loads persisted blocks. Sinks are not called: the blocks are
// still in place from the previous run, and pending ones are retried by
// the next sweep. Sinks no longer configured are forgotten; an entry
// without a sink list counts as applied everywhere unless it is pending.
func (c *Controller) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	entries, err := c.store.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to load blocks: %w", err)
	}
	restored := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return restored, ctx.Err()
		}
		if e == nil || !e.Active || !e.SourceIP.IsValid() {
			continue
		}
		slot := c.lockSlot(e.SourceIP, true)
		if slot.entry == nil {
			slot.entry = c.restoredEntry(e)
			restored++
			c.active.Add(1)
		}
		slot.mu.Unlock()
	}
	c.setActive(c.active.Load())
	log.Info().Int("restored", restored).Msg("Block list restored")
	return restored, nil
}

func (c *Controller) restoredEntry(e *domain.BlockEntry) *domain.BlockEntry {
	out := e.Clone()
	out.Applied = nil
	for _, sink := range c.sinks {
		if e.AppliedBy(sink.Name()) || (len(e.Applied) == 0 && e.Pending != domain.PendingBlock) {
			out.MarkApplied(sink.Name())
		}
	}
	if out.Pending == domain.PendingNone && len(out.Applied) < len(c.sinks) {
		out.Pending = domain.PendingBlock
	}
	return out
}

// Lookup returns a copy of the active entry for ip.
func (c *Controller) Lookup(ip netip.Addr) (*domain.BlockEntry, bool) {
	slot := c.lockSlot(ip, false)
	if slot == nil {
		return nil, false
	}
	defer slot.mu.Unlock()
	if slot.entry == nil || !slot.entry.Active {
		return nil, false
	}
	return slot.entry.Clone(), true
}

// ActiveBlocks returns copies of all active entries, oldest first.
func (c *Controller) ActiveBlocks() []*domain.BlockEntry {
	var out []*domain.BlockEntry
	for _, ip := range c.sources() {
		if e, ok := c.Lookup(ip); ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].SourceIP.Less(out[j].SourceIP)
		}
		return out[i].BlockedAt.Before(out[j].BlockedAt)
	})
	return out
}

func (c *Controller) ActiveCount() int {
	return int(c.active.Load())
}

func (c *Controller) Degraded() bool {
	return c.degraded.Load()
}

func (c *Controller) SinkNames() []string {
	return strings.Split(c.sinkNames(), ",")
}

// Close releases sink handles and the store. Active blocks stay in place.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, s := range c.sinks {
		if closer, ok := s.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			}
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("block store: %w", err))
		}
	}
	log.Info().Int("active_blocks", c.ActiveCount()).Msg("Countermeasure controller closed")
	return errors.Join(errs...)
}
