package app

import (
	"hash/maphash"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

const (
	defaultDedupShards          = 16
	defaultDedupEntriesPerShard = 10000
)

// DedupPolicy controls suppression and escalation of repeated findings.
type DedupPolicy struct {
	Cooldown        time.Duration
	EscalationCount int
}

func DefaultDedupPolicy() DedupPolicy {
	return DedupPolicy{Cooldown: 30 * time.Second, EscalationCount: 3}
}

type DedupConfig struct {
	Policy             DedupPolicy
	ShardCount         int
	MaxEntriesPerShard int
}

// Admission is the outcome of DedupCache.Admit. Finding is the input
// finding, or the escalated copy when Decision is ESCALATED.
type Admission struct {
	Decision domain.Decision
	Finding  domain.Finding
}

// DedupCache tracks (source, signature) pairs and decides whether a new
// finding is reported, suppressed or escalated. Time is taken from the
// finding timestamps so replays are deterministic.
type DedupCache struct {
	policy atomic.Pointer[DedupPolicy]
	seed   maphash.Seed
	shards []*dedupShard
}

type dedupShard struct {
	mu      sync.Mutex
	entries *lru.Cache[domain.DedupKey, *domain.DedupEntry]
}

func NewDedupCache(cfg DedupConfig) (*DedupCache, error) {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = defaultDedupShards
	}
	if cfg.MaxEntriesPerShard <= 0 {
		cfg.MaxEntriesPerShard = defaultDedupEntriesPerShard
	}
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}

	c := &DedupCache{seed: maphash.MakeSeed(), shards: make([]*dedupShard, cfg.ShardCount)}
	for i := range c.shards {
		entries, err := lru.New[domain.DedupKey, *domain.DedupEntry](cfg.MaxEntriesPerShard)
		if err != nil {
			return nil, err
		}
		c.shards[i] = &dedupShard{entries: entries}
	}
	policy := cfg.Policy
	c.policy.Store(&policy)
	return c, nil
}

func (p DedupPolicy) validate() error {
	if p.Cooldown <= 0 {
		return &domain.ConfigurationError{Field: "dedup.cooldown", Value: p.Cooldown, Reason: "must be positive"}
	}
	if p.EscalationCount < 2 {
		return &domain.ConfigurationError{Field: "dedup.escalation_count", Value: p.EscalationCount, Reason: "must be at least 2"}
	}
	return nil
}

// SetPolicy swaps the policy. Existing entries keep their counts.
func (c *DedupCache) SetPolicy(p DedupPolicy) error {
	if err := p.validate(); err != nil {
		return err
	}
	c.policy.Store(&p)
	return nil
}

func (c *DedupCache) Policy() DedupPolicy {
	return *c.policy.Load()
}

func (c *DedupCache) shardFor(ip netip.Addr) *dedupShard {
	b := ip.As16()
	return c.shards[maphash.Bytes(c.seed, b[:])%uint64(len(c.shards))]
}

// Admit records f and returns the decision for it.
func (c *DedupCache) Admit(f domain.Finding) Admission {
	policy := c.policy.Load()
	key := f.Key()
	now := f.Timestamp

	shard := c.shardFor(f.SourceIP)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries.Get(key)
	if !ok || now.Sub(entry.LastSeen) > policy.Cooldown {
		shard.entries.Add(key, &domain.DedupEntry{
			LastSeen:        now,
			EpochStart:      now,
			OccurrenceCount: 1,
			CurrentSeverity: f.Severity,
		})
		return Admission{Decision: domain.DecisionNew, Finding: f}
	}

	// Late arrivals count toward the epoch but never move LastSeen back.
	if now.After(entry.LastSeen) {
		entry.LastSeen = now
	}
	entry.OccurrenceCount++

	if entry.OccurrenceCount%policy.EscalationCount == 0 {
		sev := domain.MaxSeverity(entry.CurrentSeverity, f.Severity).Escalate()
		entry.CurrentSeverity = sev
		escalated := f.Escalated(sev)
		log.Debug().
			Str("source_ip", f.SourceIP.String()).
			Str("signature", string(f.Signature)).
			Int("count", entry.OccurrenceCount).
			Str("severity", sev.String()).
			Msg("Finding escalated")
		return Admission{Decision: domain.DecisionEscalated, Finding: escalated}
	}

	entry.CurrentSeverity = domain.MaxSeverity(entry.CurrentSeverity, f.Severity)
	return Admission{Decision: domain.DecisionSuppressed, Finding: f}
}

// Entry returns a copy of the entry for key.
func (c *DedupCache) Entry(key domain.DedupKey) (domain.DedupEntry, bool) {
	shard := c.shardFor(key.SourceIP)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	e, ok := shard.entries.Peek(key)
	if !ok {
		return domain.DedupEntry{}, false
	}
	return *e, true
}

// Sweep drops entries whose cooldown has lapsed at now and returns how
// many were removed.
func (c *DedupCache) Sweep(now time.Time) int {
	cooldown := c.policy.Load().Cooldown
	removed := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for _, key := range shard.entries.Keys() {
			if e, ok := shard.entries.Peek(key); ok && now.Sub(e.LastSeen) > cooldown {
				shard.entries.Remove(key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (c *DedupCache) Len() int {
	n := 0
	for _, shard := range c.shards {
		n += shard.entries.Len()
	}
	return n
}
