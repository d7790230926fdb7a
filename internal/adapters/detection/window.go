// Package detection implements signature and stateful detectors.
//
// This file provides the per-source state shared by the aggregating
// detectors (port scan, SYN flood). State lives in sharded LRU tables so
// unrelated sources never contend on one lock.
//
// Memory Management:
//   - LRU eviction per shard (bounded number of sources per shard)
//   - Per-source state is bounded by the detector threshold
//   - Lazy eviction on every access plus a periodic idle sweep
package detection

import (
	"context"
	"hash/maphash"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/pkg/lru"
)

// hashSeed is the process-wide seed for source sharding.
var hashSeed = maphash.MakeSeed()

const (
	defaultShardCount      = 16
	defaultSourcesPerShard = 10000
)

func shardIndex(ip netip.Addr, n int) int {
	b := ip.As16()
	return int(maphash.Bytes(hashSeed, b[:]) % uint64(n))
}

type profileShard[P any] struct {
	mu    sync.Mutex
	table *lru.Table[netip.Addr, P]
}

// profileTable maps a source address to its aggregator profile.
type profileTable[P any] struct {
	shards  []*profileShard[P]
	evicted atomic.Int64
}

func newProfileTable[P any](shards, perShard int) *profileTable[P] {
	if shards <= 0 {
		shards = defaultShardCount
	}
	if perShard <= 0 {
		perShard = defaultSourcesPerShard
	}
	t := &profileTable[P]{shards: make([]*profileShard[P], shards)}
	for i := range t.shards {
		t.shards[i] = &profileShard[P]{
			table: lru.New[netip.Addr, P](perShard, func(netip.Addr, P) { t.evicted.Add(1) }),
		}
	}
	return t
}

// with runs fn on the profile for ip under the shard lock, creating it
// with create when absent.
func (t *profileTable[P]) with(ip netip.Addr, create func() P, fn func(P)) {
	s := t.shards[shardIndex(ip, len(t.shards))]
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.table.GetOrCreate(ip, create))
}

func (t *profileTable[P]) peek(ip netip.Addr, fn func(P)) bool {
	s := t.shards[shardIndex(ip, len(t.shards))]
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.table.Peek(ip)
	if ok {
		fn(p)
	}
	return ok
}

// sweep removes every profile for which idle returns true. Shards are
// swept in parallel.
func (t *profileTable[P]) sweep(idle func(P) bool) int {
	var removed atomic.Int64
	var wg sync.WaitGroup
	for _, s := range t.shards {
		wg.Add(1)
		go func(s *profileShard[P]) {
			defer wg.Done()
			s.mu.Lock()
			n := s.table.RemoveIf(func(_ netip.Addr, p P) bool { return idle(p) }, nil)
			s.mu.Unlock()
			removed.Add(int64(n))
		}(s)
	}
	wg.Wait()
	return int(removed.Load())
}

func (t *profileTable[P]) len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += s.table.Len()
		s.mu.Unlock()
	}
	return total
}

// streamClock tracks the newest event time seen by a detector. Idle sweeps
// measure against it so replayed captures age on their own timeline.
type streamClock struct {
	latest atomic.Int64
}

func (c *streamClock) observe(ts time.Time) {
	n := ts.UnixNano()
	for {
		cur := c.latest.Load()
		if n <= cur || c.latest.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (c *streamClock) reference(now time.Time) time.Time {
	latest := c.latest.Load()
	if latest == 0 || latest > now.UnixNano() {
		return now
	}
	return time.Unix(0, latest)
}

// timeRing is a fixed capacity FIFO of event timestamps (unix nanos).
//
// Thread Safety: NOT thread-safe. Caller holds the shard lock.
type timeRing struct {
	data  []int64
	head  int // index of oldest element
	count int
}

func newTimeRing(capacity int) *timeRing {
	if capacity <= 0 {
		capacity = 128
	}
	return &timeRing{data: make([]int64, capacity)}
}

// push appends ts, overwriting the oldest element when full.
func (r *timeRing) push(ts int64) {
	if r.count == len(r.data) {
		r.data[r.head] = ts
		r.head = (r.head + 1) % len(r.data)
		return
	}
	r.data[(r.head+r.count)%len(r.data)] = ts
	r.count++
}

// evictBefore drops elements older than cutoff from the front.
func (r *timeRing) evictBefore(cutoff int64) {
	for r.count > 0 && r.data[r.head] < cutoff {
		r.head = (r.head + 1) % len(r.data)
		r.count--
	}
}

func (r *timeRing) oldest() int64 {
	if r.count == 0 {
		return 0
	}
	return r.data[r.head]
}

func (r *timeRing) len() int { return r.count }

func (r *timeRing) reset() {
	r.head = 0
	r.count = 0
}

// resize keeps the newest elements that fit in capacity.
func (r *timeRing) resize(capacity int) {
	if capacity <= 0 || capacity == len(r.data) {
		return
	}
	keep := r.count
	if keep > capacity {
		keep = capacity
	}
	next := make([]int64, capacity)
	for i := 0; i < keep; i++ {
		next[i] = r.data[(r.head+r.count-keep+i)%len(r.data)]
	}
	r.data = next
	r.head = 0
	r.count = keep
}

// janitor runs a detector's Cleanup on a ticker until stopped.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func newJanitor(interval time.Duration) *janitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &janitor{interval: interval, stop: make(chan struct{})}
}

func (j *janitor) run(ctx context.Context, name string, cleanup func(time.Time) int) {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-j.stop:
				return
			case now := <-ticker.C:
				if n := cleanup(now); n > 0 {
					log.Debug().Str("detector", name).Int("reclaimed", n).Msg("Idle source profiles reclaimed")
				}
			}
		}
	}()
}

func (j *janitor) halt() {
	j.once.Do(func() { close(j.stop) })
}
