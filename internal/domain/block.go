package domain

import (
	"net/netip"
	"time"
)

type BlockState string

const (
	BlockStateUnblocked BlockState = "UNBLOCKED"
	BlockStateBlocked   BlockState = "BLOCKED"
)

// PendingOp marks a sink command that has not been acknowledged yet.
type PendingOp string

const (
	PendingNone    PendingOp = ""
	PendingBlock   PendingOp = "block"
	PendingUnblock PendingOp = "unblock"
)

type BlockEntry struct {
	SourceIP  netip.Addr `json:"source_ip"`
	Reason    FindingRef `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Active    bool       `json:"active"`
	Pending   PendingOp  `json:"pending,omitempty"`
	Attempts  int        `json:"attempts,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Refreshes int        `json:"refreshes,omitempty"`
	// Applied names the sinks currently enforcing the block.
	Applied   []string   `json:"applied_sinks,omitempty"`
}

func NewBlockEntry(f Finding, now time.Time, duration time.Duration) *BlockEntry {
	return &BlockEntry{
		SourceIP:  f.SourceIP,
		Reason:    f.Ref(),
		BlockedAt: now,
		ExpiresAt: now.Add(duration),
		Active:    true,
	}
}

func (b *BlockEntry) State() BlockState {
	if b == nil || !b.Active {
		return BlockStateUnblocked
	}
	return BlockStateBlocked
}

func (b *BlockEntry) Expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

func (b *BlockEntry) Remaining(now time.Time) time.Duration {
	if d := b.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (b *BlockEntry) Ref() BlockRef {
	return BlockRef{SourceIP: b.SourceIP, BlockedAt: b.BlockedAt, ExpiresAt: b.ExpiresAt, Reason: b.Reason.ID}
}

func (b *BlockEntry) Clone() *BlockEntry {
	if b == nil {
		return nil
	}
	c := *b
	if b.Applied != nil {
		c.Applied = append([]string(nil), b.Applied...)
	}
	return &c
}

func (b *BlockEntry) AppliedBy(sink string) bool {
	for _, name := range b.Applied {
		if name == sink {
			return true
		}
	}
	return false
}

func (b *BlockEntry) MarkApplied(sink string) {
	if !b.AppliedBy(sink) {
		b.Applied = append(b.Applied, sink)
	}
}

func (b *BlockEntry) MarkLifted(sink string) {
	out := b.Applied[:0]
	for _, name := range b.Applied {
		if name != sink {
			out = append(out, name)
		}
	}
	b.Applied = out
}

type BlockRef struct {
	SourceIP  netip.Addr `json:"source_ip"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Reason    string     `json:"reason_finding_id,omitempty"`
}
