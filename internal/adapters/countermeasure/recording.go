package countermeasure

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var errInjected = errors.New("injected failure")

// Call is one command received by a RecordingSink.
type Call struct {
	Op       string
	IP       netip.Addr
	Duration time.Duration
	At       time.Time
	Err      error
}

// RecordingSink keeps every command in memory and can be told to fail.
// It backs tests and the replay command's summary.
type RecordingSink struct {
	name string

	mu       sync.Mutex
	calls    []Call
	failNext int
	failing  bool
}

func NewRecordingSink(name string) *RecordingSink {
	if name == "" {
		name = "recording"
	}
	return &RecordingSink{name: name}
}

func (s *RecordingSink) Name() string { return s.name }

func (s *RecordingSink) Block(ctx context.Context, ip netip.Addr, d time.Duration) error {
	return s.record("block", ip, d)
}

func (s *RecordingSink) Unblock(ctx context.Context, ip netip.Addr) error {
	return s.record("unblock", ip, 0)
}

func (s *RecordingSink) record(op string, ip netip.Addr, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.failing || s.failNext > 0 {
		if s.failNext > 0 {
			s.failNext--
		}
		err = &domain.SinkUnavailableError{Sink: s.name, Op: op, IP: ip, Err: errInjected}
	}
	s.calls = append(s.calls, Call{Op: op, IP: ip, Duration: d, At: time.Now(), Err: err})
	return err
}

// FailNext makes the next n commands fail.
func (s *RecordingSink) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SetFailing makes every command fail until cleared.
func (s *RecordingSink) SetFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *RecordingSink) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count returns the acknowledged commands for op.
func (s *RecordingSink) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op && c.Err == nil {
			n++
		}
	}
	return n
}

func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.failNext = 0
	s.failing = false
}
