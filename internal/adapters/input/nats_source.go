package input

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/bus"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

const (
	DefaultNATSSubject = "events.raw"
	DefaultNATSQueue   = "sentinel"
)

// NATSSource consumes raw records from a subject as a member of a queue
// group, so several engines can share one feed.
type NATSSource struct {
	conn       bus.QueueSubscriber
	subject    string
	queue      string
	bufferSize int
	received   atomic.Uint64

	mu      sync.Mutex
	sub     *nats.Subscription
	running bool

	// sendMu orders handler deliveries against closing out.
	sendMu sync.RWMutex
	out    chan domain.RawRecord
	done   chan struct{}
	closed bool
}

func NewNATSSource(conn bus.QueueSubscriber, subject, queue string, bufferSize int) *NATSSource {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if queue == "" {
		queue = DefaultNATSQueue
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &NATSSource{conn: conn, subject: subject, queue: queue, bufferSize: bufferSize}
}

func (s *NATSSource) Start(ctx context.Context) (<-chan domain.RawRecord, <-chan error) {
	errChan := make(chan error, 1)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		out := make(chan domain.RawRecord)
		close(out)
		close(errChan)
		return out, errChan
	}
	s.sendMu.Lock()
	s.out = make(chan domain.RawRecord, s.bufferSize)
	s.done = make(chan struct{})
	s.closed = false
	out, done := s.out, s.done
	s.sendMu.Unlock()

	sub, err := s.conn.QueueSubscribe(s.subject, s.queue, s.handle)
	if err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Str("subject", s.subject).Msg("Failed to subscribe to raw events")
		errChan <- err
		close(errChan)
		s.sendMu.Lock()
		s.closed = true
		close(out)
		s.sendMu.Unlock()
		return out, errChan
	}
	s.sub = sub
	s.running = true
	s.mu.Unlock()

	log.Info().Str("subject", s.subject).Str("queue", s.queue).Msg("Subscribed to raw events")

	go func() {
		defer close(errChan)
		select {
		case <-ctx.Done():
			if err := s.Stop(); err != nil {
				log.Warn().Err(err).Msg("NATS source shutdown failed")
			}
		case <-done:
		}
	}()

	return out, errChan
}

func (s *NATSSource) handle(msg *nats.Msg) {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed || s.out == nil {
		return
	}
	rec := domain.RawRecord{Data: string(msg.Data), ReceivedAt: time.Now(), Origin: "nats:" + msg.Subject}
	select {
	case s.out <- rec:
		s.received.Add(1)
	case <-s.done:
	}
}

// Stop drains the subscription and closes the record channel once no
// handler is still delivering.
func (s *NATSSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	sub := s.sub
	s.mu.Unlock()

	s.sendMu.RLock()
	close(s.done)
	s.sendMu.RUnlock()

	var err error
	if sub != nil {
		err = sub.Drain()
	}

	s.sendMu.Lock()
	s.closed = true
	close(s.out)
	s.sendMu.Unlock()

	log.Info().Uint64("received", s.received.Load()).Msg("NATS source stopped")
	return err
}

func (s *NATSSource) Received() uint64 {
	return s.received.Load()
}
