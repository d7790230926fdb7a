package input

import (
	"context"
	"sync"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// SliceSource replays an in-memory list of records and closes.
type SliceSource struct {
	records []domain.RawRecord

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

func NewSliceSource(records []domain.RawRecord) *SliceSource {
	return &SliceSource{records: records, stopChan: make(chan struct{})}
}

// NewLineSource wraps plain lines as records from origin.
func NewLineSource(origin string, lines ...string) *SliceSource {
	records := make([]domain.RawRecord, len(lines))
	for i, l := range lines {
		records[i] = domain.RawRecord{Data: l, Origin: origin}
	}
	return NewSliceSource(records)
}

func (s *SliceSource) Start(ctx context.Context) (<-chan domain.RawRecord, <-chan error) {
	out := make(chan domain.RawRecord)
	errs := make(chan error)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		close(out)
		close(errs)
		return out, errs
	}
	s.running = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errs)
		for _, rec := range s.records {
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
	return out, errs
}

func (s *SliceSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stopChan)
	s.running = false
	return nil
}
