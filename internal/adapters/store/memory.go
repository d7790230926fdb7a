package store

import (
	"net/netip"
	"sync"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// MemoryBlockStore is a non-persistent BlockStore used when no database
// path is configured.
type MemoryBlockStore struct {
	mu      sync.RWMutex
	entries map[netip.Addr]*domain.BlockEntry
}

func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{entries: make(map[netip.Addr]*domain.BlockEntry)}
}

func (s *MemoryBlockStore) Save(entry *domain.BlockEntry) error {
	s.mu.Lock()
	s.entries[entry.SourceIP] = entry.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryBlockStore) Delete(ip netip.Addr) error {
	s.mu.Lock()
	delete(s.entries, ip)
	s.mu.Unlock()
	return nil
}

func (s *MemoryBlockStore) LoadAll() ([]*domain.BlockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.BlockEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *MemoryBlockStore) Close() error {
	return nil
}

func (s *MemoryBlockStore) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries))
}
