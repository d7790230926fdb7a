package store

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

var (
	_ ports.BlockStore = (*BoltBlockStore)(nil)
	_ ports.BlockStore = (*MemoryBlockStore)(nil)
)

func sampleEntry(ip string) *domain.BlockEntry {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.BlockEntry{
		SourceIP:  netip.MustParseAddr(ip),
		Reason:    domain.FindingRef{ID: "f-1", Signature: domain.SignaturePortScan, Severity: domain.SeverityHigh, Timestamp: now},
		BlockedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
		Active:    true,
	}
}

func TestBoltBlockStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "blocks.db")
	s, err := NewBoltBlockStore(BoltConfig{Path: path, OpenTimeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, s.Save(sampleEntry("10.0.0.5")))
	require.NoError(t, s.Save(sampleEntry("10.0.0.9")))
	updated := sampleEntry("10.0.0.5")
	updated.Refreshes = 2
	require.NoError(t, s.Save(updated))
	assert.Equal(t, int64(2), s.Count())

	require.NoError(t, s.Delete(netip.MustParseAddr("10.0.0.9")))
	require.NoError(t, s.Delete(netip.MustParseAddr("10.0.0.77")))
	assert.Equal(t, int64(1), s.Count())
	require.NoError(t, s.Close())

	reopened, err := NewBoltBlockStore(BoltConfig{Path: path, OpenTimeout: time.Second})
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "10.0.0.5", entries[0].SourceIP.String())
	assert.Equal(t, 2, entries[0].Refreshes)
	assert.Equal(t, domain.SeverityHigh, entries[0].Reason.Severity)
	assert.True(t, entries[0].ExpiresAt.Equal(updated.ExpiresAt))
}

func TestBoltBlockStore_RejectsInvalidEntry(t *testing.T) {
	s, err := NewBoltBlockStore(BoltConfig{Path: filepath.Join(t.TempDir(), "b.db")})
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Save(&domain.BlockEntry{}))
	assert.Error(t, s.Save(nil))
}

func TestMemoryBlockStore(t *testing.T) {
	s := NewMemoryBlockStore()
	entry := sampleEntry("192.168.1.50")
	require.NoError(t, s.Save(entry))

	entry.Refreshes = 9
	entries, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].Refreshes, "store keeps its own copy")

	require.NoError(t, s.Delete(entry.SourceIP))
	entries, _ = s.LoadAll()
	assert.Empty(t, entries)
}
