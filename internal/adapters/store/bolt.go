// Package store persists countermeasure block entries so that active blocks
// survive a restart and can be listed offline.
package store

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var BlocksBucket = []byte("blocks")

type BoltConfig struct {
	Path        string
	OpenTimeout time.Duration
	ReadOnly    bool
}

func DefaultBoltConfig() BoltConfig {
	return BoltConfig{
		Path:        "./data/blocks.db",
		OpenTimeout: time.Second,
	}
}

// BoltBlockStore keeps one JSON encoded BlockEntry per source address.
//
// Thread Safety: bbolt serializes writers; all methods are safe for
// concurrent use.
type BoltBlockStore struct {
	db    *bolt.DB
	path  string
	count atomic.Int64
}

func NewBoltBlockStore(cfg BoltConfig) (*BoltBlockStore, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultBoltConfig().Path
	}
	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{
		Timeout:    cfg.OpenTimeout,
		NoGrowSync: true,
		ReadOnly:   cfg.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	if !cfg.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(BlocksBucket)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	s := &BoltBlockStore{db: db, path: cfg.Path}
	_ = db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(BlocksBucket); b != nil {
			s.count.Store(int64(b.Stats().KeyN))
		}
		return nil
	})

	log.Info().
		Str("db_path", cfg.Path).
		Int64("entries", s.count.Load()).
		Msg("Block store opened")
	return s, nil
}

func (s *BoltBlockStore) Save(entry *domain.BlockEntry) error {
	if entry == nil || !entry.SourceIP.IsValid() {
		return fmt.Errorf("block entry without source address")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode block entry: %w", err)
	}
	key := []byte(entry.SourceIP.String())
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BlocksBucket)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		if b.Get(key) == nil {
			s.count.Add(1)
		}
		return b.Put(key, data)
	})
}

func (s *BoltBlockStore) Delete(ip netip.Addr) error {
	key := []byte(ip.String())
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BlocksBucket)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		if b.Get(key) == nil {
			return nil
		}
		s.count.Add(-1)
		return b.Delete(key)
	})
}

// LoadAll returns every stored entry. Undecodable records are skipped.
func (s *BoltBlockStore) LoadAll() ([]*domain.BlockEntry, error) {
	var out []*domain.BlockEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(BlocksBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var entry domain.BlockEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				log.Warn().Str("key", string(k)).Err(err).Msg("Skipping corrupt block entry")
				return nil
			}
			out = append(out, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read block entries: %w", err)
	}
	return out, nil
}

func (s *BoltBlockStore) Count() int64 {
	return s.count.Load()
}

func (s *BoltBlockStore) Path() string {
	return s.path
}

func (s *BoltBlockStore) Close() error {
	if s.db == nil {
		return nil
	}
	log.Info().Int64("entries", s.count.Load()).Msg("Closing block store")
	return s.db.Close()
}
