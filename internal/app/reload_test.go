package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newTestReloader(t *testing.T, body string, apply ApplyFunc) (*Reloader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, body)

	v := NewViper(path)
	require.NoError(t, v.ReadInConfig())
	initial, err := LoadEngineConfig(v)
	require.NoError(t, err)

	r := NewReloader(ReloadOptions{Viper: v, Initial: initial, Apply: apply, DebounceDelay: 20 * time.Millisecond})
	t.Cleanup(r.Stop)
	return r, path
}

func TestReloader_Reload(t *testing.T) {
	var mu sync.Mutex
	var got []*EngineConfig
	r, path := newTestReloader(t, "dedup:\n  cooldown: 30s\n", func(cfg *EngineConfig) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, cfg)
		return nil
	})
	assert.Equal(t, 30*time.Second, r.Current().Dedup.Cooldown)

	writeConfig(t, path, "dedup:\n  cooldown: 90s\n")
	require.NoError(t, r.Reload())

	assert.Equal(t, 90*time.Second, r.Current().Dedup.Cooldown)
	assert.Equal(t, int64(1), r.Applied())
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestReloader_KeepsCurrentOnInvalidEdit(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		apply ApplyFunc
	}{
		{name: "validation", body: "dedup:\n  escalation_count: 1\n"},
		{name: "malformed yaml", body: "dedup: [\n"},
		{
			name:  "apply error",
			body:  "dedup:\n  cooldown: 10s\n",
			apply: func(*EngineConfig) error { return errors.New("refused") },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			apply := func(cfg *EngineConfig) error {
				calls++
				if tc.apply != nil {
					return tc.apply(cfg)
				}
				return nil
			}
			r, path := newTestReloader(t, "dedup:\n  cooldown: 30s\n", apply)
			before := r.Current()

			writeConfig(t, path, tc.body)
			assert.Error(t, r.Reload())
			assert.Same(t, before, r.Current())
			assert.Equal(t, int64(1), r.Rejected())
			assert.Zero(t, r.Applied())
			if tc.apply == nil {
				assert.Zero(t, calls)
			}
		})
	}
}

func TestReloader_WatchAppliesEdit(t *testing.T) {
	applied := make(chan *EngineConfig, 16)
	r, path := newTestReloader(t, "detection:\n  port_scan:\n    threshold: 20\n", func(cfg *EngineConfig) error {
		applied <- cfg
		return nil
	})
	r.StartWatching()

	writeConfig(t, path, "detection:\n  port_scan:\n    threshold: 35\n")

	select {
	case cfg := <-applied:
		assert.Equal(t, 35, cfg.Detection.PortScanThreshold)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not applied")
	}
}

func TestReloader_StoppedIgnoresReload(t *testing.T) {
	r, path := newTestReloader(t, "dedup:\n  cooldown: 30s\n", nil)
	r.Stop()

	writeConfig(t, path, "dedup:\n  cooldown: 60s\n")
	require.NoError(t, r.Reload())
	assert.Equal(t, 30*time.Second, r.Current().Dedup.Cooldown)
}
