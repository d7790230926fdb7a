package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ApplyFunc installs a validated configuration. An error rejects it and
// the previous configuration stays in effect.
type ApplyFunc func(cfg *EngineConfig) error

type ReloadOptions struct {
	Viper         *viper.Viper
	Initial       *EngineConfig
	Apply         ApplyFunc
	DebounceDelay time.Duration
}

// Reloader watches the config file and applies valid edits at runtime.
// Editors usually emit several write events per save, so changes are
// debounced.
type Reloader struct {
	v        *viper.Viper
	apply    ApplyFunc
	debounce time.Duration

	current atomic.Pointer[EngineConfig]
	applied atomic.Int64
	rejects atomic.Int64

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewReloader(opts ReloadOptions) *Reloader {
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = 500 * time.Millisecond
	}
	r := &Reloader{v: opts.Viper, apply: opts.Apply, debounce: opts.DebounceDelay}
	if opts.Initial != nil {
		r.current.Store(opts.Initial)
	}
	return r
}

// StartWatching registers the change handler. It requires a config file
// to have been read.
func (r *Reloader) StartWatching() {
	r.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading...")
		r.schedule()
	})
	r.v.WatchConfig()
	log.Info().Str("config", r.v.ConfigFileUsed()).Msg("Hot-reload config watching started")
}

func (r *Reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		_ = r.Reload()
	})
}

// Reload re-reads the config file, validates it and applies it.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.v.ReadInConfig(); err != nil {
		r.rejects.Add(1)
		log.Error().Err(err).Msg("Failed to re-read config, keeping current configuration")
		return err
	}
	cfg, err := LoadEngineConfig(r.v)
	if err != nil {
		r.rejects.Add(1)
		log.Error().Err(err).Msg("Invalid configuration, rejecting reload")
		return err
	}
	if r.apply != nil {
		if err := r.apply(cfg); err != nil {
			r.rejects.Add(1)
			log.Error().Err(err).Msg("Failed to apply configuration, keeping current")
			return err
		}
	}
	r.current.Store(cfg)
	r.applied.Add(1)
	log.Info().Msg("Configuration hot-reloaded successfully")
	return nil
}

func (r *Reloader) Current() *EngineConfig {
	return r.current.Load()
}

func (r *Reloader) Applied() int64 {
	return r.applied.Load()
}

func (r *Reloader) Rejected() int64 {
	return r.rejects.Load()
}

// Stop ignores further file events. viper offers no way to remove the
// watcher itself.
func (r *Reloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	log.Info().Msg("Hot-reload config watcher stopped")
}
