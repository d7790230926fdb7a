package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// OverflowWriter spills events and alerts that could not be queued in time
// to a JSON lines file.
type OverflowWriter struct {
	file    *os.File
	writer  *bufio.Writer
	mu      sync.Mutex
	count   atomic.Int64
	enabled bool
	path    string
}

type OverflowRecord struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewOverflowWriter(path string) (*OverflowWriter, error) {
	if path == "" {
		return &OverflowWriter{enabled: false}, nil
	}

	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("Overflow writer initialized")

	return &OverflowWriter{
		file:    file,
		writer:  bufio.NewWriterSize(file, 64*1024),
		enabled: true,
		path:    path,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (w *OverflowWriter) WriteEvent(ev *domain.Event) error {
	if !w.enabled {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return w.write("event", data)
}

func (w *OverflowWriter) WriteAlert(alert *domain.Alert) error {
	if !w.enabled {
		return nil
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return w.write("alert", data)
}

func (w *OverflowWriter) write(kind string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(OverflowRecord{Type: kind, Timestamp: time.Now(), Data: data})
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}

	if w.count.Add(1)%100 == 0 {
		if err := w.writer.Flush(); err != nil {
			return err
		}
		return w.file.Sync()
	}
	return nil
}

func (w *OverflowWriter) Flush() error {
	if !w.enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *OverflowWriter) Close() error {
	if !w.enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if count := w.count.Load(); count > 0 {
		log.Warn().
			Int64("overflow_count", count).
			Str("path", w.path).
			Msg("Overflow file contains unprocessed records")
	}
	w.enabled = false
	return w.file.Close()
}

func (w *OverflowWriter) Count() int64 {
	return w.count.Load()
}

func (w *OverflowWriter) Enabled() bool {
	return w.enabled
}

// QuarantineWriter records events that made a lane panic.
type QuarantineWriter struct {
	file    *os.File
	writer  *bufio.Writer
	mu      sync.Mutex
	count   atomic.Int64
	enabled bool
	path    string
}

type QuarantineRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	Lane       int           `json:"lane"`
	PanicError string        `json:"panic_error"`
	StackTrace string        `json:"stack_trace,omitempty"`
	Event      *domain.Event `json:"event"`
}

func NewQuarantineWriter(path string) (*QuarantineWriter, error) {
	if path == "" {
		return &QuarantineWriter{enabled: false}, nil
	}

	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("Quarantine writer initialized")

	return &QuarantineWriter{
		file:    file,
		writer:  bufio.NewWriterSize(file, 16*1024),
		enabled: true,
		path:    path,
	}, nil
}

func (w *QuarantineWriter) Quarantine(lane int, panicErr interface{}, ev *domain.Event) error {
	if !w.enabled {
		return nil
	}

	panicStr := "unknown panic"
	switch v := panicErr.(type) {
	case nil:
	case error:
		panicStr = v.Error()
	case string:
		panicStr = v
	default:
		panicStr = fmt.Sprintf("%v", v)
	}

	line, err := json.Marshal(QuarantineRecord{
		Timestamp:  time.Now(),
		Lane:       lane,
		PanicError: panicStr,
		StackTrace: string(debug.Stack()),
		Event:      ev,
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}

	log.Warn().
		Int("lane", lane).
		Str("panic", panicStr).
		Int64("quarantine_count", w.count.Add(1)).
		Msg("Event quarantined")
	return nil
}

func (w *QuarantineWriter) Close() error {
	if !w.enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if count := w.count.Load(); count > 0 {
		log.Warn().
			Int64("quarantined", count).
			Str("path", w.path).
			Msg("Quarantine file contains events requiring analysis")
	}
	w.enabled = false
	return w.file.Close()
}

func (w *QuarantineWriter) Count() int64 {
	return w.count.Load()
}

func (w *QuarantineWriter) Enabled() bool {
	return w.enabled
}
