// Package output provides the alert stream destinations and the
// operator-facing surfaces of the engine.
//
// Alert destinations:
//   - JSONAlerter: Buffered JSON lines to file or stdout
//   - MemoryAlerter: In-memory ring buffer for the dashboard and status API
//   - NATSAlerter: Publishes alerts on alerts.<severity> subjects
//
// Surfaces:
//   - PrometheusMetrics: Counters and histograms on a private registry
//   - HealthChecker and APIServer: /healthz, /status, /blocks, /alerts, /metrics
//
// Thread Safety: All alerters are safe for concurrent Send() calls.
package output

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// JSONAlerter writes one JSON object per alert.
//
// Features:
//   - Buffered writes for high throughput
//   - Periodic flush every second
//   - Optional pretty-printing
//   - File sync on flush for durability
type JSONAlerter struct {
	bufWriter *bufio.Writer
	file      *os.File // nil for stdout or a caller-supplied writer
	mu        sync.Mutex
	encoder   *json.Encoder
	stopFlush chan struct{}
	closeOnce sync.Once
}

// JSONAlerterConfig configures JSON alert output.
type JSONAlerterConfig struct {
	FilePath string    // Output file path
	Stdout   bool      // Write to stdout
	Pretty   bool      // Pretty-print JSON
	Writer   io.Writer // Explicit destination, takes precedence
}

// NewJSONAlerter creates a JSON alert output.
//
// Output Priority:
//  1. config.Writer if set
//  2. Stdout if config.Stdout is true
//  3. File if config.FilePath is set (parent directories are created)
//  4. io.Discard otherwise
//
// File Permissions: 0600 (owner read/write only)
func NewJSONAlerter(config JSONAlerterConfig) (*JSONAlerter, error) {
	var writer io.Writer
	var file *os.File

	switch {
	case config.Writer != nil:
		writer = config.Writer
	case config.Stdout:
		writer = os.Stdout
	case config.FilePath != "":
		if dir := filepath.Dir(config.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		var err error
		file, err = os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		writer = file
	default:
		writer = io.Discard
	}

	const bufferSize = 64 * 1024
	bufWriter := bufio.NewWriterSize(writer, bufferSize)

	alerter := &JSONAlerter{
		bufWriter: bufWriter,
		file:      file,
		stopFlush: make(chan struct{}),
	}
	alerter.encoder = json.NewEncoder(bufWriter)
	if config.Pretty {
		alerter.encoder.SetIndent("", "  ")
	}

	go alerter.periodicFlush()
	return alerter, nil
}

func (a *JSONAlerter) periodicFlush() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.Flush(); err != nil {
				log.Debug().Err(err).Msg("Periodic alert flush failed")
			}
		case <-a.stopFlush:
			return
		}
	}
}

func (a *JSONAlerter) Send(ctx context.Context, alert *domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.encoder.Encode(alert)
}

// Flush forces buffered data to the destination and syncs files.
func (a *JSONAlerter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.bufWriter.Flush(); err != nil {
		return err
	}
	if a.file != nil {
		return a.file.Sync()
	}
	return nil
}

// Close stops periodic flushing, flushes and closes the file. Calling it
// again is a no-op.
func (a *JSONAlerter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.stopFlush)

		a.mu.Lock()
		defer a.mu.Unlock()

		if err = a.bufWriter.Flush(); err != nil {
			return
		}
		if a.file != nil {
			if err = a.file.Sync(); err != nil {
				return
			}
			err = a.file.Close()
		}
	})
	return err
}

// MemoryAlerter stores alerts in a fixed-size ring buffer.
//
// Used by the dashboard and the /alerts endpoint to keep bounded memory
// while giving access to recent alerts.
//
// Thread Safety: Safe for concurrent access via RWMutex.
type MemoryAlerter struct {
	alerts    []*domain.Alert
	head      int // next write position
	count     int
	maxAlerts int
	mu        sync.RWMutex
}

// NewMemoryAlerter creates an in-memory alert buffer holding at most
// maxAlerts entries (default: 1000 if <= 0).
func NewMemoryAlerter(maxAlerts int) *MemoryAlerter {
	if maxAlerts <= 0 {
		maxAlerts = 1000
	}
	return &MemoryAlerter{
		alerts:    make([]*domain.Alert, maxAlerts),
		maxAlerts: maxAlerts,
	}
}

// Send stores an alert, overwriting the oldest one when full.
func (a *MemoryAlerter) Send(ctx context.Context, alert *domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.alerts[a.head] = alert
	a.head = (a.head + 1) % a.maxAlerts
	if a.count < a.maxAlerts {
		a.count++
	}
	return nil
}

func (a *MemoryAlerter) Flush() error { return nil }
func (a *MemoryAlerter) Close() error { return nil }

// GetAlerts returns all stored alerts, oldest first.
func (a *MemoryAlerter) GetAlerts() []*domain.Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*domain.Alert, a.count)
	if a.count == 0 {
		return result
	}

	start := 0
	if a.count == a.maxAlerts {
		start = a.head
	}
	for i := 0; i < a.count; i++ {
		result[i] = a.alerts[(start+i)%a.maxAlerts]
	}
	return result
}

// GetLatestAlerts returns the n most recent alerts, oldest first. n <= 0
// returns everything stored.
func (a *MemoryAlerter) GetLatestAlerts(n int) []*domain.Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 || n > a.count {
		n = a.count
	}
	if n == 0 {
		return []*domain.Alert{}
	}

	result := make([]*domain.Alert, n)
	for i := 0; i < n; i++ {
		idx := (a.head - n + i + a.maxAlerts) % a.maxAlerts
		result[i] = a.alerts[idx]
	}
	return result
}

// SinceSeq returns stored alerts with Seq greater than seq, oldest first.
// Pollers use it to resume the stream.
func (a *MemoryAlerter) SinceSeq(seq uint64) []*domain.Alert {
	var out []*domain.Alert
	for _, alert := range a.GetAlerts() {
		if alert.Seq > seq {
			out = append(out, alert)
		}
	}
	return out
}

func (a *MemoryAlerter) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

func (a *MemoryAlerter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.head = 0
	a.count = 0
	for i := range a.alerts {
		a.alerts[i] = nil
	}
}

// OnAlert implements ports.AlertSubscriber.
func (a *MemoryAlerter) OnAlert(alert *domain.Alert) {
	_ = a.Send(context.Background(), alert)
}
