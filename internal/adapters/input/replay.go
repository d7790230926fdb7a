package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// ReplaySource reads a recorded capture from start to end and then closes
// its channel. Records are delivered without drops so a replay always
// produces the same events. Files ending in .zst or .gz are decompressed.
type ReplaySource struct {
	path       string
	bufferSize int
	read       atomic.Uint64

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

func NewReplaySource(path string, bufferSize int) *ReplaySource {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ReplaySource{path: path, bufferSize: bufferSize, stopChan: make(chan struct{})}
}

func (r *ReplaySource) Start(ctx context.Context) (<-chan domain.RawRecord, <-chan error) {
	recordChan := make(chan domain.RawRecord, r.bufferSize)
	errChan := make(chan error, 1)

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		close(recordChan)
		close(errChan)
		return recordChan, errChan
	}
	r.running = true
	r.stopChan = make(chan struct{})
	stop := r.stopChan
	r.mu.Unlock()

	go func() {
		defer close(recordChan)
		defer close(errChan)

		rc, err := openCapture(r.path)
		if err != nil {
			errChan <- err
			return
		}
		defer rc.Close()

		origin := "replay:" + filepath.Base(r.path)
		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*domain.MaxRecordLength)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case recordChan <- domain.RawRecord{Data: line, Origin: origin}:
				r.read.Add(1)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errChan <- fmt.Errorf("replay %s: %w", r.path, err)
			return
		}
		log.Info().Str("file", r.path).Uint64("records", r.read.Load()).Msg("Replay finished")
	}()

	return recordChan, errChan
}

func (r *ReplaySource) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	close(r.stopChan)
	r.running = false
	return nil
}

// Records returns how many records have been delivered so far.
func (r *ReplaySource) Records() uint64 {
	return r.read.Load()
}

type captureReader struct {
	io.Reader
	closers []func() error
}

func (c *captureReader) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openCapture(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	c := &captureReader{Reader: f, closers: []func() error{f.Close}}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		c.Reader = zr
		c.closers = append(c.closers, func() error { zr.Close(); return nil })
	case ".gz":
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		c.Reader = gr
		c.closers = append(c.closers, gr.Close)
	}
	return c, nil
}

// WriteCapture writes records as a capture file, compressed according to
// the file extension. It is the inverse of ReplaySource.
func WriteCapture(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var finish func() error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w, finish = zw, zw.Close
	case ".gz":
		gw := gzip.NewWriter(f)
		w, finish = gw, gw.Close
	}

	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if finish != nil {
		if err := finish(); err != nil {
			return err
		}
	}
	return f.Sync()
}
