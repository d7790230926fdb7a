package input

import (
	"context"
	"sync"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// FileTailer follows a log file, surviving rotation, and delivers each
// line as a raw record.
type FileTailer struct {
	filepath      string
	tail          *tail.Tail
	bufferSize    int
	fromBeginning bool
	poll          bool
	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
}

func NewFileTailer(filepath string, bufferSize int) *FileTailer {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &FileTailer{
		filepath:   filepath,
		bufferSize: bufferSize,
		stopChan:   make(chan struct{}),
	}
}

// NewFileTailerFull reads the existing content before following.
func NewFileTailerFull(filepath string, bufferSize int) *FileTailer {
	t := NewFileTailer(filepath, bufferSize)
	t.fromBeginning = true
	return t
}

func (t *FileTailer) SetFromBeginning(fromBeginning bool) {
	t.fromBeginning = fromBeginning
}

// SetPoll switches from inotify to polling, for filesystems without
// change notifications.
func (t *FileTailer) SetPoll(poll bool) {
	t.poll = poll
}

func (t *FileTailer) Start(ctx context.Context) (<-chan domain.RawRecord, <-chan error) {
	recordChan := make(chan domain.RawRecord, t.bufferSize)
	errChan := make(chan error, 10)

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		close(recordChan)
		close(errChan)
		return recordChan, errChan
	}
	t.running = true
	t.stopChan = make(chan struct{})
	stop := t.stopChan

	whence := 2
	if t.fromBeginning {
		whence = 0
	}
	tl, err := tail.TailFile(t.filepath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      t.poll,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		t.running = false
		t.mu.Unlock()
		log.Error().Err(err).Str("file", t.filepath).Msg("Failed to tail file")
		errChan <- err
		close(recordChan)
		close(errChan)
		return recordChan, errChan
	}
	t.tail = tl
	t.mu.Unlock()

	origin := "file:" + t.filepath

	go func() {
		defer close(recordChan)
		defer close(errChan)

		log.Info().Str("file", t.filepath).Bool("from_beginning", t.fromBeginning).Msg("Started tailing log file")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Context cancelled, stopping tailer")
				return
			case <-stop:
				log.Info().Msg("Stop signal received, stopping tailer")
				return
			case line, ok := <-tl.Lines:
				if !ok {
					log.Info().Msg("Tail channel closed")
					return
				}
				if line.Err != nil {
					log.Warn().Err(line.Err).Msg("Error reading line")
					select {
					case errChan <- line.Err:
					default:
					}
					continue
				}
				if line.Text == "" {
					continue
				}
				if len(line.Text) > domain.MaxRecordLength {
					log.Warn().
						Int("original_size", len(line.Text)).
						Int("truncated_to", domain.MaxRecordLength).
						Msg("Oversized record will be truncated")
				}

				rec := domain.RawRecord{Data: line.Text, ReceivedAt: line.Time, Origin: origin}
				select {
				case recordChan <- rec:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
			}
		}
	}()

	return recordChan, errChan
}

func (t *FileTailer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopChan)
	t.running = false

	if t.tail != nil {
		err := t.tail.Stop()
		t.tail.Cleanup()
		return err
	}
	return nil
}

func (t *FileTailer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
