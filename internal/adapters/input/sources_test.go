package input

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

func collect(t *testing.T, records <-chan domain.RawRecord, want int, timeout time.Duration) []domain.RawRecord {
	t.Helper()
	var out []domain.RawRecord
	deadline := time.After(timeout)
	for len(out) < want {
		select {
		case rec, ok := <-records:
			if !ok {
				return out
			}
			out = append(out, rec)
		case <-deadline:
			t.Fatalf("timed out after %d of %d records", len(out), want)
		}
	}
	return out
}

func TestSliceSource(t *testing.T) {
	src := NewLineSource("test", "a", "b", "c")
	records, errs := src.Start(context.Background())

	got := collect(t, records, 4, time.Second)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[1].Data)
	assert.Equal(t, "test", got[1].Origin)

	_, open := <-errs
	assert.False(t, open)
	assert.NoError(t, src.Stop())
}

func TestReplaySource_Formats(t *testing.T) {
	lines := []string{
		"SRC=10.0.0.5 DST=10.0.0.1 PROTO=TCP DPT=1 SYN",
		"",
		"SRC=10.0.0.5 DST=10.0.0.1 PROTO=TCP DPT=2 SYN",
		"SRC=10.0.0.5 DST=10.0.0.1 PROTO=TCP DPT=3 SYN",
	}
	for _, name := range []string{"capture.log", "capture.log.gz", "capture.log.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteCapture(path, lines))

			src := NewReplaySource(path, 2)
			records, errs := src.Start(context.Background())
			got := collect(t, records, 4, 5*time.Second)

			require.Len(t, got, 3)
			assert.Contains(t, got[2].Data, "DPT=3")
			assert.Equal(t, "replay:"+name, got[0].Origin)
			assert.Equal(t, uint64(3), src.Records())
			for err := range errs {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReplaySource_MissingFile(t *testing.T) {
	src := NewReplaySource(filepath.Join(t.TempDir(), "absent.zst"), 10)
	records, errs := src.Start(context.Background())

	err := <-errs
	require.Error(t, err)
	_, open := <-records
	assert.False(t, open)
}

func TestReplaySource_Stop(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "198.51.100.1 line"
	}
	path := filepath.Join(t.TempDir(), "big.log")
	require.NoError(t, WriteCapture(path, lines))

	src := NewReplaySource(path, 1)
	records, _ := src.Start(context.Background())
	<-records
	require.NoError(t, src.Stop())

	n := 0
	for range records {
		n++
	}
	assert.Less(t, n, 99)
}

type fakeSubscriber struct {
	mu      sync.Mutex
	subject string
	queue   string
	cb      nats.MsgHandler
	err     error
}

func (f *fakeSubscriber) QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subject, f.queue, f.cb = subject, queue, cb
	return nil, nil
}

func (f *fakeSubscriber) deliver(data string) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb(&nats.Msg{Subject: f.subject, Data: []byte(data)})
}

func TestNATSSource(t *testing.T) {
	fake := &fakeSubscriber{}
	src := NewNATSSource(fake, "", "", 10)
	records, _ := src.Start(context.Background())

	assert.Equal(t, DefaultNATSSubject, fake.subject)
	assert.Equal(t, DefaultNATSQueue, fake.queue)

	fake.deliver("SRC=10.0.0.5 DST=10.0.0.1 PROTO=TCP DPT=22 SYN")
	fake.deliver("198.51.100.3 hello")

	got := collect(t, records, 2, time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, "nats:events.raw", got[0].Origin)
	assert.False(t, got[0].ReceivedAt.IsZero())
	assert.Equal(t, uint64(2), src.Received())

	require.NoError(t, src.Stop())
	_, open := <-records
	assert.False(t, open)

	// late deliveries after stop are discarded
	fake.deliver("198.51.100.3 late")
	assert.Equal(t, uint64(2), src.Received())
}

func TestNATSSource_ContextCancelStops(t *testing.T) {
	fake := &fakeSubscriber{}
	src := NewNATSSource(fake, "custom.subject", "workers", 1)
	ctx, cancel := context.WithCancel(context.Background())
	records, errs := src.Start(ctx)
	cancel()

	select {
	case _, open := <-records:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not close on cancel")
	}
	for range errs {
	}
}

func TestNATSSource_SubscribeError(t *testing.T) {
	src := NewNATSSource(&fakeSubscriber{err: errors.New("no responders")}, "", "", 1)
	records, errs := src.Start(context.Background())

	assert.Error(t, <-errs)
	_, open := <-records
	assert.False(t, open)
}

func TestDemoGenerator_ScenariosNormalize(t *testing.T) {
	a := newTestAdapter(t, FormatAuto)
	rng := rand.New(rand.NewSource(7))

	for _, format := range []OutputFormat{FormatCLF, FormatJSON} {
		g := NewDemoGenerator(DemoConfig{Rate: 100, AttackPercent: 100, Format: format})
		kinds := map[domain.EventKind]int{}
		for i := 0; i < 200; i++ {
			for _, line := range g.Scenario(rng, fixedNow) {
				ev, err := a.Normalize(domain.RawRecord{Data: line})
				require.NoError(t, err, line)
				kinds[ev.Kind]++
			}
		}
		assert.Positive(t, kinds[domain.EventKindHTTPRequest])
		assert.Positive(t, kinds[domain.EventKindConnection])
	}
}

func TestDemoGenerator_StartStop(t *testing.T) {
	g := NewDemoGenerator(DemoConfig{Rate: 2000, BufferSize: 100, AttackPercent: 10, Seed: 1})
	records, _ := g.Start(context.Background())

	got := collect(t, records, 10, 3*time.Second)
	assert.Len(t, got, 10)
	assert.True(t, g.IsRunning())

	require.NoError(t, g.Stop())
	for range records {
	}
	assert.False(t, g.IsRunning())
	assert.GreaterOrEqual(t, g.Generated(), uint64(10))
}

func TestFileTailer_FromBeginning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte("198.51.100.1 first\n198.51.100.2 second\n"), 0o600))

	tailer := NewFileTailerFull(path, 10)
	tailer.SetPoll(true)
	records, _ := tailer.Start(context.Background())
	defer tailer.Stop()

	got := collect(t, records, 2, 5*time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, "198.51.100.1 first", got[0].Data)
	assert.Equal(t, "file:"+path, got[0].Origin)
	assert.True(t, tailer.IsRunning())
}
