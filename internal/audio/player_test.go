package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink drains the streamer on its own goroutine.
type fakeSink struct {
	mu      sync.Mutex
	samples int
	format  beep.Format
	active  atomic.Bool
	stopped atomic.Bool
	hold    chan struct{}
}

func (s *fakeSink) Play(st beep.Streamer, f beep.Format) error {
	s.active.Store(true)
	go func() {
		if s.hold != nil {
			<-s.hold
		}
		buf := make([][2]float64, 512)
		for {
			n, ok := st.Stream(buf)
			s.mu.Lock()
			s.samples += n
			s.format = f
			s.mu.Unlock()
			if !ok {
				break
			}
		}
		s.active.Store(false)
	}()
	return nil
}

func (s *fakeSink) Active() bool { return s.active.Load() }

func (s *fakeSink) Stop() {
	s.stopped.Store(true)
	if s.hold != nil {
		close(s.hold)
	}
}

type fakeDuck struct{ ducked, unducked int }

func (d *fakeDuck) DuckOthers(context.Context, float64, time.Duration) error {
	d.ducked++
	return nil
}

func (d *fakeDuck) UnduckOthers(context.Context, time.Duration) error {
	d.unducked++
	return nil
}

func wavBytes(t *testing.T, n int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	require.NoError(t, WriteWAV(path, samples, SampleRate))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestPlayBytesWAV(t *testing.T) {
	sink := &fakeSink{}
	duck := &fakeDuck{}
	tmp := t.TempDir()
	p := NewPlayer(sink, duck, tmp)

	require.NoError(t, p.PlayBytes(context.Background(), wavBytes(t, 1600)))

	sink.mu.Lock()
	assert.Equal(t, 1600, sink.samples)
	assert.Equal(t, beep.SampleRate(SampleRate), sink.format.SampleRate)
	sink.mu.Unlock()
	assert.Equal(t, 1, duck.ducked)
	assert.Equal(t, 1, duck.unducked)

	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestPlayBytesEmpty(t *testing.T) {
	tmp := t.TempDir()
	p := NewPlayer(&fakeSink{}, nil, tmp)

	assert.ErrorIs(t, p.PlayBytes(context.Background(), nil), ErrEmptyAudio)
	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestPlayBytesGarbage(t *testing.T) {
	tmp := t.TempDir()
	p := NewPlayer(&fakeSink{}, nil, tmp)

	assert.Error(t, p.PlayBytes(context.Background(), []byte("this is not audio at all")))
	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestPlayCancelStopsSink(t *testing.T) {
	sink := &fakeSink{hold: make(chan struct{})}
	p := NewPlayer(sink, nil, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := p.PlayBytes(ctx, wavBytes(t, 160))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, sink.stopped.Load())
}
