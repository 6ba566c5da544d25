package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

var ErrEmptyAudio = errors.New("audio: empty payload")

const pollInterval = 100 * time.Millisecond

// Sink is an output device. Play queues s and returns; Active reports
// whether anything queued is still sounding.
type Sink interface {
	Play(s beep.Streamer, format beep.Format) error
	Active() bool
	Stop()
}

// Attenuator lowers other applications while a reply plays.
type Attenuator interface {
	DuckOthers(ctx context.Context, factor float64, fade time.Duration) error
	UnduckOthers(ctx context.Context, fade time.Duration) error
}

type Player struct {
	sink    Sink
	duck    Attenuator
	tempDir string
}

// NewPlayer plays through sink. duck may be nil. Temporary files for
// PlayBytes go to tempDir.
func NewPlayer(sink Sink, duck Attenuator, tempDir string) *Player {
	return &Player{sink: sink, duck: duck, tempDir: tempDir}
}

// PlayBytes stores data in a temp file, plays it to completion and removes
// the file whatever the outcome.
func (p *Player) PlayBytes(ctx context.Context, data []byte) error {
	f, err := os.CreateTemp(p.tempDir, "reply_*.audio")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return p.PlayFile(ctx, path)
}

// PlayFile decodes a WAV or MP3 file and blocks until playback finishes or
// ctx is cancelled.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if info.Size() == 0 {
		f.Close()
		return ErrEmptyAudio
	}

	stream, format, err := decode(f)
	if err != nil {
		f.Close()
		return err
	}
	// Closing the streamer closes f.
	defer stream.Close()

	if p.duck != nil {
		if err := p.duck.DuckOthers(ctx, 0.3, 200*time.Millisecond); err != nil {
			log.Warn("Ducking failed", "err", err)
		}
		defer func() {
			if err := p.duck.UnduckOthers(context.WithoutCancel(ctx), 300*time.Millisecond); err != nil {
				log.Warn("Unducking failed", "err", err)
			}
		}()
	}

	if err := p.sink.Play(stream, format); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for p.sink.Active() {
		select {
		case <-ctx.Done():
			p.sink.Stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func decode(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, beep.Format{}, err
	}

	if n == 4 && bytes.Equal(head, []byte("RIFF")) {
		s, format, err := wav.Decode(f)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav: %w", err)
		}
		return s, format, nil
	}
	s, format, err := mp3.Decode(f)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode mp3: %w", err)
	}
	return s, format, nil
}
