// Package audio records push-to-talk clips and plays replies.
package audio

import (
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16

	// FrameSize is the capture buffer in samples, 64 ms at 16 kHz.
	FrameSize = 1024

	// DefaultQueue is how many capture frames may wait for the collector
	// before new ones are dropped.
	DefaultQueue = 256
)

var (
	ErrAlreadyRecording = errors.New("audio: already recording")
	ErrNotRecording     = errors.New("audio: not recording")
	ErrNothingCaptured  = errors.New("audio: nothing captured")
)

// Input is a capture device. Start must call deliver from its own goroutine
// for every frame of 16 kHz mono samples; deliver may be called until Stop
// returns. The slice is reused by the device.
type Input interface {
	Start(deliver func([]int16)) error
	Stop() error
}

type Recorder struct {
	in    Input
	dir   string
	queue int
	now   func() time.Time

	mu        sync.Mutex
	recording bool
	frames    chan []int16
	done      chan []int16

	dropped atomic.Int64
}

func NewRecorder(in Input, dir string, queue int) *Recorder {
	if queue <= 0 {
		queue = DefaultQueue
	}
	return &Recorder{in: in, dir: dir, queue: queue, now: time.Now}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Dropped counts frames lost to a full queue since the recorder was built.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	frames := make(chan []int16, r.queue)
	done := make(chan []int16, 1)
	go collect(frames, done)
	r.frames, r.done = frames, done
	r.recording = true
	r.mu.Unlock()

	if err := r.in.Start(r.push); err != nil {
		r.mu.Lock()
		if r.recording && r.frames == frames {
			r.recording = false
			close(frames)
		}
		r.mu.Unlock()
		<-done
		return fmt.Errorf("start capture: %w", err)
	}
	log.Debug("Recording started")
	return nil
}

func collect(frames <-chan []int16, done chan<- []int16) {
	var out []int16
	for f := range frames {
		out = append(out, f...)
	}
	done <- out
}

// push never blocks the capture thread.
func (r *Recorder) push(buf []int16) {
	frame := make([]int16, len(buf))
	copy(frame, buf)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	select {
	case r.frames <- frame:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warn("Capture queue full, dropping frames", "dropped", n)
		}
	}
}

// Stop ends the capture and writes recording_<YYYYMMDD_HHMMSS>.wav into the
// recorder's directory. An empty capture returns ErrNothingCaptured and
// writes nothing.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	// push only sends while recording is set, so the queue can be closed
	// before the device has actually stopped.
	r.recording = false
	close(r.frames)
	done := r.done
	r.mu.Unlock()

	stopErr := r.in.Stop()
	samples := <-done
	if stopErr != nil {
		log.Warn("Capture stop failed", "err", stopErr)
	}
	if len(samples) == 0 {
		return "", ErrNothingCaptured
	}

	path := filepath.Join(r.dir, "recording_"+r.now().Format("20060102_150405")+".wav")
	if err := WriteWAV(path, samples, SampleRate); err != nil {
		return "", err
	}
	log.Debug("Recording saved", "path", path, "samples", len(samples),
		"duration", time.Duration(len(samples))*time.Second/SampleRate)
	return path, nil
}

// WriteWAV stores mono 16-bit PCM.
func WriteWAV(path string, samples []int16, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, rate, BitDepth, Channels, 1)
	err = enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: BitDepth,
	})
	if err == nil {
		err = enc.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}
