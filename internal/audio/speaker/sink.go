// Package speaker plays beep streams on the default output device.
package speaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	bspeaker "github.com/faiface/beep/speaker"
)

// Rate is the fixed device rate; other formats are resampled to it.
const Rate beep.SampleRate = 44100

type Sink struct {
	once    sync.Once
	initErr error
	active  atomic.Int32
}

func New() *Sink { return &Sink{} }

func (s *Sink) init() error {
	s.once.Do(func() {
		s.initErr = bspeaker.Init(Rate, Rate.N(time.Second/10))
	})
	return s.initErr
}

func (s *Sink) Play(st beep.Streamer, format beep.Format) error {
	if err := s.init(); err != nil {
		return err
	}
	if format.SampleRate != Rate {
		st = beep.Resample(4, format.SampleRate, Rate, st)
	}
	s.active.Add(1)
	bspeaker.Play(beep.Seq(st, beep.Callback(func() {
		s.active.Add(-1)
	})))
	return nil
}

func (s *Sink) Active() bool { return s.active.Load() > 0 }

func (s *Sink) Stop() {
	if s.init() != nil {
		return
	}
	bspeaker.Clear()
	s.active.Store(0)
}
