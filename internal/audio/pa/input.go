// Package pa captures microphone audio through PortAudio.
package pa

import (
	"errors"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voxrelay/internal/audio"
)

// Init must be called once before any Input is started; Terminate on exit.
func Init() error { return portaudio.Initialize() }

func Terminate() error { return portaudio.Terminate() }

// Input is the default PortAudio capture device as 16 kHz mono int16.
type Input struct {
	rate float64

	mu     sync.Mutex
	stream *portaudio.Stream
}

func NewInput(rate int) *Input {
	return &Input{rate: float64(rate)}
}

func (in *Input) Start(deliver func([]int16)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream != nil {
		return errors.New("pa: input already started")
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, in.rate, audio.FrameSize, func(buf []int16) {
		deliver(buf)
	})
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}
	in.stream = stream
	return nil
}

// Stop returns once the callback can no longer fire.
func (in *Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream == nil {
		return nil
	}
	err := in.stream.Stop()
	if cerr := in.stream.Close(); err == nil {
		err = cerr
	}
	in.stream = nil
	return err
}
