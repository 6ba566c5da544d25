// Package notify plays short audible cues on the daemon's output.
package notify

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

// Sink queues a stream for playback without waiting for it.
type Sink interface {
	Play(s beep.Streamer, format beep.Format) error
}

const cueRate beep.SampleRate = 44100

type Tone struct {
	Freq     float64
	Duration time.Duration
	Volume   float64 // 0..1
}

// Start is the rising double blip played when recording begins.
var Start = []Tone{
	{Freq: 660, Duration: 70 * time.Millisecond, Volume: 0.25},
	{Freq: 880, Duration: 90 * time.Millisecond, Volume: 0.25},
}

// Error is a single low tone.
var Error = []Tone{{Freq: 220, Duration: 200 * time.Millisecond, Volume: 0.3}}

type Cuer struct {
	sink    Sink
	enabled bool
}

func New(sink Sink, enabled bool) *Cuer {
	return &Cuer{sink: sink, enabled: enabled && sink != nil}
}

func (c *Cuer) Play(tones []Tone) error {
	if !c.enabled || len(tones) == 0 {
		return nil
	}
	parts := make([]beep.Streamer, len(tones))
	for i, t := range tones {
		parts[i] = sine(t, cueRate)
	}
	return c.sink.Play(beep.Seq(parts...), beep.Format{SampleRate: cueRate, NumChannels: 2, Precision: 2})
}

// sine renders t with a short linear fade at both ends to avoid clicks.
func sine(t Tone, rate beep.SampleRate) beep.Streamer {
	total := rate.N(t.Duration)
	ramp := min(rate.N(5*time.Millisecond), total/2)
	step := 2 * math.Pi * t.Freq / float64(rate)
	pos := 0

	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < total {
			gain := t.Volume
			switch {
			case ramp > 0 && pos < ramp:
				gain *= float64(pos) / float64(ramp)
			case ramp > 0 && pos >= total-ramp:
				gain *= float64(total-pos) / float64(ramp)
			}
			v := gain * math.Sin(step*float64(pos))
			samples[n] = [2]float64{v, v}
			n++
			pos++
		}
		return n, true
	})
}
