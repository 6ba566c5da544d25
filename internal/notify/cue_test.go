package notify

import (
	"math"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	calls   int
	samples [][2]float64
	format  beep.Format
}

func (s *captureSink) Play(st beep.Streamer, f beep.Format) error {
	s.calls++
	s.format = f
	buf := make([][2]float64, 256)
	for {
		n, ok := st.Stream(buf)
		s.samples = append(s.samples, buf[:n]...)
		if !ok {
			return nil
		}
	}
}

func TestStartCueLength(t *testing.T) {
	sink := &captureSink{}
	require.NoError(t, New(sink, true).Play(Start))

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, cueRate, sink.format.SampleRate)
	want := cueRate.N(70*time.Millisecond) + cueRate.N(90*time.Millisecond)
	assert.Len(t, sink.samples, want)

	for _, s := range sink.samples {
		assert.LessOrEqual(t, math.Abs(s[0]), 0.25+1e-9)
		assert.Equal(t, s[0], s[1])
	}
	assert.Zero(t, sink.samples[0][0])
}

func TestDisabledCueIsSilent(t *testing.T) {
	sink := &captureSink{}
	require.NoError(t, New(sink, false).Play(Error))
	assert.Zero(t, sink.calls)
	require.NoError(t, New(nil, true).Play(Error))
}
