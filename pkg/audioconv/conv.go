// Package audioconv turns uploaded audio files into mono float32 PCM at the
// 16 kHz rate speech recognizers expect.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const TargetRate = 16000

var (
	ErrUnsupported = errors.New("audioconv: unsupported format")
	ErrEmpty       = errors.New("audioconv: no samples")
)

// PCM is decoded audio, already downmixed and resampled to TargetRate.
type PCM struct {
	Samples        []float32
	SourceRate     int
	SourceChannels int
	Format         string
}

func (p *PCM) Duration() time.Duration {
	return time.Duration(len(p.Samples)) * time.Second / TargetRate
}

type Options struct {
	// MaxSamples truncates the output; 0 keeps everything.
	MaxSamples int
}

// DecodeFile picks a decoder by extension, falling back to sniffing the
// container magic.
func DecodeFile(path string, opt Options) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch format {
	case "wav", "mp3", "ogg", "oga", "opus":
	default:
		format, err = sniff(f)
		if err != nil {
			return nil, err
		}
	}

	var pcm *PCM
	switch format {
	case "wav":
		pcm, err = decodeWAV(f)
	case "mp3":
		pcm, err = decodeMP3(f)
	default:
		pcm, err = decodeOgg(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	pcm.Format = format
	if pcm.SourceRate != TargetRate {
		pcm.Samples = resampleLinear(pcm.Samples, pcm.SourceRate, TargetRate)
	}
	if opt.MaxSamples > 0 && len(pcm.Samples) > opt.MaxSamples {
		pcm.Samples = pcm.Samples[:opt.MaxSamples]
	}
	if len(pcm.Samples) == 0 {
		return pcm, ErrEmpty
	}
	return pcm, nil
}

func sniff(f io.ReadSeeker) (string, error) {
	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	switch {
	case string(magic) == "RIFF":
		return "wav", nil
	case string(magic) == "OggS":
		return "ogg", nil
	case len(magic) >= 3 && (string(magic[:3]) == "ID3" || (magic[0] == 0xFF && magic[1]&0xE0 == 0xE0)):
		return "mp3", nil
	default:
		return "", ErrUnsupported
	}
}

func decodeWAV(r io.ReadSeeker) (*PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrEmpty
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	ch, sr := int(dec.NumChans), int(dec.SampleRate)
	if buf.Format != nil {
		ch, sr = buf.Format.NumChannels, buf.Format.SampleRate
	}
	if ch <= 0 {
		ch = 1
	}
	if sr <= 0 {
		return nil, errors.New("wav without sample rate")
	}

	return &PCM{
		Samples:        downmix(intsToFloat32(buf.Data, bitDepth), ch),
		SourceRate:     sr,
		SourceChannels: ch,
	}, nil
}

func decodeMP3(r io.Reader) (*PCM, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	// go-mp3 always emits interleaved stereo.
	return &PCM{
		Samples:        downmix(Int16ToFloat32(ints), 2),
		SourceRate:     dec.SampleRate(),
		SourceChannels: 2,
	}, nil
}

func decodeOgg(r io.ReadSeeker) (*PCM, error) {
	pcm, vorbisErr := decodeVorbis(r)
	if vorbisErr == nil {
		return pcm, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	pcm, opusErr := decodeOpus(r)
	if opusErr == nil {
		return pcm, nil
	}
	return nil, fmt.Errorf("%w: vorbis: %v; opus: %v", ErrUnsupported, vorbisErr, opusErr)
}

func decodeVorbis(r io.Reader) (*PCM, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return &PCM{
		Samples:        downmix(samples, format.Channels),
		SourceRate:     format.SampleRate,
		SourceChannels: format.Channels,
	}, nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1, 1))
	}
	return out
}

// Int16ToFloat32 scales signed 16-bit samples into [-1, 1).
func Int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
