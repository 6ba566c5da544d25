// Package stt runs local speech recognition with whisper.cpp.
//
// The cgo binding is only compiled with -tags whisper; without it New
// returns ErrNotBuilt so callers can fall back to another recognizer.
package stt

import (
	"context"
	"errors"
	"strings"
	"time"

	"voxrelay/pkg/audioconv"
)

var ErrNotBuilt = errors.New("stt: whisper support not built in (rebuild with -tags whisper)")

type Options struct {
	Language      string // "auto", "zh", "en", ...
	Threads       int    // <=0 means NumCPU
	InitialPrompt string
	BeamSize      int
	// MaxDuration caps how much of a file is decoded.
	MaxDuration time.Duration
}

type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// TranscribeFile decodes any supported audio file and runs it through t.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string, opt Options) (Result, error) {
	var conv audioconv.Options
	if opt.MaxDuration > 0 {
		conv.MaxSamples = int(opt.MaxDuration.Seconds() * audioconv.TargetRate)
	}
	pcm, err := audioconv.DecodeFile(path, conv)
	if err != nil {
		return Result{}, err
	}
	return t.TranscribePCM(ctx, pcm.Samples, opt)
}

func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, " ")
}
