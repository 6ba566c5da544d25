package voice

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

const (
	MockTranscript = "这是一个模拟的语音识别结果"
	MockReply      = "这是一个模拟的AI回复"
)

type MockRecognizer struct{}

func (MockRecognizer) Recognize(ctx context.Context, _ string) (string, error) {
	return MockTranscript, ctx.Err()
}

type MockResponder struct{}

func (MockResponder) Respond(ctx context.Context, _ string) (string, error) {
	return MockReply, ctx.Err()
}

// MockSynthesizer writes an empty .wav so the rest of the turn (URL, static
// serving, playback error path) behaves as with a real backend.
type MockSynthesizer struct{}

func (MockSynthesizer) Synthesize(ctx context.Context, _ string, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, outputName(time.Now(), "wav"))
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
