package voice

import (
	"context"
	"strings"

	"voxrelay/pkg/stt"
)

// WhisperRecognizer transcribes locally with a whisper.cpp model.
type WhisperRecognizer struct {
	tr   *stt.Transcriber
	opts stt.Options
}

func NewWhisperRecognizer(modelPath, language string) (*WhisperRecognizer, error) {
	tr, err := stt.New(modelPath)
	if err != nil {
		return nil, err
	}
	return &WhisperRecognizer{tr: tr, opts: stt.Options{Language: language}}, nil
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, path string) (string, error) {
	res, err := w.tr.TranscribeFile(ctx, path, w.opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

func (w *WhisperRecognizer) Close() error { return w.tr.Close() }
