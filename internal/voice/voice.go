// Package voice holds the three pluggable capabilities of a turn:
// speech recognition, response generation and speech synthesis.
package voice

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"voxrelay/internal/config"
)

type Recognizer interface {
	// Recognize returns the transcript of the audio file at path.
	Recognize(ctx context.Context, path string) (string, error)
}

type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

type Synthesizer interface {
	// Synthesize writes speech for text into dir and returns the file path,
	// or "" when the backend produced no audio.
	Synthesize(ctx context.Context, text, dir string) (string, error)
}

const (
	BackendMock    = "mock"
	BackendOpenAI  = "openai"
	BackendWhisper = "whisper"
	BackendEspeak  = "espeak"
)

var (
	ErrUnknownBackend = errors.New("voice: unknown backend")
	ErrNoCredentials  = errors.New("voice: missing credentials")
)

// Set is the trio a pipeline runs with.
type Set struct {
	Recognizer  Recognizer
	Responder   Responder
	Synthesizer Synthesizer
}

func Mock() Set {
	return Set{
		Recognizer:  MockRecognizer{},
		Responder:   MockResponder{},
		Synthesizer: MockSynthesizer{},
	}
}

// New builds the configured backends. With UseMock every capability is the
// mock; otherwise a backend that cannot start (no key, binary or model)
// degrades to its mock with a warning. Unknown names are an error.
func New(cfg config.VoiceConfig, hc *http.Client) (Set, error) {
	if cfg.UseMock {
		log.Info("Using mock voice service")
		return Mock(), nil
	}
	if hc == nil {
		hc = http.DefaultClient
	}

	var (
		set Set
		err error
	)
	if set.Recognizer, err = newRecognizer(cfg, hc); err != nil {
		return Set{}, err
	}
	if set.Responder, err = newResponder(cfg, hc); err != nil {
		return Set{}, err
	}
	if set.Synthesizer, err = newSynthesizer(cfg, hc); err != nil {
		return Set{}, err
	}
	return set, nil
}

func newRecognizer(cfg config.VoiceConfig, hc *http.Client) (Recognizer, error) {
	var (
		r   Recognizer
		err error
	)
	switch cfg.Recognizer {
	case BackendMock:
		return MockRecognizer{}, nil
	case BackendOpenAI:
		r, err = NewOpenAIRecognizer(cfg, hc)
	case BackendWhisper:
		r, err = NewWhisperRecognizer(cfg.WhisperModel, cfg.Language)
	default:
		return nil, fmt.Errorf("%w: recognizer %q", ErrUnknownBackend, cfg.Recognizer)
	}
	if err != nil {
		log.Warn("Recognizer unavailable, falling back to mock", "backend", cfg.Recognizer, "err", err)
		return MockRecognizer{}, nil
	}
	log.Info("Recognizer ready", "backend", cfg.Recognizer)
	return r, nil
}

func newResponder(cfg config.VoiceConfig, hc *http.Client) (Responder, error) {
	switch cfg.Responder {
	case BackendMock:
		return MockResponder{}, nil
	case BackendOpenAI:
		r, err := NewOpenAIResponder(cfg, hc)
		if err != nil {
			log.Warn("Responder unavailable, falling back to mock", "backend", cfg.Responder, "err", err)
			return MockResponder{}, nil
		}
		log.Info("Responder ready", "backend", cfg.Responder, "model", cfg.OpenAIModel)
		return r, nil
	default:
		return nil, fmt.Errorf("%w: responder %q", ErrUnknownBackend, cfg.Responder)
	}
}

func newSynthesizer(cfg config.VoiceConfig, hc *http.Client) (Synthesizer, error) {
	var (
		s   Synthesizer
		err error
	)
	switch cfg.Synthesizer {
	case BackendMock:
		return MockSynthesizer{}, nil
	case BackendOpenAI:
		s, err = NewOpenAISynthesizer(cfg, hc)
	case BackendEspeak:
		s, err = NewEspeak(cfg.EspeakVoice)
	default:
		return nil, fmt.Errorf("%w: synthesizer %q", ErrUnknownBackend, cfg.Synthesizer)
	}
	if err != nil {
		log.Warn("Synthesizer unavailable, falling back to mock", "backend", cfg.Synthesizer, "err", err)
		return MockSynthesizer{}, nil
	}
	log.Info("Synthesizer ready", "backend", cfg.Synthesizer)
	return s, nil
}

// outputName returns response_<YYYYMMDD_HHMMSS>_<8 hex>.<ext>. The suffix
// keeps two turns in the same second from overwriting each other.
func outputName(now time.Time, ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("response_%s_%s.%s", now.Format("20060102_150405"), id, ext)
}
