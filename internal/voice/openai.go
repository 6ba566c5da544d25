package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxrelay/internal/config"
)

func openAIClient(cfg config.VoiceConfig, hc *http.Client) (openai.Client, error) {
	if cfg.OpenAIKey == "" {
		return openai.Client{}, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrNoCredentials)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIKey),
		option.WithHTTPClient(hc),
		// A failed step fails the turn; nothing is retried.
		option.WithMaxRetries(0),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return openai.NewClient(opts...), nil
}

type OpenAIRecognizer struct {
	api      openai.Client
	model    string
	language string
}

func NewOpenAIRecognizer(cfg config.VoiceConfig, hc *http.Client) (*OpenAIRecognizer, error) {
	api, err := openAIClient(cfg, hc)
	if err != nil {
		return nil, err
	}
	return &OpenAIRecognizer{api: api, model: cfg.TranscribeModel, language: cfg.Language}, nil
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(r.model),
	}
	if r.language != "" && r.language != "auto" {
		params.Language = openai.String(r.language)
	}

	start := time.Now()
	resp, err := r.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	log.Debug("Transcribed", "model", r.model, "chars", len(text), "took", time.Since(start))
	return text, nil
}

type OpenAIResponder struct {
	api    openai.Client
	model  string
	prompt string
}

func NewOpenAIResponder(cfg config.VoiceConfig, hc *http.Client) (*OpenAIResponder, error) {
	api, err := openAIClient(cfg, hc)
	if err != nil {
		return nil, err
	}
	return &OpenAIResponder{api: api, model: cfg.OpenAIModel, prompt: cfg.SystemPrompt}, nil
}

func (r *OpenAIResponder) Respond(ctx context.Context, text string) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if r.prompt != "" {
		msgs = append(msgs, openai.SystemMessage(r.prompt))
	}
	msgs = append(msgs, openai.UserMessage(text))

	resp, err := r.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(r.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty message content")
	}
	return content, nil
}

// OpenAISynthesizer stores the /audio/speech reply as MP3.
type OpenAISynthesizer struct {
	api   openai.Client
	model string
	voice string
}

func NewOpenAISynthesizer(cfg config.VoiceConfig, hc *http.Client) (*OpenAISynthesizer, error) {
	api, err := openAIClient(cfg, hc)
	if err != nil {
		return nil, err
	}
	return &OpenAISynthesizer{api: api, model: cfg.TTSModel, voice: cfg.TTSVoice}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, dir string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	resp, err := s.api.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return "", fmt.Errorf("speech: %w", err)
	}
	defer resp.Body.Close()

	path := filepath.Join(dir, outputName(time.Now(), "mp3"))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write audio: %w", err)
	}

	log.Debug("Synthesized", "voice", s.voice, "bytes", n, "path", path)
	return path, nil
}
