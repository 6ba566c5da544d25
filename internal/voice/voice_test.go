package voice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxrelay/internal/config"
)

func TestMockSet(t *testing.T) {
	ctx := context.Background()
	set := Mock()

	text, err := set.Recognizer.Recognize(ctx, "ignored.wav")
	require.NoError(t, err)
	assert.Equal(t, "这是一个模拟的语音识别结果", text)

	reply, err := set.Responder.Respond(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, MockReply, reply)

	dir := t.TempDir()
	path, err := set.Synthesizer.Synthesize(ctx, reply, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^response_\d{8}_\d{6}_[0-9a-f]{8}\.wav$`), filepath.Base(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestMockSynthesizerNamesAreUnique(t *testing.T) {
	dir := t.TempDir()
	a, err := MockSynthesizer{}.Synthesize(context.Background(), "x", dir)
	require.NoError(t, err)
	b, err := MockSynthesizer{}.Synthesize(context.Background(), "x", dir)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewFallsBackWithoutCredentials(t *testing.T) {
	cfg := config.VoiceConfig{
		Recognizer:  BackendOpenAI,
		Responder:   BackendOpenAI,
		Synthesizer: BackendOpenAI,
	}
	set, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, MockRecognizer{}, set.Recognizer)
	assert.IsType(t, MockResponder{}, set.Responder)
	assert.IsType(t, MockSynthesizer{}, set.Synthesizer)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(config.VoiceConfig{Recognizer: "tencent", Responder: BackendMock, Synthesizer: BackendMock}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = New(config.VoiceConfig{Recognizer: BackendMock, Responder: "llama", Synthesizer: BackendMock}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewUseMockIgnoresBackends(t *testing.T) {
	set, err := New(config.VoiceConfig{UseMock: true, Recognizer: "whatever"}, nil)
	require.NoError(t, err)
	assert.IsType(t, MockRecognizer{}, set.Recognizer)
}

func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-5-nano", req.Model)
		assert.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-5-nano",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" 你好！ "}}]}`)
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "zh", r.FormValue("language"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"打开灯"}`)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if req["input"] == "fail" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"message":"boom","type":"invalid_request_error"}}`)
			return
		}
		assert.Equal(t, "alloy", req["voice"])
		assert.Equal(t, "tts-1", req["model"])
		assert.Equal(t, "mp3", req["response_format"])
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake-mp3"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openAIConfig(base string) config.VoiceConfig {
	return config.VoiceConfig{
		Recognizer:      BackendOpenAI,
		Responder:       BackendOpenAI,
		Synthesizer:     BackendOpenAI,
		OpenAIKey:       "sk-test",
		OpenAIBaseURL:   base + "/v1/",
		OpenAIModel:     "gpt-5-nano",
		TranscribeModel: "whisper-1",
		TTSModel:        "tts-1",
		TTSVoice:        "alloy",
		Language:        "zh",
		SystemPrompt:    "Be brief.",
	}
}

func TestOpenAIBackends(t *testing.T) {
	srv := fakeOpenAI(t)
	set, err := New(openAIConfig(srv.URL), srv.Client())
	require.NoError(t, err)
	require.IsType(t, &OpenAIRecognizer{}, set.Recognizer)

	ctx := context.Background()
	dir := t.TempDir()

	upload := filepath.Join(dir, "upload.wav")
	require.NoError(t, os.WriteFile(upload, []byte("RIFF...."), 0o644))
	text, err := set.Recognizer.Recognize(ctx, upload)
	require.NoError(t, err)
	assert.Equal(t, "打开灯", text)

	reply, err := set.Responder.Respond(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, "你好！", reply)

	path, err := set.Synthesizer.Synthesize(ctx, reply, dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".mp3"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3fake-mp3", string(data))
}

func TestOpenAISynthesizerErrorLeavesNoFile(t *testing.T) {
	srv := fakeOpenAI(t)
	s, err := NewOpenAISynthesizer(openAIConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = s.Synthesize(context.Background(), "fail", dir)
	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	path, err := s.Synthesize(context.Background(), "   ", dir)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestEspeakWritesFile(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "espeak-ng")
	// Stand-in binary: writes its argument list to the -w target.
	script := "#!/bin/sh\nout=\"$2\"\necho \"$@\" > \"$out\"\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	e := &Espeak{bin: bin, voice: "zh"}
	path, err := e.Synthesize(context.Background(), "你好", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-v zh -- 你好")
}

func TestEspeakFailureRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "espeak-ng")
	script := "#!/bin/sh\ntouch \"$2\"\necho 'no voice' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	e := &Espeak{bin: bin}
	_, err := e.Synthesize(context.Background(), "hi", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no voice")

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1) // only the script
}
