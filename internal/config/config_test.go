package config

import (
	"bytes"
	log "log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"LISTEN_ADDR", "DB_PATH", "DATA_DIR", "UPLOAD_DIR", "SERVER_URL", "DEVICE_NAME", "DEVICE_TYPE",
	"VOX_SOCKET", "VOICE_RECOGNIZER", "VOICE_RESPONDER", "VOICE_SYNTHESIZER", "OPENAI_API_KEY",
	"OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_TTS_VOICE", "WHISPER_MODEL", "WHISPER_LANGUAGE",
	"ESPEAK_VOICE", "SOCKS_PROXY", "VOX_LOG_LEVEL", "VOX_LOG_FORMAT",
	"USE_MOCK_VOICE", "VOX_DUCK_OTHERS", "VOX_CUE", "HEARTBEAT_INTERVAL", "HTTP_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	assert.Equal(t, filepath.Join("data", "robot.db"), cfg.Server.DBPath)
	assert.Equal(t, filepath.Join("data", "uploads"), cfg.Server.UploadDir)
	assert.Equal(t, filepath.Join("data", "incoming"), cfg.Server.IncomingDir())
	assert.Equal(t, "http://localhost:8000", cfg.Client.ServerURL)
	assert.Equal(t, 60*time.Second, cfg.Client.Heartbeat)
	assert.True(t, cfg.Voice.UseMock)
	assert.True(t, cfg.Client.Cue)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.env"), "")
	assert.NoError(t, err)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that exist, even empty ones.
	for _, k := range []string{"DEVICE_NAME", "USE_MOCK_VOICE", "HEARTBEAT_INTERVAL"} {
		os.Unsetenv(k)
	}
	dir := t.TempDir()

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEVICE_NAME=Kitchen Pi\nUSE_MOCK_VOICE=false\nHEARTBEAT_INTERVAL=5s\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("DEVICE_NAME")
		os.Unsetenv("USE_MOCK_VOICE")
		os.Unsetenv("HEARTBEAT_INTERVAL")
	})

	cfg, err := Load(envFile, "")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen Pi", cfg.Client.DeviceName)
	assert.False(t, cfg.Voice.UseMock)
	assert.Equal(t, 5*time.Second, cfg.Client.Heartbeat)
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOX_TEST_KEY", "sk-test")
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
server:
  listen_addr: ":9000"
  data_dir: /srv/vox
client:
  heartbeat: 30s
  duck_others: true
voice:
  use_mock: false
  responder: mock
  openai_api_key: ${VOX_TEST_KEY}
log:
  level: debug
  format: json
`), 0644))

	cfg, err := Load("", yamlPath)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, filepath.Join("/srv/vox", "robot.db"), cfg.Server.DBPath)
	assert.Equal(t, 30*time.Second, cfg.Client.Heartbeat)
	assert.True(t, cfg.Client.DuckOthers)
	assert.False(t, cfg.Voice.UseMock)
	assert.Equal(t, "mock", cfg.Voice.Responder)
	assert.Equal(t, "openai", cfg.Voice.Recognizer)
	assert.Equal(t, "sk-test", cfg.Voice.OpenAIKey)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvBeatsYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":7000")

	yamlPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server:\n  listen_addr: \":9000\"\n"), 0644))

	cfg, err := Load("", yamlPath)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.ListenAddr)
}

func TestLoad_BadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("USE_MOCK_VOICE", "perhaps")
	_, err := Load("", "")
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("HEARTBEAT_INTERVAL", "every minute")
	_, err = Load("", "")
	assert.Error(t, err)

	clearEnv(t)
	_, err = Load("", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	s := ServerConfig{DataDir: filepath.Join(base, "d"), UploadDir: filepath.Join(base, "d", "u")}
	require.NoError(t, s.EnsureDirs())
	assert.DirExists(t, s.IncomingDir())
	assert.DirExists(t, s.UploadDir)
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, log.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, log.LevelInfo, ParseLevel("loud"))

	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
