// Package config loads the settings shared by the server, the daemon and the
// ctl tool: .env first, then an optional YAML file, then the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Voice  VoiceConfig  `yaml:"voice"`
	Log    LogConfig    `yaml:"log"`

	// SocksProxy routes outbound HTTP (cloud APIs, daemon->server) through a
	// SOCKS5 proxy when set.
	SocksProxy string `yaml:"socks_proxy"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	DataDir     string `yaml:"data_dir"`
	UploadDir   string `yaml:"upload_dir"`
	DBPath      string `yaml:"db_path"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

type ClientConfig struct {
	ServerURL   string        `yaml:"server_url"`
	DeviceName  string        `yaml:"device_name"`
	DeviceType  string        `yaml:"device_type"`
	DataDir     string        `yaml:"data_dir"`
	UploadDir   string        `yaml:"upload_dir"`
	Socket      string        `yaml:"socket"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	// HTTPTimeout bounds each client request. Zero, the default, means none.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	DuckOthers  bool          `yaml:"duck_others"`
	Cue         bool          `yaml:"cue"`
}

// VoiceConfig selects the recognition, generation and synthesis backends.
type VoiceConfig struct {
	UseMock     bool   `yaml:"use_mock"`
	Recognizer  string `yaml:"recognizer"`
	Responder   string `yaml:"responder"`
	Synthesizer string `yaml:"synthesizer"`

	OpenAIKey       string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	OpenAIModel     string `yaml:"openai_model"`
	TranscribeModel string `yaml:"transcribe_model"`
	TTSModel        string `yaml:"tts_model"`
	TTSVoice        string `yaml:"tts_voice"`
	Language        string `yaml:"language"`
	SystemPrompt    string `yaml:"system_prompt"`

	WhisperModel string `yaml:"whisper_model"`
	EspeakVoice  string `yaml:"espeak_voice"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads envFile (optional, missing is fine), then yamlPath (optional),
// then applies environment overrides and defaults.
func Load(envFile, yamlPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	cfg := &Config{Voice: VoiceConfig{UseMock: true}, Client: ClientConfig{Cue: true}}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("LISTEN_ADDR", &c.Server.ListenAddr)
	str("DB_PATH", &c.Server.DBPath)
	str("DATA_DIR", &c.Server.DataDir)
	str("DATA_DIR", &c.Client.DataDir)
	str("UPLOAD_DIR", &c.Server.UploadDir)
	str("UPLOAD_DIR", &c.Client.UploadDir)

	str("SERVER_URL", &c.Client.ServerURL)
	str("DEVICE_NAME", &c.Client.DeviceName)
	str("DEVICE_TYPE", &c.Client.DeviceType)
	str("VOX_SOCKET", &c.Client.Socket)

	str("VOICE_RECOGNIZER", &c.Voice.Recognizer)
	str("VOICE_RESPONDER", &c.Voice.Responder)
	str("VOICE_SYNTHESIZER", &c.Voice.Synthesizer)
	str("OPENAI_API_KEY", &c.Voice.OpenAIKey)
	str("OPENAI_BASE_URL", &c.Voice.OpenAIBaseURL)
	str("OPENAI_MODEL", &c.Voice.OpenAIModel)
	str("OPENAI_TTS_VOICE", &c.Voice.TTSVoice)
	str("WHISPER_MODEL", &c.Voice.WhisperModel)
	str("WHISPER_LANGUAGE", &c.Voice.Language)
	str("ESPEAK_VOICE", &c.Voice.EspeakVoice)

	str("SOCKS_PROXY", &c.SocksProxy)
	str("VOX_LOG_LEVEL", &c.Log.Level)
	str("VOX_LOG_FORMAT", &c.Log.Format)

	for _, err := range []error{
		boolean("USE_MOCK_VOICE", &c.Voice.UseMock),
		boolean("VOX_DUCK_OTHERS", &c.Client.DuckOthers),
		boolean("VOX_CUE", &c.Client.Cue),
		duration("HEARTBEAT_INTERVAL", &c.Client.Heartbeat),
		duration("HTTP_TIMEOUT", &c.Client.HTTPTimeout),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8000"
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = "data"
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = filepath.Join(c.Server.DataDir, "uploads")
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = filepath.Join(c.Server.DataDir, "robot.db")
	}
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 32
	}

	if c.Client.ServerURL == "" {
		c.Client.ServerURL = "http://localhost:8000"
	}
	if c.Client.DeviceName == "" {
		c.Client.DeviceName = "Windows_Voice_Client"
	}
	if c.Client.DeviceType == "" {
		c.Client.DeviceType = "raspberry_pi"
	}
	if c.Client.DataDir == "" {
		c.Client.DataDir = "data"
	}
	if c.Client.UploadDir == "" {
		c.Client.UploadDir = filepath.Join(c.Client.DataDir, "uploads")
	}
	if c.Client.Socket == "" {
		c.Client.Socket = "/tmp/vox.sock"
	}
	if c.Client.Heartbeat <= 0 {
		c.Client.Heartbeat = 60 * time.Second
	}
	if c.Client.HTTPTimeout < 0 {
		c.Client.HTTPTimeout = 0
	}

	if c.Voice.Recognizer == "" {
		c.Voice.Recognizer = "openai"
	}
	if c.Voice.Responder == "" {
		c.Voice.Responder = "openai"
	}
	if c.Voice.Synthesizer == "" {
		c.Voice.Synthesizer = "openai"
	}
	if c.Voice.OpenAIModel == "" {
		c.Voice.OpenAIModel = "gpt-5-nano"
	}
	if c.Voice.TranscribeModel == "" {
		c.Voice.TranscribeModel = "whisper-1"
	}
	if c.Voice.TTSModel == "" {
		c.Voice.TTSModel = "tts-1"
	}
	if c.Voice.TTSVoice == "" {
		c.Voice.TTSVoice = "alloy"
	}
	if c.Voice.Language == "" {
		c.Voice.Language = "zh"
	}
	if c.Voice.EspeakVoice == "" {
		c.Voice.EspeakVoice = "zh"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// EnsureDirs creates the server-side directories.
func (s ServerConfig) EnsureDirs() error {
	for _, dir := range []string{s.DataDir, s.UploadDir, s.IncomingDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// IncomingDir holds uploads while they are being processed. It is kept
// outside UploadDir so in-flight files are never served statically.
func (s ServerConfig) IncomingDir() string {
	return filepath.Join(s.DataDir, "incoming")
}

func (c ClientConfig) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
