package config

import (
	"io"
	log "log/slog"
	"time"

	"github.com/lmittmann/tint"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func ParseLevel(s string) log.Level {
	if lvl, ok := logLevelMap[s]; ok {
		return lvl
	}
	return log.LevelInfo
}

// NewLogger builds the process logger: tint for terminals, JSON when
// format is "json".
func NewLogger(w io.Writer, cfg LogConfig) *log.Logger {
	level := ParseLevel(cfg.Level)
	if cfg.Format == "json" {
		return log.New(log.NewJSONHandler(w, &log.HandlerOptions{Level: level}))
	}
	return log.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}
