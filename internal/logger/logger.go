package logger

import (
	"io"
	"strings"
	"time"

	"notehub/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger. Format "json" writes one JSON object per
// line; anything else uses the human-readable console writer.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
