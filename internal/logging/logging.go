package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/config"
)

// New builds the process logger. Output is JSON unless cfg.Pretty asks for
// the console writer; an unknown level falls back to info.
func New(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "odl-lending").Logger()
}
