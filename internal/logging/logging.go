// Package logging builds the gateway's slog logger.
//
// Every log line is JSON and goes to stdout plus a size-rotated file, the
// operational trail for a service whose requests can run for tens of
// minutes. Log output is operational detail only — nothing in the
// functional contract depends on it.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/howard-nolan/reigate/internal/config"
)

// New returns a JSON slog.Logger writing to stdout and, when cfg.File is
// set, a lumberjack-rotated file (cfg.MaxSizeMB per file, cfg.MaxBackups
// old files kept). Callers are expected to never log full credentials —
// use units.Mask for anything secret-adjacent.
func New(cfg config.LogConfig) *slog.Logger {
	var w io.Writer = os.Stdout

	if cfg.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	return slog.New(slog.NewJSONHandler(w, nil))
}
