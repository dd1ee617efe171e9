// Package observability wires zerolog logging and OpenTelemetry trace
// enrichment for the store and CLI layers. The linking package itself never
// imports this package: it stays pure and lets callers decide how to
// observe it.
package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes zerolog with sane defaults. If logPath is non-empty,
// logs are written to that file (append mode) instead of stdout. If
// opening the file fails, logging falls back to stdout and an error is
// printed to stderr.
func InitLogger(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}
