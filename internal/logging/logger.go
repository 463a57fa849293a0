// Package logging provides structured logging configuration using log/slog.
//
// Every import carries a run id in its context. Loggers obtained through
// FromContext include it, so all lines of one import can be correlated,
// including lines written by retries of the same import.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

type ctxKey int

const runIDKey ctxKey = iota

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// When seqURL is non-empty, records are also shipped to that Seq server.
// The returned function flushes and closes the Seq handler; call it before exit.
func Setup(level, format, seqURL string) func() {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	closeFn := func() {}
	if seqURL != "" {
		_, seqHandler := slogseq.NewLogger(
			seqURL,
			slogseq.WithBatchSize(50),
			slogseq.WithFlushInterval(2*time.Second),
			slogseq.WithHandlerOptions(opts),
		)
		if seqHandler != nil {
			handler = &multiHandler{handlers: []slog.Handler{handler, seqHandler}}
			closeFn = func() { seqHandler.Close() }
		}
	}

	slog.SetDefault(slog.New(handler))
	return closeFn
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRunID returns a context carrying the import run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the import run id, or "" if none is set.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// FromContext returns a logger enriched with the import run id, if any.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	logger := logging.WithFields(ctx, "file", path)
//	logger.Info("import started")
//	// ... later ...
//	logger.Info("import committed", "import_id", id)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// multiHandler forwards log records to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
