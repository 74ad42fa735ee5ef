package usecases

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/pkg/metrics"
)

// FailureHook observes reported failures. Hooks must not block.
type FailureHook func(kind domain.ErrorKind, err error)

// ErrorReporter logs, counts and forwards failures. It never panics and never
// changes the caller's control flow.
type ErrorReporter struct {
	logger *slog.Logger
	hooks  []FailureHook
}

// NewErrorReporter creates a reporter. A nil logger falls back to slog.Default().
func NewErrorReporter(logger *slog.Logger, hooks ...FailureHook) *ErrorReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorReporter{logger: logger, hooks: hooks}
}

// AddHook registers a hook. Not safe for use once reporting has started.
func (r *ErrorReporter) AddHook(h FailureHook) {
	r.hooks = append(r.hooks, h)
}

// Report records err under kind. An empty kind is derived from err.
func (r *ErrorReporter) Report(ctx context.Context, kind domain.ErrorKind, err error, attrs ...slog.Attr) {
	if r == nil || err == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("error reporter hook panicked", "panic", p)
		}
	}()

	if kind == "" {
		kind = domain.KindOf(err)
	}
	source := sourceOf(err)

	metrics.Errors.WithLabelValues(string(kind), source).Inc()

	args := make([]slog.Attr, 0, len(attrs)+3)
	args = append(args,
		slog.String("kind", string(kind)),
		slog.String("source", source),
		slog.String("error", err.Error()),
	)
	var fe *domain.FetchError
	if errors.As(err, &fe) && fe.Chunk != nil {
		args = append(args, slog.Int("chunk", fe.Chunk.Index))
	}
	args = append(args, attrs...)
	r.logger.LogAttrs(ctx, slog.LevelWarn, "fetch failed", args...)

	for _, h := range r.hooks {
		h(kind, err)
	}
}

func sourceOf(err error) string {
	var fe *domain.FetchError
	if errors.As(err, &fe) && fe.Source != "" {
		return fe.Source
	}
	return "unknown"
}
