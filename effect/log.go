package effect

import (
	"context"
	"time"

	"github.com/gofecto/gofecto/internal/ctxlog"
)

// Logging effects resolve their logger from the run context, so the same
// effect value logs through whatever handler the surrounding Runtime (or
// engine) installed.

// LogDebug returns an effect that emits a debug record when run.
func LogDebug(msg string, args ...any) IO[Unit] {
	return IO[Unit]{compute: func(ctx context.Context) (Unit, error) {
		ctxlog.FromContext(ctx).DebugContext(ctx, msg, args...)
		return Unit{}, nil
	}}
}

// LogInfo returns an effect that emits an info record when run.
func LogInfo(msg string, args ...any) IO[Unit] {
	return IO[Unit]{compute: func(ctx context.Context) (Unit, error) {
		ctxlog.FromContext(ctx).InfoContext(ctx, msg, args...)
		return Unit{}, nil
	}}
}

// LogWarn returns an effect that emits a warning record when run.
func LogWarn(msg string, args ...any) IO[Unit] {
	return IO[Unit]{compute: func(ctx context.Context) (Unit, error) {
		ctxlog.FromContext(ctx).WarnContext(ctx, msg, args...)
		return Unit{}, nil
	}}
}

// LogError returns an effect that emits an error record when run.
func LogError(msg string, args ...any) IO[Unit] {
	return IO[Unit]{compute: func(ctx context.Context) (Unit, error) {
		ctxlog.FromContext(ctx).ErrorContext(ctx, msg, args...)
		return Unit{}, nil
	}}
}

// LogSpan wraps an effect with start and finish records, tagging both with
// the span name and the finish record with the elapsed time. Failures are
// logged and propagated unchanged.
func LogSpan[A any](name, msg string, op IO[A]) IO[A] {
	return IO[A]{compute: func(ctx context.Context) (A, error) {
		ctx, logger := ctxlog.With(ctx, "span", name)
		logger.InfoContext(ctx, msg)
		start := time.Now()
		value, err := op.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.ErrorContext(ctx, msg+": failed", "elapsed", elapsed, "error", err)
			var zero A
			return zero, err
		}
		logger.InfoContext(ctx, msg+": done", "elapsed", elapsed)
		return value, nil
	}}
}
