package effect

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/gofecto/gofecto/internal/ctxlog"
)

// App is a program expressed as a single effect. Run describes the whole
// program; nothing executes until the Runtime runs it.
type App interface {
	Name() string
	Run() IO[Unit]
}

// Options configures a Runtime. The zero value is usable: info level, text
// format, stderr sink, exit code 1.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values fall back
	// to info.
	Level string
	// Format is text or json. Unknown values fall back to text.
	Format string
	// Sinks receive log output. Empty means os.Stderr. Multiple sinks are
	// combined with io.MultiWriter.
	Sinks []io.Writer
	// ExitCode is the process exit code Main uses on failure. Zero means 1.
	ExitCode int
}

// Runtime owns the logging configuration and drives Apps to completion.
type Runtime struct {
	logger   *slog.Logger
	exitCode int
}

// overridable in tests
var osExit = os.Exit

// NewRuntime builds a Runtime from the options. It does not touch the global
// slog default, so multiple isolated runtimes can coexist.
func NewRuntime(opts Options) *Runtime {
	var level slog.Level
	switch opts.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer
	switch len(opts.Sinks) {
	case 0:
		out = os.Stderr
	case 1:
		out = opts.Sinks[0]
	default:
		out = io.MultiWriter(opts.Sinks...)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	exitCode := opts.ExitCode
	if exitCode == 0 {
		exitCode = 1
	}

	return &Runtime{logger: slog.New(handler), exitCode: exitCode}
}

// Logger exposes the runtime's configured logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// RunApp installs the runtime logger into the context, runs the app's effect
// and returns its error, logging the failure. The caller decides what a
// failure means for the process.
func (r *Runtime) RunApp(ctx context.Context, app App) error {
	logger := r.logger.With("app", app.Name())
	ctx = ctxlog.WithLogger(ctx, logger)
	if _, err := app.Run().Run(ctx); err != nil {
		logger.ErrorContext(ctx, "app failed", "error", err)
		return err
	}
	return nil
}

// Main runs the app and exits the process with the configured code on
// failure. Intended as the last call of func main.
func (r *Runtime) Main(app App) {
	if err := r.RunApp(context.Background(), app); err != nil {
		osExit(r.exitCode)
	}
}
