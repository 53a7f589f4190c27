// Package exec provides the 'exec' runner, which runs a local command and
// streams its output into the step log. It is the workhorse behind the
// install, test, lint, format and build targets.
package exec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the exec runner.
type Input struct {
	Command string            `gofecto:"command"`
	Args    []string          `gofecto:"args"`
	Dir     string            `gofecto:"dir"`
	Env     map[string]string `gofecto:"env"`
	Timeout float64           `gofecto:"timeout"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// Output defines the data structure returned by the runner.
type Output struct {
	ExitCode   int     `cty:"exit_code"`
	Stdout     string  `cty:"stdout"`
	DurationMs float64 `cty:"duration_ms"`
}

// OnRunExec is the handler for the 'exec' runner's on_run lifecycle event.
// Both output streams are logged line by line as they arrive; stdout is also
// captured so later steps can reference it. A non-zero exit is an error, so
// failure propagates to dependent steps.
func OnRunExec(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx).With("command", input.Command)

	if input.Command == "" {
		return nil, errors.New("command must not be empty")
	}

	runCtx := ctx
	timeout := time.Duration(input.Timeout * float64(time.Second))
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(runCtx, input.Command, input.Args...)
	cmd.Dir = input.Dir
	cmd.Env = mergedEnv(input.Env)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	var captured strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamLines(stdout, func(line string) {
			captured.WriteString(line)
			captured.WriteByte('\n')
			logger.Info(line, "stream", "stdout")
		})
	}()
	go func() {
		defer wg.Done()
		streamLines(stderr, func(line string) {
			logger.Warn(line, "stream", "stderr")
		})
	}()

	logger.Info("▶️ Running command", "args", input.Args, "dir", input.Dir)
	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting '%s': %w", input.Command, err)
	}
	wg.Wait()
	err = cmd.Wait()
	elapsed := time.Since(started)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("'%s' timed out after %s", input.Command, timeout)
		}
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("'%s' exited with code %d", input.Command, exitErr.ExitCode())
		}
		return nil, fmt.Errorf("running '%s': %w", input.Command, err)
	}

	logger.Info("✅ Command finished", "duration", elapsed.Round(time.Millisecond))
	return &Output{
		ExitCode:   0,
		Stdout:     captured.String(),
		DurationMs: float64(elapsed) / float64(time.Millisecond),
	}, nil
}

// streamLines forwards each line read from r to emit. The buffer is raised
// above bufio's default because build tools love long single-line output.
func streamLines(r io.Reader, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}

// mergedEnv layers the step's env block over the process environment. An
// empty block means plain inheritance. Overrides are appended in sorted
// order; the last occurrence of a variable wins.
func mergedEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunExec", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunExec,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "exec",
		Description: "Runs a local command and streams its output to the step log.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunExec"},
		Inputs: map[string]*config.InputDefinition{
			"command": {Name: "command", Type: cty.String, Description: "Program to run."},
			"args":    {Name: "args", Type: cty.List(cty.String), Description: "Arguments passed to the program.", Optional: true},
			"dir":     {Name: "dir", Type: cty.String, Description: "Working directory; defaults to the process working directory.", Optional: true},
			"env":     {Name: "env", Type: cty.Map(cty.String), Description: "Extra environment variables layered over the inherited ones.", Optional: true},
			"timeout": {Name: "timeout", Type: cty.Number, Description: "Seconds before the command is killed; 0 means no limit.", Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"exit_code":   {Name: "exit_code", Type: cty.Number, Description: "Always 0; a non-zero exit fails the step instead."},
			"stdout":      {Name: "stdout", Type: cty.String, Description: "Captured standard output."},
			"duration_ms": {Name: "duration_ms", Type: cty.Number, Description: "Wall-clock runtime in milliseconds."},
		},
	})
}
