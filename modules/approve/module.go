// Package approve provides the 'approve' runner, a manual release gate. It
// connects to a socket.io approval service, emits a request carrying the
// release facts and blocks until someone answers or the timeout fires. A
// rejection fails the step, so dependent publish steps are skipped.
package approve

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the approve runner.
type Input struct {
	URL                string            `gofecto:"url"`
	Namespace          string            `gofecto:"namespace"`
	RequestEvent       string            `gofecto:"request_event"`
	ResponseEvent      string            `gofecto:"response_event"`
	Payload            map[string]string `gofecto:"payload"`
	Timeout            string            `gofecto:"timeout"`
	InsecureSkipVerify bool              `gofecto:"insecure_skip_verify"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// Output defines the data structure returned by the runner.
type Output struct {
	Approved bool   `cty:"approved"`
	By       string `cty:"by"`
	Reason   string `cty:"reason"`
}

// decision is the parsed shape of whatever the approval service answered.
type decision struct {
	approved bool
	by       string
	reason   string
}

// opResult passes results through the done channel without data races.
type opResult struct {
	decision decision
	err      error
}

// OnRunApprove is the handler for the 'approve' runner's on_run lifecycle
// event.
func OnRunApprove(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx).With("runner", "approve", "url", input.URL)

	if input.URL == "" {
		return nil, errors.New("url must not be empty")
	}
	requestEvent := input.RequestEvent
	if requestEvent == "" {
		requestEvent = "approval_request"
	}
	responseEvent := input.ResponseEvent
	if responseEvent == "" {
		responseEvent = "approval_response"
	}

	timeout := 5 * time.Minute
	if input.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(input.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timeout: %w", err)
		}
	}

	parsedURL, err := url.Parse(input.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if input.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	var isConnected atomic.Bool
	done := make(chan opResult, 1)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(input.Namespace, opts)
	defer io.Disconnect()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Connected to approval service", "sid", io.Id())
		logger.Info("Requesting release approval", "event", requestEvent, "payload", input.Payload)
		io.Emit(requestEvent, input.Payload)
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err, ok := errs[0].(error)
		if !ok {
			err = fmt.Errorf("connect_error: %v", errs[0])
		}
		done <- opResult{err: err}
	})
	io.On(types.EventName(responseEvent), func(data ...any) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		done <- opResult{decision: parseDecision(payload)}
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return nil, fmt.Errorf("no approval decision within %v", timeout)
		}
		return nil, errors.New("timed out while waiting for initial connection")
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("approval service: %w", res.err)
		}
		d := res.decision
		if !d.approved {
			if d.reason != "" {
				return nil, fmt.Errorf("release was rejected: %s", d.reason)
			}
			return nil, errors.New("release was rejected")
		}
		logger.Info("Release approved", "by", d.by)
		return &Output{Approved: true, By: d.by, Reason: d.reason}, nil
	}
}

// parseDecision accepts the shapes an approval service plausibly answers
// with: a bare bool, a yes/no string, or an object carrying approved, by and
// reason fields.
func parseDecision(data any) decision {
	switch v := data.(type) {
	case bool:
		return decision{approved: v}
	case string:
		switch strings.ToLower(v) {
		case "approved", "yes", "true", "ok":
			return decision{approved: true, reason: v}
		default:
			return decision{approved: false, reason: v}
		}
	case map[string]any:
		d := decision{}
		switch a := v["approved"].(type) {
		case bool:
			d.approved = a
		case string:
			d.approved = parseDecision(a).approved
		}
		if by, ok := v["by"].(string); ok {
			d.by = by
		}
		if reason, ok := v["reason"].(string); ok {
			d.reason = reason
		}
		return d
	default:
		return decision{reason: "unrecognized response"}
	}
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunApprove", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunApprove,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "approve",
		Description: "Blocks until a socket.io approval service answers the release request.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunApprove"},
		Inputs: map[string]*config.InputDefinition{
			"url":                  {Name: "url", Type: cty.String, Description: "Approval service endpoint."},
			"namespace":            {Name: "namespace", Type: cty.String, Description: "socket.io namespace.", Optional: true},
			"request_event":        {Name: "request_event", Type: cty.String, Description: "Event emitted with the release facts; defaults to 'approval_request'.", Optional: true},
			"response_event":       {Name: "response_event", Type: cty.String, Description: "Event carrying the decision; defaults to 'approval_response'.", Optional: true},
			"payload":              {Name: "payload", Type: cty.Map(cty.String), Description: "Release facts sent with the request.", Optional: true},
			"timeout":              {Name: "timeout", Type: cty.String, Description: "How long to wait for a decision; defaults to 5m.", Optional: true},
			"insecure_skip_verify": {Name: "insecure_skip_verify", Type: cty.Bool, Description: "Skip TLS certificate verification.", Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"approved": {Name: "approved", Type: cty.Bool, Description: "Always true; a rejection fails the step instead."},
			"by":       {Name: "by", Type: cty.String, Description: "Who answered, when the service says."},
			"reason":   {Name: "reason", Type: cty.String, Description: "Free-text note attached to the decision."},
		},
	})
}
