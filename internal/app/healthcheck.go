package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofecto/gofecto/internal/ctxlog"
)

// StartHealthcheck binds the /healthz listener on the configured port and
// serves it in the background. Port zero is allowed and picks a free port,
// which tests rely on. Calling it twice without a stop in between is an
// error.
func (a *App) StartHealthcheck() error {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()
	logger := ctxlog.FromContext(a.ctx)

	if a.healthServer != nil {
		return errors.New("healthcheck server already running")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthHandler)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.HealthcheckPort))
	if err != nil {
		return fmt.Errorf("binding healthcheck listener: %w", err)
	}
	a.healthListener = ln
	a.healthServer = &http.Server{Handler: mux}

	go func(srv *http.Server) {
		logger.Info("healthcheck server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("healthcheck server failed", "error", err)
		}
	}(a.healthServer)
	return nil
}

// HealthcheckAddr returns the bound address, empty when the server is off.
func (a *App) HealthcheckAddr() string {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()
	if a.healthListener == nil {
		return ""
	}
	return a.healthListener.Addr().String()
}

// StopHealthcheck shuts the listener down, waiting up to five seconds for
// in-flight requests. Stopping a stopped server is a no-op.
func (a *App) StopHealthcheck() error {
	a.healthMu.Lock()
	srv := a.healthServer
	a.healthServer = nil
	a.healthListener = nil
	a.healthMu.Unlock()

	if srv == nil {
		return nil
	}
	logger := ctxlog.FromContext(a.ctx)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("healthcheck server shutdown failed", "error", err)
		return err
	}
	logger.Debug("healthcheck server stopped")
	return nil
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("healthcheck hit", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
