package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	switchboardhttp "github.com/aretw0/switchboard/pkg/adapters/http"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long in-flight requests may finish after the
// serve context is cancelled.
const ShutdownTimeout = 5 * time.Second

// NewHTTPHandler builds the HTTP handler for app from the http section.
func NewHTTPHandler(app *App) (http.Handler, error) {
	cfg := app.Config.HTTP
	return switchboardhttp.NewHandler(app.Orchestrator,
		switchboardhttp.WithLogger(app.Logger),
		switchboardhttp.WithRateLimit(cfg.RatePerMinute, cfg.Burst),
		switchboardhttp.WithMaxBodyBytes(cfg.MaxBodyBytes),
		switchboardhttp.WithGatherer(app.Registry),
	)
}

// ListenAndServe serves HTTP on the configured address until ctx is done.
func ListenAndServe(ctx context.Context, app *App) error {
	ln, err := net.Listen("tcp", app.Config.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.Config.HTTP.Addr, err)
	}
	return Serve(ctx, app, ln)
}

// Serve serves HTTP on ln and shuts down gracefully once ctx is done.
func Serve(ctx context.Context, app *App, ln net.Listener) error {
	handler, err := NewHTTPHandler(app)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("HTTP server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", ShutdownTimeout, err)
		}
		return nil
	})
	return g.Wait()
}
