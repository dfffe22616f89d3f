// Package httpserver owns the API server lifecycle: connection timeouts
// sized against the router's per-request deadline, and a graceful drain of
// in-flight requests on shutdown.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server wraps the net/http server with a context-driven lifecycle.
type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
}

// New builds the API server. WriteTimeout leaves headroom over the router's
// 30s request deadline so a slow operation surfaces as a JSON timeout error
// instead of a severed connection.
func New(addr string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      35 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the shutdown timeout. A clean drain returns nil.
func (s *Server) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}
