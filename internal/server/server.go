// Package server runs the HTTP listener serving the REST API and the
// observer channels, and shuts both down when its context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/machine-hub/server/internal/api"
	"github.com/machine-hub/server/internal/ws"
)

const defaultShutdownTimeout = 10 * time.Second

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

type Server struct {
	httpServer      *http.Server
	hub             *ws.Hub
	shutdownTimeout time.Duration
}

// NewHandler mounts the REST routes and the observer endpoints on one mux.
func NewHandler(rest *api.Server, observers *ws.Server) http.Handler {
	mux := http.NewServeMux()
	rest.SetupRoutes(mux)
	observers.SetupRoutes(mux)
	return api.CORS(mux)
}

// New returns a server for handler. hub is closed before the listener on
// shutdown so observers get a close frame.
func New(cfg Config, handler http.Handler, hub *ws.Hub) *Server {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		hub:             hub,
		shutdownTimeout: timeout,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every
// observer and shuts the HTTP server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("Server listening", "addr", ln.Addr().String())

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		s.closeHub()
		if err != nil {
			slog.Error("Server encountered error", "err", err)
		}
		return err
	}

	slog.Info("Graceful shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.hub.Close(shutdownCtx); err != nil {
		slog.Warn("Observers did not close in time", "err", err)
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "err", err)
		return err
	}
	slog.Info("Server shut down gracefully")
	return nil
}

func (s *Server) closeHub() {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.hub.Close(ctx); err != nil {
		slog.Warn("Observers did not close in time", "err", err)
	}
}
