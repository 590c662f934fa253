package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/machine-hub/server/internal/dashboard"
)

// Server upgrades HTTP requests to observer connections.
type Server struct {
	hub            *Hub
	dashboard      Channel
	machines       Channel
	baseCtx        context.Context
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	upgrader       websocket.Upgrader
}

// NewServer returns a Server streaming svc through hub. Observers are bound to
// ctx in addition to their own connection. With no allowed origins every
// origin is accepted.
func NewServer(ctx context.Context, hub *Hub, svc *dashboard.Service, allowedOrigins []string) *Server {
	s := &Server{
		hub:            hub,
		dashboard:      DashboardChannel(svc.Store()),
		machines:       MachinesChannel(),
		baseCtx:        ctx,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetupRoutes registers the observer endpoints on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/dashboard", s.handle(s.dashboard))
	mux.HandleFunc("GET /ws/machines/{$}", s.handle(s.machines))
}

func (s *Server) handle(ch Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("WebSocket upgrade failed", "channel", ch.Name, "remote", r.RemoteAddr, "err", err)
			return
		}

		err = s.hub.Serve(s.baseCtx, conn, ch)
		if errors.Is(err, ErrTooManyConnections) {
			slog.Warn("Rejected observer", "channel", ch.Name, "remote", r.RemoteAddr, "err", err)
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}

	if s.allowedOrigins[origin] {
		return true
	}
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
		if s.allowedHosts[parsed.Host] || parsed.Host == r.Host {
			return true
		}
	}
	return false
}
