// Package api serves the REST endpoints of the machine hub.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/machine-hub/server/internal/dashboard"
	"github.com/machine-hub/server/internal/entity"
	"github.com/machine-hub/server/internal/imaging"
	"github.com/machine-hub/server/internal/metrics"
)

// ObserverCounter reports open observer connections per channel.
type ObserverCounter interface {
	Count(channel string) int
}

// Config holds the tunables of the API handlers.
type Config struct {
	MaxBodyBytes int64
	StaticDir    string
}

// Server holds the dependencies shared by every handler.
type Server struct {
	svc       *dashboard.Service
	repo      *entity.Repository
	images    *imaging.Compressor
	metrics   *metrics.Metrics
	observers ObserverCounter
	cfg       Config
	started   time.Time
}

// New returns an API server. observers may be nil.
func New(svc *dashboard.Service, repo *entity.Repository, images *imaging.Compressor, m *metrics.Metrics, observers ObserverCounter, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	return &Server{
		svc:       svc,
		repo:      repo,
		images:    images,
		metrics:   m,
		observers: observers,
		cfg:       cfg,
		started:   time.Now(),
	}
}

// SetupRoutes registers every REST endpoint on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /{$}", "root", s.handleRoot)
	s.handle(mux, "GET /health", "health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.handle(mux, "POST /submit/{$}", "submit", s.handleSubmit)
	s.handle(mux, "GET /get_dashboard/{$}", "get_dashboard", s.handleGetDashboard)

	s.handle(mux, "GET /privileges/{$}", "privileges", s.handlePrivileges(customerPrivileges))
	s.handle(mux, "GET /management_privileges/{$}", "management_privileges", s.handlePrivileges(managementPrivileges))

	customers := organizationResource[entity.Customer]{
		label: "Customer",
		table: s.repo.Customers,
		org:   func(c *entity.Customer) *entity.Organization { return &c.Organization },
	}
	s.handle(mux, "POST /customers/{$}", "customers_create", customers.create(s))
	s.handle(mux, "GET /customers/{$}", "customers_list", customers.list(s))
	s.handle(mux, "PUT /customers/{id}/{$}", "customers_update", customers.update(s))
	s.handle(mux, "DELETE /delete_customers/{id}", "customers_delete", customers.delete(s))

	management := organizationResource[entity.Management]{
		label: "Management",
		table: s.repo.Management,
		org:   func(m *entity.Management) *entity.Organization { return &m.Organization },
	}
	s.handle(mux, "POST /management/{$}", "management_create", management.create(s))
	s.handle(mux, "GET /management/{$}", "management_list", management.list(s))
	s.handle(mux, "PUT /management/{id}/{$}", "management_update", management.update(s))
	s.handle(mux, "DELETE /delete_management/{id}", "management_delete", management.delete(s))

	customerUsers := userResource[entity.CustomerUser]{
		ownerColumn: "customer_id",
		privileges:  customerPrivileges,
		table:       s.repo.CustomerUsers,
		user:        func(u *entity.CustomerUser) *entity.User { return &u.User },
		owner:       func(u *entity.CustomerUser) *int64 { return &u.CustomerID },
	}
	s.handle(mux, "POST /customer_users/{$}", "customer_users_create", customerUsers.create(s))
	s.handle(mux, "GET /customer_users/{$}", "customer_users_list", customerUsers.list(s))
	s.handle(mux, "PUT /customer_users/{id}/{$}", "customer_users_update", customerUsers.update(s))
	s.handle(mux, "DELETE /customer_users/{id}", "customer_users_delete", customerUsers.delete(s))

	managementUsers := userResource[entity.ManagementUser]{
		ownerColumn: "management_id",
		privileges:  managementPrivileges,
		table:       s.repo.ManagementUsers,
		user:        func(u *entity.ManagementUser) *entity.User { return &u.User },
		owner:       func(u *entity.ManagementUser) *int64 { return &u.ManagementID },
	}
	s.handle(mux, "POST /create_management_users/{$}", "management_users_create", managementUsers.create(s))
	s.handle(mux, "GET /management_users/{$}", "management_users_list", managementUsers.list(s))
	s.handle(mux, "PUT /management_users/{id}/{$}", "management_users_update", managementUsers.update(s))
	s.handle(mux, "DELETE /management_users/{id}", "management_users_delete", managementUsers.delete(s))

	s.handle(mux, "POST /create_machines", "machines_create", s.handleCreateMachine)
	s.handle(mux, "POST /upload_machine_model/{$}", "machines_upload", s.handleUploadMachine)
	s.handle(mux, "PUT /update_machine_model/{id}/{$}", "machines_update_upload", s.handleUpdateMachineUpload)
	s.handle(mux, "GET /machines/{$}", "machines_list", s.handleListMachines)
	s.handle(mux, "PUT /machines/{id}/{$}", "machines_update", s.handleUpdateMachine)
	s.handle(mux, "DELETE /machines/{id}/{$}", "machines_delete", s.handleDeleteMachine)
	s.handle(mux, "GET /get_machines/{$}", "machines_with_serials", s.handleMachinesWithSerials)

	s.handle(mux, "GET /serial_exists/{serial}", "serial_exists", s.handleSerialExists)
	s.handle(mux, "POST /create_serial", "serial_create", s.handleCreateSerial)
	s.handle(mux, "GET /serial", "serial_list", s.handleListSerials)
	s.handle(mux, "PUT /serial/{id}", "serial_update", s.handleUpdateSerial)
	s.handle(mux, "DELETE /serial/{id}", "serial_delete", s.handleDeleteSerial)

	if s.cfg.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
}

// handle mounts h with compression, request logging and metrics.
func (s *Server) handle(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Wrap(name, requestLog(gzhttp.GzipHandler(h))))
}

type ctxKey int

const reqIDKey ctxKey = iota

func reqID(r *http.Request) string {
	id, _ := r.Context().Value(reqIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), reqIDKey, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		slog.Info("Request handled", "req_id", id, "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start), "remote", r.RemoteAddr)
	})
}

// CORS allows every origin, method and header.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
