// Package server implements the taskforge HTTP server: the task API, GitHub
// login, the webhook receiver, uploads and the live event stream.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskforge/taskforge/auth"
	"github.com/taskforge/taskforge/config"
	"github.com/taskforge/taskforge/server/sse"
	"github.com/taskforge/taskforge/task"
	"github.com/taskforge/taskforge/webhook"
)

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Tasks   *task.Service
	Gate    *auth.Gate
	Webhook *webhook.Processor
	Hub     *sse.Hub
	Health  func(ctx context.Context) error // optional readiness probe, e.g. a DB ping
}

// Server is the taskforge HTTP server.
type Server struct {
	cfg     config.Config
	deps    Deps
	router  chi.Router
	httpSrv *http.Server
	logger  *slog.Logger

	startTime time.Time
	version   string
}

// New creates a Server and registers its routes.
func New(cfg config.Config, deps Deps, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		startTime: time.Now(),
		version:   ver,
	}
	s.router = s.routes()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8000"
	}
	// No write timeout: /events streams indefinitely.
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(CORS(s.cfg.Server.CORSOrigins))
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	if s.deps.Hub != nil {
		r.Method(http.MethodGet, "/events", s.deps.Hub)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/github", s.handleLogin)
		r.Get("/github/callback", s.handleCallback)
		r.Get("/me", s.handleMe)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		if s.cfg.Auth.ProtectAPI {
			r.Use(s.requireSession)
		}
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/stats", s.handleStats)
			r.Get("/{id}", s.handleGetTask)
			r.Patch("/{id}", s.handleUpdateTask)
			r.Delete("/{id}", s.handleDeleteTask)
			r.Patch("/{id}/assign_branch", s.handleAssignBranch)
		})
		r.Post("/uploads/", s.handleUpload)
		r.Get("/uploads/*", s.handleServeUpload)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	resp := map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Hub != nil {
		resp["sse_clients"] = s.deps.Hub.Clients()
	}
	writeJSON(w, code, resp)
}
