package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/EduConnect/TutorHub/internal/approval"
	"github.com/EduConnect/TutorHub/internal/broadcast"
	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address for the API server
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// AdminHeader carries the caller's administrator identity
	AdminHeader = "X-Admin-ID"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr   string
	Admins []string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAdmins sets the administrator identity allow-list.
func WithAdmins(admins []string) Option {
	return func(o *Opts) { o.Admins = admins }
}

// Server hosts the administrator HTTP endpoints.
type Server struct {
	addr        string
	admins      map[string]bool
	records     store.Store
	workflow    *approval.Workflow
	broadcaster *broadcast.Broadcaster
	extraRoutes func(r chi.Router)
	httpServer  *http.Server
}

// NewServer wires the API server over its collaborators. extraRoutes may be
// nil; transports use it to mount webhook handlers on the same listener.
func NewServer(records store.Store, workflow *approval.Workflow, broadcaster *broadcast.Broadcaster, extraRoutes func(r chi.Router), opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	admins := make(map[string]bool, len(cfg.Admins))
	for _, id := range cfg.Admins {
		if id != "" {
			admins[id] = true
		}
	}
	return &Server{
		addr:        cfg.Addr,
		admins:      admins,
		records:     records,
		workflow:    workflow,
		broadcaster: broadcaster,
		extraRoutes: extraRoutes,
	}
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
	})

	if s.extraRoutes != nil {
		s.extraRoutes(r)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.adminOnly)
		r.Get("/records", s.listRecordsHandler)
		r.Get("/records/pending", s.pendingRecordsHandler)
		r.Get("/records/export", s.exportHandler)
		r.Get("/records/{recordID}", s.getRecordHandler)
		r.Post("/records/{recordID}/decision", s.decisionHandler)
		r.Post("/broadcast", s.broadcastHandler)
		r.Get("/stats", s.statsHandler)
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("API server failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
			return err
		}
		return nil
	}
}

// adminOnly rejects requests whose admin header is not on the allow-list.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID := r.Header.Get(AdminHeader)
		if adminID == "" || !s.admins[adminID] {
			slog.Warn("API request rejected, not an administrator", "admin_id", adminID, "path", r.URL.Path)
			writeJSONResponse(w, http.StatusForbidden, models.Error("administrator access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
