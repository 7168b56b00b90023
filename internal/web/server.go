// Package web exposes the import pipeline, period governor and audit
// journal as a JSON API with SSE progress streaming.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Oss53pa/cockpit-core/internal/core"
)

// Server is the HTTP front of the import service.
type Server struct {
	service       *core.Service
	router        *chi.Mux
	server        *http.Server
	maxFileSize   int64
	commitTimeout time.Duration
}

// NewServer builds a Server around the core service. commitTimeout bounds
// a single background commit run; zero means no deadline.
func NewServer(service *core.Service, maxFileSize int64, commitTimeout time.Duration) *Server {
	s := &Server{
		service:       service,
		router:        chi.NewRouter(),
		maxFileSize:   maxFileSize,
		commitTimeout: commitTimeout,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(actorContext)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleListCategories)

		// Import pipeline
		r.Post("/import", s.handleStartImport)
		r.Get("/import/session", s.handleSession)
		r.Post("/import/mapping", s.handleSetMapping)
		r.Post("/import/validate", s.handleValidate)
		r.Post("/import/commit", s.handleCommit)
		r.Get("/import/progress", s.handleProgress)
		r.Post("/import/cancel", s.handleCancel)
		r.Post("/import/reset", s.handleReset)

		// Import history
		r.Get("/files", s.handleListImportFiles)
		r.Delete("/files/{id}", s.handleDeleteImportFile)

		// Records
		r.Get("/records/{category}", s.handleListRecords)
		r.Post("/records/{category}", s.handleCreateRecord)
		r.Patch("/records/{category}/{id}", s.handleUpdateRecordField)
		r.Delete("/records/{category}/{id}", s.handleDeleteRecord)

		// Periods
		r.Post("/periods/close", s.handleClosePeriod)
		r.Post("/periods/reopen", s.handleReopenPeriod)
		r.Get("/periods/{unit}/{year}/{month}", s.handlePeriodStatus)

		// Journal
		r.Get("/journal", s.handleListJournal)
		r.Get("/journal/stats", s.handleJournalStats)
		r.Get("/journal/{id}", s.handleJournalEntry)
		r.Post("/journal/{id}/restore", s.handleRestore)
	})
}

// Start begins listening. WriteTimeout stays 0 for SSE.
func (s *Server) Start(addr string, readTimeout, idleTimeout time.Duration) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: 0,
		IdleTimeout:  idleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// actorContext stamps the acting user from the X-Actor header onto the
// request context so every journal entry names its author.
func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get("X-Actor"); actor != "" {
			r = r.WithContext(core.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
