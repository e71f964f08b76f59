// Package api exposes the pipeline stages as a JSON HTTP API
package api

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the pipeline routes under /api/v1
func NewRouter(svc pipelineService, maxBody int64, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[API] ", log.LstdFlags)
	}
	h := NewHandler(svc, maxBody, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteOK(w, r, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/documents", h.ListDocuments)
		api.Get("/report", h.Report)

		api.Route("/documents/{docID}", func(doc chi.Router) {
			doc.Get("/questions", h.Questions)
			doc.Get("/issues", h.Issues)
			doc.Post("/ingest", h.Ingest)
			doc.Post("/artifacts", h.Artifacts)
			doc.Post("/merge", h.Merge)
			doc.Post("/validate", h.Validate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, "")
	})
	return r
}
