/*
server.go - HTTP route wiring

PURPOSE:
  Maps the query API surface onto chi routes and installs the shared
  middleware stack (request logging, panic recovery, request ids, CORS
  for browser dashboards). Handlers never see routing concerns; this
  file never sees store logic.

ROUTE GROUPS:
  /api/nodes/*      Node registry reads
  /api/entities/*   Identity resolution and lineage history
  /api/decisions/*  Reconciliation audit lookups
  /api/stats        Store statistics
  /healthz          Liveness probe

The API is read-only: every endpoint is a GET over an already-loaded
snapshot, so there is no auth layer and no write path to protect.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Node registry
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/{id}", h.GetNode)
			r.Get("/{id}/attributes", h.GetAttributes)
			r.Get("/{id}/relationships", h.GetRelationships)
		})

		// Entity identity
		r.Route("/entities", func(r chi.Router) {
			r.Get("/{id}/resolve", h.ResolveEntity)
			r.Get("/{id}/lineage", h.GetLineage)
		})

		// Reconciliation audit
		r.Route("/decisions", func(r chi.Router) {
			r.Get("/", h.ListDecisions)
			r.Get("/{id}", h.GetDecision)
		})

		r.Get("/stats", h.GetStats)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
