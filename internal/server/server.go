// Package server is the HTTP transport over the core. It is glue: every
// decision belongs to the gate, the ledger, and the stores. The one transport
// contract that matters is that REJECTED, REQUIRES_APPROVAL and
// EXECUTE_DIRECT are distinguishable status codes (403, 202, 200).
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/steward-ai/steward/internal/approval"
	"github.com/steward-ai/steward/internal/engine"
	"github.com/steward-ai/steward/internal/gate"
	"github.com/steward-ai/steward/internal/memory"
	"github.com/steward-ai/steward/internal/skill"
	"github.com/steward-ai/steward/internal/store"
)

// Server is the steward HTTP API server.
type Server struct {
	db       *store.DB
	gate     *gate.Gate
	ledger   *approval.Ledger
	memories *memory.Manager
	skills   *skill.Store
	engine   *engine.Engine
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server wired over the given database and engine.
func New(db *store.DB, g *gate.Gate, mem *memory.Manager, skills *skill.Store, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:       db,
		gate:     g,
		ledger:   approval.NewLedger(db),
		memories: mem,
		skills:   skills,
		engine:   eng,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/actions/evaluate", s.handleEvaluate)

		r.Post("/approvals", s.handleRecordApproval)
		r.Get("/approvals", s.handleListApprovals)

		r.Post("/memory", s.handleIngestMemory)
		r.Post("/memory/process", s.handleProcessConversation)
		r.Get("/memory/search", s.handleSearchMemory)
		r.Get("/memory/id/{id}", s.handleGetMemory)
		r.Post("/memory/id/{id}/promote", s.handlePromoteMemory)
		r.Post("/memory/id/{id}/archive", s.handleArchiveMemory)
		r.Get("/memory/{tier}", s.handleListMemory)

		r.Post("/skills", s.handleCreateSkill)
		r.Get("/skills", s.handleListSkills)
		r.Get("/skills/search", s.handleSearchSkills)
		r.Get("/skills/{id}", s.handleGetSkill)
		r.Put("/skills/{id}", s.handleUpdateSkill)
		r.Delete("/skills/{id}", s.handleDisableSkill)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
