package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docsplit/internal/config"
	"github.com/dgallion1/docsplit/internal/indexer"
	"github.com/dgallion1/docsplit/internal/metrics"
	"github.com/dgallion1/docsplit/internal/parser"
	"github.com/dgallion1/docsplit/internal/pipeline"
	"github.com/dgallion1/docsplit/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for docsplit.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	registry     *parser.Registry
	idx          *indexer.Client
	tracker      *stats.Tracker
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, registry *parser.Registry, idx *indexer.Client, tracker *stats.Tracker, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		registry:     registry,
		idx:          idx,
		tracker:      tracker,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(MetricsMiddleware)

	// Public endpoints.
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DocsplitAPIKey, s.log))

		r.Post("/v1/split", s.handleSplit)
		r.Post("/v1/ingest", s.handleIngest)
		r.Post("/v1/ingest/batch", s.handleBatchIngest)
		r.Get("/v1/jobs/{jobID}", s.handleJob)

		r.Get("/v1/documents", s.handleListDocuments)
		r.Get("/v1/documents/{docPath}", s.handleGetDocument)
		r.Delete("/v1/documents/{docPath}", s.handleDeleteDocument)

		r.Get("/v1/parsers", s.handleParsers)
		r.Get("/v1/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
