package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/neural-chilli/codesworth/internal/export"
	"github.com/neural-chilli/codesworth/internal/llm"
	"github.com/neural-chilli/codesworth/internal/workspace"
	"github.com/rs/zerolog/log"
)

// Server represents the API server
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	store     *Store
	completer llm.Completer
	wsCfg     *workspace.WorkspaceConfig
	sinks     []export.Sink

	// runs outlive the request that started them
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithCompleter enables LLM summaries for analyses that request them
func WithCompleter(c llm.Completer) Option {
	return func(s *Server) { s.completer = c }
}

// WithSinks persists every completed analysis to the given sinks
func WithSinks(sinks ...export.Sink) Option {
	return func(s *Server) { s.sinks = append(s.sinks, sinks...) }
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		store:  NewStore(),
		wsCfg: &workspace.WorkspaceConfig{
			CloneDir: cfg.CloneDir,
			GitToken: cfg.GitToken,
		},
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

// Close cancels running analyses and waits for them to stop
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.createAnalysis)
			r.Get("/", s.listAnalyses)
			r.Get("/{analysisID}", s.getAnalysis)
			r.Get("/{analysisID}/graph", s.getGraph)
			r.Get("/{analysisID}/groups", s.getGroups)
			r.Get("/{analysisID}/entrypoints", s.getEntryPoints)
			r.Get("/{analysisID}/synthesis", s.getSynthesis)
		})
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs each request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
