package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/neural-chilli/codesworth/internal/analyzer"
	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/neural-chilli/codesworth/internal/export"
	"github.com/neural-chilli/codesworth/internal/llm"
	"github.com/neural-chilli/codesworth/internal/workspace"
	"github.com/rs/zerolog/log"
)

// CreateAnalysisRequest is the request body for starting an analysis
type CreateAnalysisRequest struct {
	Path      string   `json:"path,omitempty"`
	RepoURL   string   `json:"repo_url,omitempty"`
	MaxDepth  int      `json:"max_depth,omitempty"`
	Mode      string   `json:"mode,omitempty"` // tree, paths
	Languages []string `json:"languages,omitempty"`
	Summarize bool     `json:"summarize,omitempty"`
	LLMTier   int      `json:"llm_tier,omitempty"`
}

// AnalysisResponse is the API view of an analysis
type AnalysisResponse struct {
	ID          string             `json:"id"`
	Source      string             `json:"source"`
	RepoPath    string             `json:"repo_path,omitempty"`
	Branch      string             `json:"branch,omitempty"`
	Revision    string             `json:"revision,omitempty"`
	Phase       workspace.Phase    `json:"phase"`
	RunID       string             `json:"run_id,omitempty"`
	Stage       string             `json:"stage,omitempty"`
	Error       string             `json:"error,omitempty"`
	Statistics  *engine.Statistics `json:"statistics,omitempty"`
	CreatedAt   string             `json:"created_at"`
	StartedAt   *string            `json:"started_at,omitempty"`
	CompletedAt *string            `json:"completed_at,omitempty"`
}

// GroupResponse pairs a chain group with its analysis
type GroupResponse struct {
	callgraph.ChainGroup
	Analysis *analyzer.GroupAnalysis `json:"analysis,omitempty"`
}

// SynthesisResponse is the system-level view of a completed analysis
type SynthesisResponse struct {
	Synthesis  analyzer.SystemSynthesis `json:"system_synthesis"`
	GroupStats callgraph.GroupStats     `json:"group_stats"`
	Statistics engine.Statistics        `json:"statistics"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func analysisToResponse(ws *workspace.Workspace) *AnalysisResponse {
	state := ws.Snapshot()
	path, branch, commit := ws.Checkout()

	resp := &AnalysisResponse{
		ID:         ws.ID,
		Source:     ws.Source,
		RepoPath:   path,
		Branch:     branch,
		Revision:   commit,
		Phase:      state.Phase,
		RunID:      state.RunID,
		Stage:      state.Stage,
		Error:      state.Error,
		Statistics: state.Statistics,
		CreatedAt:  formatTime(ws.CreatedAt),
	}
	if res := ws.Result(); res != nil && res.Revision != "" {
		resp.Revision = res.Revision
	}
	if state.StartedAt != nil {
		s := formatTime(*state.StartedAt)
		resp.StartedAt = &s
	}
	if state.CompletedAt != nil {
		s := formatTime(*state.CompletedAt)
		resp.CompletedAt = &s
	}
	return resp
}

// createAnalysis starts an analysis of a local path or a remote repository.
// With ?wait=true the response is sent once the run has finished.
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CreateAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := req.Path
	if source == "" {
		source = req.RepoURL
	}
	if source == "" || (req.Path != "" && req.RepoURL != "") {
		respondError(w, http.StatusBadRequest, "exactly one of path or repo_url is required")
		return
	}
	if req.Path != "" {
		if err := s.checkLocalPath(req.Path); err != nil {
			respondError(w, http.StatusForbidden, err.Error())
			return
		}
	}
	if req.MaxDepth < 0 {
		respondError(w, http.StatusBadRequest, "max_depth must be positive")
		return
	}
	if _, err := callgraph.ParseTraceMode(req.Mode); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Summarize && s.completer == nil {
		respondError(w, http.StatusBadRequest, "LLM summaries are not configured")
		return
	}

	ws, err := workspace.New(source, s.wsCfg)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.store.Add(ws)

	runCfg := s.runConfig(req)
	runner := workspace.NewRunner(ws, s.completer, s.wsCfg, runCfg)

	log.Info().
		Str("analysis", ws.ID).
		Str("source", source).
		Bool("summarize", runCfg.Summarize).
		Msg("analysis requested")

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		s.execute(r.Context(), runner, ws)
		status := http.StatusCreated
		if ws.Phase() == workspace.PhaseFailed {
			status = http.StatusUnprocessableEntity
		}
		respondJSON(w, status, analysisToResponse(ws))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.baseCtx, runner, ws)
	}()

	respondJSON(w, http.StatusAccepted, analysisToResponse(ws))
}

// runConfig merges request settings over the server's analysis defaults
func (s *Server) runConfig(req CreateAnalysisRequest) *workspace.RunConfig {
	cfg := workspace.DefaultRunConfig()
	if s.cfg != nil {
		cfg.MaxContextSize = s.cfg.Analysis.MaxContextSize
		cfg.Concurrency = s.cfg.Analysis.Concurrency
		cfg.MaxFileSize = s.cfg.Analysis.MaxFileSize
	}
	cfg.MaxDepth = req.MaxDepth
	cfg.Mode = req.Mode
	cfg.Languages = req.Languages
	cfg.Summarize = req.Summarize
	cfg.Tier = llm.Tier(req.LLMTier)
	return cfg
}

func (s *Server) execute(ctx context.Context, runner *workspace.Runner, ws *workspace.Workspace) {
	res, err := runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("analysis", ws.ID).Msg("analysis failed")
		return
	}
	if len(s.sinks) == 0 {
		return
	}
	if err := export.WriteAll(ctx, res, s.sinks...); err != nil {
		log.Error().Err(err).Str("analysis", ws.ID).Msg("failed to persist analysis")
	}
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	list := s.store.List(limit)
	responses := make([]*AnalysisResponse, len(list))
	for i, ws := range list {
		responses[i] = analysisToResponse(ws)
	}
	respondJSON(w, http.StatusOK, responses)
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.store.Get(chi.URLParam(r, "analysisID"))
	if !ok {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	respondJSON(w, http.StatusOK, analysisToResponse(ws))
}

// completedResult resolves the analysis in the URL and its result. It
// writes the error response and returns nil when there is no result yet.
func (s *Server) completedResult(w http.ResponseWriter, r *http.Request) *engine.Result {
	ws, ok := s.store.Get(chi.URLParam(r, "analysisID"))
	if !ok {
		respondError(w, http.StatusNotFound, "analysis not found")
		return nil
	}
	res := ws.Result()
	if res == nil {
		respondError(w, http.StatusConflict, "analysis is "+string(ws.Phase()))
		return nil
	}
	return res
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	res := s.completedResult(w, r)
	if res == nil {
		return
	}
	respondJSON(w, http.StatusOK, res.Projection())
}

func (s *Server) getGroups(w http.ResponseWriter, r *http.Request) {
	res := s.completedResult(w, r)
	if res == nil {
		return
	}

	groups := make([]GroupResponse, len(res.Groups))
	for i, g := range res.Groups {
		groups[i] = GroupResponse{ChainGroup: g}
		if a, ok := res.AnalysisFor(i); ok {
			groups[i].Analysis = &a
		}
	}
	respondJSON(w, http.StatusOK, groups)
}

func (s *Server) getEntryPoints(w http.ResponseWriter, r *http.Request) {
	res := s.completedResult(w, r)
	if res == nil {
		return
	}
	entries := res.EntryPoints
	if entries == nil {
		entries = []callgraph.EntryPoint{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) getSynthesis(w http.ResponseWriter, r *http.Request) {
	res := s.completedResult(w, r)
	if res == nil {
		return
	}
	respondJSON(w, http.StatusOK, SynthesisResponse{
		Synthesis:  res.Synthesis,
		GroupStats: res.GroupStats,
		Statistics: res.Statistics,
	})
}

var errLocalPathsDisabled = errors.New("local paths are disabled; use repo_url")

// checkLocalPath confines server-side paths to the configured allowed root.
// Without one, local paths are refused in production.
func (s *Server) checkLocalPath(path string) error {
	root := s.cfg.AllowedRoot
	if root == "" {
		if s.cfg.IsProduction() {
			return errLocalPathsDisabled
		}
		return nil
	}

	root, err := resolvePath(root)
	if err != nil {
		return fmt.Errorf("allowed root unavailable: %w", err)
	}
	target, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("path not allowed: %w", err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside the allowed root", path)
	}
	return nil
}

// resolvePath makes path absolute with symlinks followed
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
