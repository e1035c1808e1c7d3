package workspace

import (
	"context"
	"fmt"
	"os"

	"github.com/neural-chilli/codesworth/internal/analyzer"
	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/neural-chilli/codesworth/internal/llm"
	"github.com/neural-chilli/codesworth/internal/parser"
	"github.com/neural-chilli/codesworth/internal/repo"
	"github.com/rs/zerolog/log"
)

// Runner takes a workspace through clone, analysis and completion
type Runner struct {
	ws         *Workspace
	repos      *repo.Service
	completer  llm.Completer
	usage      *llm.UsageTracker
	frontend   engine.Frontend
	cfg        *RunConfig
	projectCfg *config.ProjectConfig

	// OnPhase is called after every phase change
	OnPhase func(ws *Workspace, phase Phase)
}

// RunConfig holds configuration for an analysis run. Zero values are
// filled from the project config found in the repository, then from the
// engine defaults.
type RunConfig struct {
	MaxDepth       int
	Mode           string
	MaxContextSize int
	Concurrency    int
	MaxFileSize    int64
	Languages      []string
	IgnoreDirs     []string

	// RecordsPath replaces the tree-sitter front-end with a records file
	RecordsPath string

	// Summarize enables LLM summaries when a completer is configured
	Summarize bool
	Tier      llm.Tier
	MaxTokens int
	Budget    llm.BudgetConfig
}

// DefaultRunConfig returns a structural-only configuration
func DefaultRunConfig() *RunConfig {
	return &RunConfig{}
}

// NewRunner creates a runner. completer may be nil, in which case groups
// are analyzed structurally.
func NewRunner(ws *Workspace, completer llm.Completer, wsCfg *WorkspaceConfig, cfg *RunConfig) *Runner {
	if cfg == nil {
		cfg = DefaultRunConfig()
	}
	if wsCfg == nil {
		wsCfg = &WorkspaceConfig{}
	}

	cloneDir := wsCfg.CloneDir
	if cloneDir == "" {
		cloneDir = ws.Path()
	}
	if cloneDir == "" {
		cloneDir = os.TempDir()
	}

	return &Runner{
		ws:        ws,
		repos:     repo.NewService(cloneDir, wsCfg.GitToken),
		completer: completer,
		cfg:       cfg,
	}
}

// WithFrontend overrides the front-end chosen from the run config
func (r *Runner) WithFrontend(f engine.Frontend) *Runner {
	r.frontend = f
	return r
}

// Usage returns the LLM usage tracker of the last run, nil when the run
// was structural
func (r *Runner) Usage() *llm.UsageTracker {
	return r.usage
}

// ProjectConfig returns the project config loaded by Initialize
func (r *Runner) ProjectConfig() *config.ProjectConfig {
	return r.projectCfg
}

// Initialize clones remote repositories and loads the project config
func (r *Runner) Initialize(ctx context.Context) error {
	if r.ws.Remote() && r.ws.RepoPath == "" {
		r.setPhase(PhaseCloning)

		info, err := repo.ParseURL(r.ws.RepoURL)
		if err != nil {
			return r.fail(err)
		}
		checkout, err := r.repos.Clone(ctx, info)
		if err != nil {
			return r.fail(fmt.Errorf("clone failed: %w", err))
		}

		r.ws.mu.Lock()
		r.ws.RepoPath = checkout.Path
		r.ws.Branch = checkout.Branch
		r.ws.CommitSHA = checkout.CommitSHA
		r.ws.mu.Unlock()
	}

	projectCfg, err := config.LoadProjectConfig(r.ws.RepoPath)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load project config, using defaults")
		projectCfg = config.DefaultProjectConfig()
	}
	r.projectCfg = projectCfg
	r.applyProjectConfig()

	return r.ws.Save()
}

// applyProjectConfig fills unset run settings from the project config
func (r *Runner) applyProjectConfig() {
	if r.projectCfg == nil {
		return
	}
	p := r.projectCfg

	if r.cfg.MaxDepth == 0 {
		r.cfg.MaxDepth = p.Analysis.MaxDepth
	}
	if r.cfg.Mode == "" {
		r.cfg.Mode = p.Analysis.Mode
	}
	if r.cfg.MaxContextSize == 0 {
		r.cfg.MaxContextSize = p.Analysis.MaxContextSize
	}
	if r.cfg.Concurrency == 0 {
		r.cfg.Concurrency = p.Analysis.Concurrency
	}
	if r.cfg.MaxFileSize == 0 {
		r.cfg.MaxFileSize = p.Analysis.MaxFileSize
	}
	if len(r.cfg.Languages) == 0 {
		r.cfg.Languages = p.Languages
	}
	if len(r.cfg.IgnoreDirs) == 0 {
		r.cfg.IgnoreDirs = p.IgnoreDirs
	}
	if p.LLM.Enabled {
		r.cfg.Summarize = true
	}
	if r.cfg.Tier == 0 && p.LLM.Tier != 0 {
		r.cfg.Tier = llm.Tier(p.LLM.Tier)
	}

	log.Debug().
		Int("max_depth", r.cfg.MaxDepth).
		Str("mode", r.cfg.Mode).
		Strs("languages", r.cfg.Languages).
		Bool("summarize", r.cfg.Summarize).
		Msg("applied project config")
}

// EngineConfig resolves the run config into engine settings
func (r *Runner) EngineConfig() (engine.Config, error) {
	ec := engine.DefaultConfig()
	if r.cfg.MaxDepth != 0 {
		ec.MaxDepth = r.cfg.MaxDepth
	}
	if r.cfg.MaxContextSize > 0 {
		ec.MaxContextSize = r.cfg.MaxContextSize
	}
	if r.cfg.Concurrency > 0 {
		ec.Concurrency = r.cfg.Concurrency
	}
	mode, err := callgraph.ParseTraceMode(r.cfg.Mode)
	if err != nil {
		return ec, err
	}
	ec.TraceMode = mode
	return ec, nil
}

func (r *Runner) buildFrontend() engine.Frontend {
	if r.frontend != nil {
		return r.frontend
	}
	if r.cfg.RecordsPath != "" {
		return parser.RecordsFrontend{Path: r.cfg.RecordsPath}
	}
	return parser.NewParser().WithDiscoverOptions(repo.DiscoverOptions{
		Languages:   r.cfg.Languages,
		MaxFileSize: r.cfg.MaxFileSize,
		IgnoreDirs:  r.cfg.IgnoreDirs,
	})
}

func (r *Runner) buildSummarizer() analyzer.Summarizer {
	if !r.cfg.Summarize || r.completer == nil {
		r.usage = nil
		return nil
	}
	r.usage = llm.NewUsageTracker(llm.UsageTrackerConfig{Budget: r.cfg.Budget})
	tracked := llm.NewTrackedCompleter(r.completer, r.usage)
	return llm.NewGroupSummarizer(tracked, r.cfg.Tier, r.cfg.MaxTokens)
}

// Run analyzes the workspace. Initialize is called first when it has not
// run yet.
func (r *Runner) Run(ctx context.Context) (*engine.Result, error) {
	if r.projectCfg == nil {
		if err := r.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	ec, err := r.EngineConfig()
	if err != nil {
		return nil, r.fail(err)
	}
	eng, err := engine.New(ec, r.buildFrontend(), r.buildSummarizer())
	if err != nil {
		return nil, r.fail(err)
	}

	r.setPhase(PhaseAnalyzing)
	log.Info().
		Str("workspace", r.ws.ID).
		Str("path", r.ws.RepoPath).
		Msg("analyzing workspace")

	res, err := eng.Analyze(ctx, r.ws.RepoPath)
	if err != nil {
		return nil, r.fail(err)
	}

	res.Revision = r.ws.CommitSHA
	if res.Revision == "" {
		res.Revision = repo.Revision(r.ws.RepoPath)
	}

	r.ws.Complete(res)
	r.notify(PhaseCompleted)
	if err := r.ws.Save(); err != nil {
		log.Warn().Err(err).Str("workspace", r.ws.ID).Msg("failed to save workspace state")
	}

	if r.usage != nil {
		stats := r.usage.Stats()
		log.Info().
			Int64("requests", stats.TotalRequests).
			Int64("tokens", stats.TotalTokens).
			Float64("cost_usd", stats.EstimatedCost).
			Msg("LLM usage")
	}

	return res, nil
}

func (r *Runner) setPhase(phase Phase) {
	r.ws.SetPhase(phase)
	if err := r.ws.Save(); err != nil {
		log.Warn().Err(err).Str("workspace", r.ws.ID).Msg("failed to save workspace state")
	}
	r.notify(phase)
}

func (r *Runner) notify(phase Phase) {
	if r.OnPhase != nil {
		r.OnPhase(r.ws, phase)
	}
}

func (r *Runner) fail(err error) error {
	r.ws.Fail(err)
	if saveErr := r.ws.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Str("workspace", r.ws.ID).Msg("failed to save workspace state")
	}
	r.notify(PhaseFailed)
	return err
}
