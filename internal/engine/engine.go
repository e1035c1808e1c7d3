package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/neural-chilli/codesworth/internal/analyzer"
	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrNoFrontend is returned by Analyze when the engine has no front-end
var ErrNoFrontend = errors.New("no front-end configured")

// Engine drives the pipeline from source files to grouped, optionally
// summarized call chains
type Engine struct {
	cfg        Config
	frontend   Frontend
	summarizer analyzer.Summarizer
	builder    *callgraph.Builder
	tracer     *callgraph.Tracer
}

// New creates an engine. frontend may be nil when only AnalyzeFiles is
// used; summarizer may be nil for a purely structural run.
func New(cfg Config, frontend Frontend, summarizer analyzer.Summarizer) (*Engine, error) {
	tracer, err := callgraph.NewTracer(cfg.MaxDepth, cfg.TraceMode)
	if err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Engine{
		cfg:        cfg,
		frontend:   frontend,
		summarizer: summarizer,
		builder:    callgraph.NewBuilder(nil),
		tracer:     tracer,
	}, nil
}

// run tracks one pass through the pipeline
type run struct {
	result    *Result
	stageFrom time.Time
}

func (r *run) advance(stage Stage) {
	now := time.Now()
	r.result.StageTimes[stage.String()] = now.Sub(r.stageFrom).Milliseconds()
	r.result.Stage = stage
	r.stageFrom = now

	log.Debug().
		Str("run", r.result.RunID).
		Str("stage", stage.String()).
		Msg("stage complete")
}

// Analyze parses root with the front-end and runs the full pipeline.
// Only a front-end failure aborts the run.
func (e *Engine) Analyze(ctx context.Context, root string) (*Result, error) {
	if e.frontend == nil {
		return nil, ErrNoFrontend
	}

	log.Info().Str("root", root).Int("max_depth", e.cfg.MaxDepth).Msg("starting call-chain analysis")

	start := time.Now()
	files, err := e.frontend.Parse(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", root, err)
	}

	return e.analyze(ctx, root, files, start), nil
}

// AnalyzeFiles runs the pipeline over records produced elsewhere. Records
// without source text are read from disk when possible.
func (e *Engine) AnalyzeFiles(ctx context.Context, files []callgraph.SourceFile) (*Result, error) {
	start := time.Now()
	hydrateSources(files)
	return e.analyze(ctx, "", files, start), nil
}

func (e *Engine) analyze(ctx context.Context, root string, files []callgraph.SourceFile, start time.Time) *Result {
	r := &run{
		result: &Result{
			RunID:      uuid.New().String(),
			Root:       root,
			StartedAt:  start,
			Stage:      StageIdle,
			StageTimes: make(map[string]int64),
		},
		stageFrom: start,
	}
	res := r.result
	r.advance(StageParsed)

	res.Graph = e.builder.Build(files)
	r.advance(StageGraphBuilt)

	sources := callgraph.NewSourceCache(files)
	res.EntryPoints = callgraph.NewEntryPointDetector(sources).Detect(res.Graph)
	r.advance(StageEntryPointsDetected)

	res.Chains = e.tracer.Trace(res.Graph, res.EntryPoints)
	r.advance(StageChainsTraced)

	res.Groups = callgraph.Group(res.Chains)
	res.GroupStats = callgraph.ComputeGroupStats(res.Groups)
	r.advance(StageGrouped)

	an := analyzer.New(res.Graph, sources)
	runCtx := analyzer.NewRunContext(e.cfg.MaxContextSize)
	res.Analyses = e.analyzeGroups(ctx, an, runCtx, res.Groups)
	res.Synthesis = an.Synthesize(res.Analyses)
	r.advance(StageOptionallyAnalyzed)

	graphStats := res.Graph.Stats()
	calls, failures, inTokens, outTokens := runCtx.Usage()
	res.Statistics = Statistics{
		TotalMethods:     graphStats.TotalMethods,
		TotalCalls:       graphStats.TotalCalls,
		EntryPointsFound: len(res.EntryPoints),
		CallChainsTraced: len(res.Chains),
		GroupsCreated:    len(res.Groups),
		LLMCallsMade:     calls,
		LLMFailures:      failures,
		FilesAnalyzed:    len(files),
		CyclesFound:      graphStats.Cycles,
		InputTokens:      inTokens,
		OutputTokens:     outTokens,
		AnalysisTimeMs:   time.Since(start).Milliseconds(),
	}
	r.advance(StageDone)

	log.Info().
		Int("methods", res.Statistics.TotalMethods).
		Int("calls", res.Statistics.TotalCalls).
		Int("entry_points", res.Statistics.EntryPointsFound).
		Int("chains", res.Statistics.CallChainsTraced).
		Int("groups", res.Statistics.GroupsCreated).
		Int("llm_calls", res.Statistics.LLMCallsMade).
		Int64("elapsed_ms", res.Statistics.AnalysisTimeMs).
		Msg("call-chain analysis complete")

	return res
}

// analyzeGroups summarizes every group with bounded parallelism. Each
// worker writes only its own slot so the output order matches groups.
func (e *Engine) analyzeGroups(ctx context.Context, an *analyzer.Analyzer, runCtx *analyzer.RunContext, groups []callgraph.ChainGroup) []analyzer.GroupAnalysis {
	analyses := make([]analyzer.GroupAnalysis, len(groups))

	if e.summarizer == nil {
		for i := range groups {
			analyses[i], _ = an.Analyze(ctx, runCtx, &groups[i], nil)
		}
		return analyses
	}

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)

	for i := range groups {
		if ctx.Err() != nil {
			analyses[i] = analyzer.UnanalyzedGroup(&groups[i], analyzer.StatusSkipped, ctx.Err())
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				analyses[i] = analyzer.UnanalyzedGroup(&groups[i], analyzer.StatusSkipped, ctx.Err())
				return nil
			}

			ga, err := an.Analyze(ctx, runCtx, &groups[i], e.summarizer)
			if err != nil {
				status := analyzer.StatusFailed
				if ctx.Err() != nil {
					status = analyzer.StatusSkipped
				}
				log.Warn().
					Err(err).
					Str("group", groups[i].ID).
					Str("status", string(status)).
					Msg("group left unanalyzed")
				analyses[i] = analyzer.UnanalyzedGroup(&groups[i], status, err)
				return nil
			}

			analyses[i] = ga
			return nil
		})
	}

	_ = g.Wait()
	return analyses
}

func hydrateSources(files []callgraph.SourceFile) {
	for i := range files {
		if files[i].Source != "" {
			continue
		}
		data, err := os.ReadFile(files[i].Path)
		if err != nil {
			log.Warn().Err(err).Str("file", files[i].Path).Msg("no source for record, calls will not be extracted")
			continue
		}
		files[i].Source = string(data)
	}
}
