package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/neural-chilli/codesworth/internal/analyzer"
	"github.com/neural-chilli/codesworth/internal/callgraph"
)

// Stage is a step of the analysis pipeline. Stages only move forward.
type Stage int

const (
	StageIdle Stage = iota
	StageParsed
	StageGraphBuilt
	StageEntryPointsDetected
	StageChainsTraced
	StageGrouped
	StageOptionallyAnalyzed
	StageDone
)

var stageNames = map[Stage]string{
	StageIdle:                "idle",
	StageParsed:              "parsed",
	StageGraphBuilt:          "graph_built",
	StageEntryPointsDetected: "entry_points_detected",
	StageChainsTraced:        "chains_traced",
	StageGrouped:             "grouped",
	StageOptionallyAnalyzed:  "optionally_analyzed",
	StageDone:                "done",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// Frontend produces normalized records for every source file under root
type Frontend interface {
	Parse(ctx context.Context, root string) ([]callgraph.SourceFile, error)
}

// Config controls an analysis run
type Config struct {
	MaxDepth       int
	MaxContextSize int
	Concurrency    int
	TraceMode      callgraph.TraceMode
}

// DefaultConfig returns the default run configuration
func DefaultConfig() Config {
	return Config{
		MaxDepth:       6,
		MaxContextSize: analyzer.DefaultMaxContextSize,
		Concurrency:    4,
		TraceMode:      callgraph.TraceTree,
	}
}

// Statistics describes a completed run
type Statistics struct {
	TotalMethods     int   `json:"total_methods"`
	TotalCalls       int   `json:"total_calls"`
	EntryPointsFound int   `json:"entry_points_found"`
	CallChainsTraced int   `json:"call_chains_traced"`
	GroupsCreated    int   `json:"groups_created"`
	LLMCallsMade     int   `json:"llm_calls_made"`
	LLMFailures      int   `json:"llm_failures"`
	FilesAnalyzed    int   `json:"files_analyzed"`
	CyclesFound      int   `json:"cycles_found"`
	InputTokens      int   `json:"input_tokens"`
	OutputTokens     int   `json:"output_tokens"`
	AnalysisTimeMs   int64 `json:"analysis_time_ms"`
}

// Result is the assembled output of a run
type Result struct {
	RunID       string                   `json:"run_id"`
	Root        string                   `json:"root"`
	Revision    string                   `json:"revision,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	Stage       Stage                    `json:"stage"`
	Graph       *callgraph.CallGraph     `json:"-"`
	EntryPoints []callgraph.EntryPoint   `json:"entry_points"`
	Chains      []callgraph.CallChain    `json:"call_chains"`
	Groups      []callgraph.ChainGroup   `json:"groups"`
	GroupStats  callgraph.GroupStats     `json:"group_stats"`
	Analyses    []analyzer.GroupAnalysis `json:"group_analyses"`
	Synthesis   analyzer.SystemSynthesis `json:"system_synthesis"`
	Statistics  Statistics               `json:"statistics"`
	StageTimes  map[string]int64         `json:"stage_times_ms"`
}

// Projection is the machine readable view of the call graph
type Projection struct {
	Nodes       []*callgraph.CallNode  `json:"nodes"`
	Edges       []callgraph.CallEdge   `json:"edges"`
	EntryPoints []callgraph.EntryPoint `json:"entry_points"`
	Statistics  callgraph.GraphStats   `json:"statistics"`
}

// Projection builds the machine readable view of the result's graph
func (r *Result) Projection() Projection {
	p := Projection{
		Nodes:       []*callgraph.CallNode{},
		Edges:       []callgraph.CallEdge{},
		EntryPoints: r.EntryPoints,
	}
	if r.Graph != nil {
		p.Nodes = r.Graph.Nodes()
		p.Edges = append(p.Edges, r.Graph.Edges()...)
		p.Statistics = r.Graph.Stats()
	}
	if p.EntryPoints == nil {
		p.EntryPoints = []callgraph.EntryPoint{}
	}
	return p
}

// AnalysisFor returns the analysis aligned with groups[i]
func (r *Result) AnalysisFor(i int) (analyzer.GroupAnalysis, bool) {
	if i < 0 || i >= len(r.Analyses) {
		return analyzer.GroupAnalysis{}, false
	}
	return r.Analyses[i], true
}
