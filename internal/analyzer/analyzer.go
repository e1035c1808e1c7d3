package analyzer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/rs/zerolog/log"
)

// structuralConfidence is the fixed confidence of analyses built without a summarizer
const structuralConfidence = 0.3

// ExcerptSource returns source text for a line range of a file
type ExcerptSource interface {
	Excerpt(path string, start, end int) (string, error)
}

// Analyzer turns chain groups into group analyses
type Analyzer struct {
	graph   *callgraph.CallGraph
	sources ExcerptSource
}

// New creates an analyzer over graph. sources may be nil, in which case
// requests carry no code excerpts.
func New(graph *callgraph.CallGraph, sources ExcerptSource) *Analyzer {
	return &Analyzer{graph: graph, sources: sources}
}

// Analyze returns the analysis for group. Results are cached in run by
// group id, so a second call for the same group returns the first result
// without calling the summarizer again. A nil summarizer yields a
// structural analysis.
func (a *Analyzer) Analyze(ctx context.Context, run *RunContext, group *callgraph.ChainGroup, summarizer Summarizer) (GroupAnalysis, error) {
	if cached, ok := run.cached(group.ID); ok {
		return cached, nil
	}

	if summarizer == nil {
		analysis := StructuralAnalysis(group)
		run.store(analysis)
		return analysis, nil
	}

	req := a.BuildRequest(run, group)
	summary, err := summarizer.Summarize(ctx, req)
	if err == nil && summary == nil {
		err = errors.New("summarizer returned no summary")
	}
	run.recordCall(summary, err)
	if err != nil {
		return GroupAnalysis{}, fmt.Errorf("failed to summarize %s: %w", group.ID, err)
	}
	run.markVisited(group.InvolvedFiles)

	analysis := GroupAnalysis{
		GroupID:                group.ID,
		Status:                 StatusAnalyzed,
		Description:            summary.Description,
		EntryPointDescriptions: summary.EntryPointDescriptions,
		ComponentInteractions:  summary.ComponentInteractions,
		DomainInsights:         summary.DomainInsights,
		Gotchas:                summary.Gotchas,
		Confidence:             clamp(summary.Confidence),
		Truncated:              req.Truncated,
	}
	run.store(analysis)

	log.Debug().
		Str("group", group.ID).
		Float64("confidence", analysis.Confidence).
		Bool("truncated", analysis.Truncated).
		Msg("analyzed group")

	return analysis, nil
}

// StructuralAnalysis describes a group from its shape alone
func StructuralAnalysis(group *callgraph.ChainGroup) GroupAnalysis {
	return GroupAnalysis{
		GroupID: group.ID,
		Status:  StatusStructural,
		Description: fmt.Sprintf("Call chain group with %d chains involving %d files",
			len(group.Chains), len(group.InvolvedFiles)),
		Confidence: structuralConfidence,
	}
}

// UnanalyzedGroup marks a group whose enrichment failed or never ran
func UnanalyzedGroup(group *callgraph.ChainGroup, status Status, err error) GroupAnalysis {
	analysis := StructuralAnalysis(group)
	analysis.Status = status
	analysis.Confidence = 0
	if err != nil {
		analysis.Error = err.Error()
	}
	return analysis
}

// BuildRequest assembles the summarizer input for group, keeping source
// excerpts within the run's context budget.
func (a *Analyzer) BuildRequest(run *RunContext, group *callgraph.ChainGroup) *SummaryRequest {
	req := &SummaryRequest{
		GroupID:       group.ID,
		GroupName:     group.Name,
		EntryPoints:   group.PrimaryEntryPoints,
		InvolvedFiles: group.InvolvedFiles,
	}
	for i := range group.Chains {
		req.Chains = append(req.Chains, RenderChain(&group.Chains[i]))
	}

	budget := run.MaxContextSize() * charsPerToken
	for _, c := range req.Chains {
		budget -= len(c)
	}

	if a.sources == nil || a.graph == nil {
		return req
	}

	for _, sig := range group.AllMethods {
		node := a.graph.Node(sig)
		if node == nil {
			continue
		}
		code, err := a.sources.Excerpt(sig.FilePath, node.StartLine, node.EndLine)
		if err != nil {
			log.Debug().Err(err).Str("file", sig.FilePath).Msg("no excerpt for method")
			continue
		}
		if len(code) > budget {
			req.Truncated = true
			continue
		}
		budget -= len(code)
		req.Excerpts = append(req.Excerpts, Excerpt{
			Method:    sig,
			StartLine: node.StartLine,
			EndLine:   node.EndLine,
			Code:      code,
		})
	}

	return req
}

// RenderChain prints a chain as an indented list of steps
func RenderChain(chain *callgraph.CallChain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, confidence %.2f)\n",
		chain.EntryPoint.Signature.DisplayName(), chain.EntryPoint.Type, chain.EntryPoint.Confidence)
	for _, step := range chain.Steps {
		fmt.Fprintf(&b, "%s%d. %s (%s:%d) [%s]\n",
			strings.Repeat("  ", step.Depth), step.Depth, step.Method.DisplayName(),
			filepath.Base(step.Method.FilePath), step.CallSiteLine, step.CallKind)
	}
	if chain.HasCycles {
		b.WriteString("(cycle detected)\n")
	}
	return b.String()
}

// Synthesize folds group analyses into a system-level view
func (a *Analyzer) Synthesize(analyses []GroupAnalysis) SystemSynthesis {
	var analyzed []GroupAnalysis
	for _, ga := range analyses {
		if ga.Analyzed() {
			analyzed = append(analyzed, ga)
		}
	}

	if len(analyzed) == 0 {
		return SystemSynthesis{
			OverallDescription: "Call-chain analysis completed without LLM enhancement",
			KeyThemes:          []string{"Code Structure"},
			OverallConfidence:  0.5,
		}
	}

	synthesis := SystemSynthesis{TotalGroupsAnalyzed: len(analyzed)}
	seenTheme := make(map[string]bool)
	var sentences []string
	total := 0.0

	for _, ga := range analyzed {
		total += ga.Confidence
		if s := firstSentence(ga.Description); s != "" {
			sentences = append(sentences, s)
		}
		for _, insight := range ga.DomainInsights {
			if insight.Category != "" && !seenTheme[insight.Category] {
				seenTheme[insight.Category] = true
				synthesis.KeyThemes = append(synthesis.KeyThemes, insight.Category)
			}
		}
		for _, g := range ga.Gotchas {
			if g.Severity == SeverityCritical {
				synthesis.CriticalGotchas = append(synthesis.CriticalGotchas, g)
			}
		}
	}

	if len(synthesis.KeyThemes) == 0 {
		synthesis.KeyThemes = []string{"Call Chain Analysis"}
	}

	synthesis.OverallDescription = fmt.Sprintf("System with %d call chain groups analyzed.", len(analyzed))
	if len(sentences) > 0 {
		synthesis.OverallDescription += " " + strings.Join(sentences, " ")
	}
	synthesis.OverallConfidence = total / float64(len(analyzed))

	return synthesis
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ". "); i >= 0 {
		return text[:i+1]
	}
	return text
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
