package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomSummarizer returns different text on every call
type randomSummarizer struct {
	mu    sync.Mutex
	calls int
	last  *SummaryRequest
}

func (s *randomSummarizer) Summarize(ctx context.Context, req *SummaryRequest) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
	return &Summary{
		Description:  fmt.Sprintf("Handles checkout. Run %d.", rand.Int()),
		Confidence:   0.8,
		InputTokens:  100,
		OutputTokens: 20,
		DomainInsights: []DomainInsight{
			{Category: "Payments", Insight: "charges cards"},
		},
		Gotchas: []Gotcha{
			{Category: "Concurrency", Description: "shared map", Severity: SeverityCritical},
			{Category: "Style", Description: "long function", Severity: SeverityInfo},
		},
	}, nil
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, *SummaryRequest) (*Summary, error) {
	return nil, errors.New("provider unavailable")
}

func testGroup(t *testing.T) (*callgraph.CallGraph, *callgraph.SourceCache, callgraph.ChainGroup) {
	t.Helper()
	files := []callgraph.SourceFile{{
		Path:     "shop/checkout.go",
		Language: "go",
		Source: strings.Join([]string{
			"func Checkout() {",
			"	charge()",
			"}",
			"func charge() {",
			"	return",
			"}",
		}, "\n"),
		Units: []callgraph.Unit{
			{Name: "Checkout", Kind: callgraph.UnitFunction, StartLine: 1, EndLine: 3, Visibility: "exported", Signature: "func Checkout()"},
			{Name: "charge", Kind: callgraph.UnitFunction, StartLine: 4, EndLine: 6, Signature: "func charge()"},
		},
	}}
	sources := callgraph.NewSourceCache(files)
	g := callgraph.NewBuilder(nil).Build(files)
	entries := callgraph.NewEntryPointDetector(sources).Detect(g)
	tracer, err := callgraph.NewTracer(6, callgraph.TraceTree)
	require.NoError(t, err)
	groups := callgraph.Group(tracer.Trace(g, entries))
	require.Len(t, groups, 1)
	return g, sources, groups[0]
}

func TestAnalyze_Idempotent(t *testing.T) {
	g, sources, group := testGroup(t)
	a := New(g, sources)
	run := NewRunContext(0)
	summarizer := &randomSummarizer{}

	first, err := a.Analyze(context.Background(), run, &group, summarizer)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), run, &group, summarizer)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, summarizer.calls)
	assert.Equal(t, StatusAnalyzed, first.Status)

	calls, failures, in, out := run.Usage()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, failures)
	assert.Equal(t, 100, in)
	assert.Equal(t, 20, out)
	assert.Equal(t, []string{"shop/checkout.go"}, run.VisitedFiles())
}

func TestAnalyze_RunsDoNotShareCache(t *testing.T) {
	g, sources, group := testGroup(t)
	a := New(g, sources)
	summarizer := &randomSummarizer{}

	first, err := a.Analyze(context.Background(), NewRunContext(0), &group, summarizer)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), NewRunContext(0), &group, summarizer)
	require.NoError(t, err)

	assert.Equal(t, 2, summarizer.calls)
	assert.NotEqual(t, first.Description, second.Description)
}

func TestAnalyze_WithoutSummarizer(t *testing.T) {
	g, sources, group := testGroup(t)

	analysis, err := New(g, sources).Analyze(context.Background(), NewRunContext(0), &group, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusStructural, analysis.Status)
	assert.Equal(t, "Call chain group with 1 chains involving 1 files", analysis.Description)
	assert.InDelta(t, 0.3, analysis.Confidence, 1e-9)
}

func TestAnalyze_SummarizerError(t *testing.T) {
	g, sources, group := testGroup(t)
	run := NewRunContext(0)

	_, err := New(g, sources).Analyze(context.Background(), run, &group, failingSummarizer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
	_, cached := run.cached(group.ID)
	assert.False(t, cached)
	calls, failures, _, _ := run.Usage()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, failures)
}

func TestBuildRequest_Excerpts(t *testing.T) {
	g, sources, group := testGroup(t)
	a := New(g, sources)

	req := a.BuildRequest(NewRunContext(0), &group)

	require.Len(t, req.Excerpts, 2)
	assert.Equal(t, "Checkout", req.Excerpts[0].Method.MethodName)
	assert.Contains(t, req.Excerpts[0].Code, "charge()")
	assert.False(t, req.Truncated)
	require.Len(t, req.Chains, 1)
	assert.Contains(t, req.Chains[0], "1. charge (checkout.go:2) [direct]")
}

func TestBuildRequest_BudgetTruncates(t *testing.T) {
	g, sources, group := testGroup(t)
	a := New(g, sources)

	// one token of budget is far smaller than any excerpt
	req := a.BuildRequest(NewRunContext(1), &group)

	assert.Empty(t, req.Excerpts)
	assert.True(t, req.Truncated)
}

func TestSynthesize(t *testing.T) {
	a := New(nil, nil)

	t.Run("no analyzed groups", func(t *testing.T) {
		s := a.Synthesize([]GroupAnalysis{{Status: StatusStructural, Confidence: 0.3}})
		assert.Equal(t, "Call-chain analysis completed without LLM enhancement", s.OverallDescription)
		assert.Equal(t, []string{"Code Structure"}, s.KeyThemes)
		assert.Equal(t, 0, s.TotalGroupsAnalyzed)
		assert.InDelta(t, 0.5, s.OverallConfidence, 1e-9)
	})

	t.Run("mixed", func(t *testing.T) {
		s := a.Synthesize([]GroupAnalysis{
			{
				Status:         StatusAnalyzed,
				Description:    "Handles checkout. Charges cards.",
				Confidence:     0.8,
				DomainInsights: []DomainInsight{{Category: "Payments"}, {Category: "Orders"}},
				Gotchas:        []Gotcha{{Description: "race", Severity: SeverityCritical}},
			},
			{
				Status:         StatusAnalyzed,
				Description:    "Loads config",
				Confidence:     0.6,
				DomainInsights: []DomainInsight{{Category: "Payments"}},
			},
			{Status: StatusFailed, Error: "boom"},
		})
		assert.Equal(t, 2, s.TotalGroupsAnalyzed)
		assert.Equal(t, []string{"Payments", "Orders"}, s.KeyThemes)
		require.Len(t, s.CriticalGotchas, 1)
		assert.InDelta(t, 0.7, s.OverallConfidence, 1e-9)
		assert.Equal(t, "System with 2 call chain groups analyzed. Handles checkout. Loads config", s.OverallDescription)
	})
}

func TestUnanalyzedGroup(t *testing.T) {
	group := &callgraph.ChainGroup{ID: "group-1234abcd", InvolvedFiles: []string{"a.go"}}

	ga := UnanalyzedGroup(group, StatusFailed, errors.New("timeout"))

	assert.Equal(t, StatusFailed, ga.Status)
	assert.Equal(t, "timeout", ga.Error)
	assert.False(t, ga.Analyzed())
}
