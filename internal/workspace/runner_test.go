package workspace

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/neural-chilli/codesworth/internal/llm"
	"github.com/neural-chilli/codesworth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCompleter answers every request with a fixed JSON summary
type countingCompleter struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCompleter) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return &llm.Response{
		Content:      `{"description": "Loads configuration and processes it.", "confidence": 0.8}`,
		Provider:     llm.ProviderOllama,
		Model:        "stub",
		InputTokens:  100,
		OutputTokens: 20,
	}, nil
}

func newLocalWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()
	ws, err := New(testutil.WriteTree(t, files), &WorkspaceConfig{})
	require.NoError(t, err)
	return ws
}

func TestRunner_StructuralRun(t *testing.T) {
	ws := newLocalWorkspace(t, testutil.SampleRepo)

	var phases []Phase
	r := NewRunner(ws, nil, nil, nil)
	r.OnPhase = func(_ *Workspace, p Phase) { phases = append(phases, p) }

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, engine.StageDone, res.Stage)
	assert.Equal(t, ws.RepoPath, res.Root)
	assert.Equal(t, 7, res.Statistics.TotalMethods)
	assert.Equal(t, 5, res.Statistics.TotalCalls)
	assert.Equal(t, 2, res.Statistics.EntryPointsFound)
	assert.Equal(t, 2, res.Statistics.GroupsCreated)
	assert.Zero(t, res.Statistics.LLMCallsMade)
	assert.Empty(t, res.Revision, "temp dir is not a git repository")

	assert.Equal(t, []Phase{PhaseAnalyzing, PhaseCompleted}, phases)
	assert.Equal(t, PhaseCompleted, ws.Phase())
	assert.Same(t, res, ws.Result())
	assert.Nil(t, r.Usage())
}

func TestRunner_ProjectConfigFillsUnsetFields(t *testing.T) {
	files := map[string]string{
		".codesworth.yaml": "version: \"1.0\"\nlanguages: [go]\nanalysis:\n  max_depth: 2\n  mode: paths\n",
	}
	for k, v := range testutil.SampleRepo {
		files[k] = v
	}
	ws := newLocalWorkspace(t, files)

	r := NewRunner(ws, nil, nil, &RunConfig{MaxDepth: 4})
	require.NoError(t, r.Initialize(context.Background()))

	ec, err := r.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, ec.MaxDepth, "explicit settings win")
	assert.Equal(t, callgraph.TracePaths, ec.TraceMode)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Statistics.EntryPointsFound, "python excluded by languages")
	assert.Equal(t, 2, res.Statistics.FilesAnalyzed)
}

func TestRunner_InvalidModeFails(t *testing.T) {
	ws := newLocalWorkspace(t, testutil.SampleRepo)

	r := NewRunner(ws, nil, nil, &RunConfig{Mode: "graph"})
	_, err := r.Run(context.Background())

	assert.Error(t, err)
	state := ws.Snapshot()
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.NotEmpty(t, state.Error)
}

func TestRunner_InvalidDepthFails(t *testing.T) {
	ws := newLocalWorkspace(t, testutil.SampleRepo)

	_, err := NewRunner(ws, nil, nil, &RunConfig{MaxDepth: -1}).Run(context.Background())
	assert.ErrorIs(t, err, callgraph.ErrInvalidDepth)
	assert.Equal(t, PhaseFailed, ws.Phase())
}

func TestRunner_RecordsFrontend(t *testing.T) {
	data, err := json.Marshal(testutil.SampleFiles())
	require.NoError(t, err)
	records := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(records, data, 0644))

	ws := newLocalWorkspace(t, map[string]string{"README.md": "# empty\n"})
	res, err := NewRunner(ws, nil, nil, &RunConfig{RecordsPath: records}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, res.Statistics.TotalMethods)
	assert.Equal(t, 2, res.Statistics.EntryPointsFound)
}

func TestRunner_SummarizeTracksUsage(t *testing.T) {
	ws := newLocalWorkspace(t, testutil.SampleRepo)
	completer := &countingCompleter{}

	r := NewRunner(ws, completer, nil, &RunConfig{Summarize: true, Concurrency: 2})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, completer.calls)
	assert.Equal(t, 2, res.Statistics.LLMCallsMade)
	require.NotNil(t, r.Usage())
	assert.Equal(t, int64(2), r.Usage().Stats().TotalRequests)
	for _, a := range res.Analyses {
		assert.Equal(t, "Loads configuration and processes it.", a.Description)
	}
}

func TestRunner_SummarizeWithoutCompleterIsStructural(t *testing.T) {
	ws := newLocalWorkspace(t, testutil.SampleRepo)

	r := NewRunner(ws, nil, nil, &RunConfig{Summarize: true})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.Statistics.LLMCallsMade)
	assert.Nil(t, r.Usage())
}
