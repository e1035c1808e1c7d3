package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/neural-chilli/codesworth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(t *testing.T) *engine.Result {
	t.Helper()

	eng, err := engine.New(engine.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	res, err := eng.AnalyzeFiles(context.Background(), testutil.SampleFiles())
	require.NoError(t, err)
	res.Root = "/repo"
	return res
}

type failingSink struct{}

func (failingSink) Name() string { return "broken" }

func (failingSink) Write(ctx context.Context, res *engine.Result) error {
	return errors.New("disk full")
}

func TestWriteAll_ContinuesPastFailure(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()

	err := WriteAll(context.Background(), res, failingSink{}, &JSONSink{Dir: dir})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: disk full")
	assert.FileExists(t, filepath.Join(dir, GraphFile))
}

func TestNodeKey(t *testing.T) {
	res := sampleResult(t)
	keys := make(map[string]bool)
	for _, n := range res.Graph.Nodes() {
		keys[nodeKey(n.Signature)] = true
	}

	assert.True(t, keys["cmd/app/main.go#main"])
	assert.True(t, keys["web/views.py#handleRequest"])
	assert.Len(t, keys, res.Graph.Len())
}

func TestJSONSink_Plain(t *testing.T) {
	res := sampleResult(t)
	sink := &JSONSink{Dir: filepath.Join(t.TempDir(), "out")}

	require.NoError(t, sink.Write(context.Background(), res))

	var projection engine.Projection
	require.NoError(t, ReadJSON(sink.Path(GraphFile), &projection))
	assert.Len(t, projection.Nodes, 7)
	assert.Len(t, projection.Edges, 5)
	assert.Len(t, projection.EntryPoints, 2)
	assert.Equal(t, res.Graph.Stats(), projection.Statistics)

	var decoded engine.Result
	require.NoError(t, ReadJSON(sink.Path(ResultFile), &decoded))
	assert.Equal(t, res.RunID, decoded.RunID)
	assert.Len(t, decoded.Groups, 2)
}

func TestJSONSink_Compressed(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()
	sink := &JSONSink{Dir: dir, Compress: true}

	require.NoError(t, sink.Write(context.Background(), res))

	path := sink.Path(GraphFile)
	assert.True(t, strings.HasSuffix(path, ".json.zst"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// zstd frame magic
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4])

	var projection engine.Projection
	require.NoError(t, ReadJSON(path, &projection))
	assert.Len(t, projection.Nodes, 7)
}

func TestReadJSON_Missing(t *testing.T) {
	var v map[string]any
	assert.Error(t, ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &v))
}

func TestMarkdownSink(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()

	require.NoError(t, (&MarkdownSink{Dir: dir}).Write(context.Background(), res))

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	text := string(readme)
	assert.Contains(t, text, "# System Overview - Call Chain Analysis")
	assert.Contains(t, text, "Analysis Statistics: 7 methods, 2 call chains, 2 groups")
	assert.Contains(t, text, "Call-chain analysis completed without LLM enhancement")
	assert.Contains(t, text, "### main (main)")
	assert.Contains(t, text, "**File**: cmd/app/main.go")
	for _, g := range res.Groups {
		assert.Contains(t, text, "[View detailed analysis](./groups/"+g.ID+".md)")

		page, err := os.ReadFile(filepath.Join(dir, "groups", g.ID+".md"))
		require.NoError(t, err)
		assert.Contains(t, string(page), "# "+g.Name)
		assert.Contains(t, string(page), "**Status**: structural")
		assert.Contains(t, string(page), "## Files Involved")
	}
}

func TestMarkdownSink_IndentedSteps(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()
	require.NoError(t, (&MarkdownSink{Dir: dir}).Write(context.Background(), res))

	var mainGroup string
	for _, g := range res.Groups {
		if g.Name == "Group: main" {
			mainGroup = g.ID
		}
	}
	require.NotEmpty(t, mainGroup)

	page, err := os.ReadFile(filepath.Join(dir, "groups", mainGroup+".md"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "### Path 1: main (confidence: 0.90)")
	assert.Contains(t, string(page), "0. main (main.go:0)")
	assert.Contains(t, string(page), "  1. run (runner.go:5)")
	assert.Contains(t, string(page), "    2. process (runner.go:8)")
}

func TestPurpose(t *testing.T) {
	assert.Equal(t, "Loads config.", purpose("Loads config. Then runs."))
	assert.Equal(t, "No period", purpose("No period"))
	assert.Equal(t, "", purpose("  "))
}

func TestMarkdownSink_PreservesProtectedEdits(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()
	sink := &MarkdownSink{Dir: dir, PreserveEdits: true}
	require.NoError(t, sink.Write(context.Background(), res))

	readmePath := filepath.Join(dir, "README.md")
	readme, err := os.ReadFile(readmePath)
	require.NoError(t, err)

	edited := strings.Replace(string(readme),
		"<!-- PROTECTED: notes -->\n<!-- /PROTECTED -->",
		"<!-- PROTECTED: notes -->\nThe loader must run before any worker starts.\n<!-- /PROTECTED -->", 1)
	edited += "\n<!-- PROTECTED -->\nOwned by the platform team.\n<!-- /PROTECTED -->\n"
	require.NoError(t, os.WriteFile(readmePath, []byte(edited), 0644))

	require.NoError(t, sink.Write(context.Background(), res))

	regenerated, err := os.ReadFile(readmePath)
	require.NoError(t, err)
	text := string(regenerated)
	assert.Contains(t, text, "<!-- PROTECTED: notes -->\nThe loader must run before any worker starts.\n<!-- /PROTECTED -->")
	assert.Contains(t, text, "<!-- PROTECTED -->\nOwned by the platform team.\n<!-- /PROTECTED -->")
	assert.Equal(t, 1, strings.Count(text, "<!-- PROTECTED: notes -->"))
	assert.Contains(t, text, "# System Overview - Call Chain Analysis")
}

func TestMarkdownSink_OverwritesWithoutPreserve(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()
	readmePath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readmePath, []byte("<!-- PROTECTED -->\nmine\n<!-- /PROTECTED -->\n"), 0644))

	require.NoError(t, (&MarkdownSink{Dir: dir}).Write(context.Background(), res))

	readme, err := os.ReadFile(readmePath)
	require.NoError(t, err)
	assert.NotContains(t, string(readme), "mine")
}

func TestMarkdownSink_UnclosedRegion(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Old\n<!-- PROTECTED: notes -->\nhalf\n"), 0644))

	err := (&MarkdownSink{Dir: dir, PreserveEdits: true}).Write(context.Background(), res)
	assert.ErrorIs(t, err, ErrUnclosedRegion)
}

func TestMergeProtected(t *testing.T) {
	tests := []struct {
		name      string
		generated string
		existing  string
		want      string
	}{
		{
			name:      "no regions",
			generated: "# New\n",
			existing:  "# Old\n",
			want:      "# New\n",
		},
		{
			name:      "labeled region replaced in place",
			generated: "# New\n<!-- PROTECTED: a -->\n<!-- /PROTECTED -->\ntail\n",
			existing:  "# Old\n<!--PROTECTED: a-->\nkept\n<!-- /PROTECTED -->\n",
			want:      "# New\n<!-- PROTECTED: a -->\nkept\n<!-- /PROTECTED -->\ntail\n",
		},
		{
			name:      "missing marker appended",
			generated: "# New\n",
			existing:  "<!-- PROTECTED: gone -->\nx\n<!-- /PROTECTED -->",
			want:      "# New\n\n<!-- PROTECTED: gone -->\nx\n<!-- /PROTECTED -->\n",
		},
		{
			name:      "unlabeled regions keep their order",
			generated: "# New\n",
			existing:  "<!-- PROTECTED -->\none\n<!-- /PROTECTED -->\n<!-- PROTECTED -->\ntwo\n<!-- /PROTECTED -->\n",
			want:      "# New\n\n<!-- PROTECTED -->\none\n<!-- /PROTECTED -->\n\n<!-- PROTECTED -->\ntwo\n<!-- /PROTECTED -->\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeProtected(tt.generated, tt.existing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
