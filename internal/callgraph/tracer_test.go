package callgraph

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepNames(chain CallChain) []string {
	names := make([]string, 0, len(chain.Steps))
	for _, s := range chain.Steps {
		names = append(names, s.Method.MethodName)
	}
	return names
}

// linearFile holds a -> b -> c -> d -> e
func linearFile() SourceFile {
	return SourceFile{
		Path:     "pkg/linear.go",
		Language: "go",
		Source: source(
			"func a() {", "	b()", "}",
			"func b() {", "	c()", "}",
			"func c() {", "	d()", "}",
			"func d() {", "	e()", "}",
			"func e() {", "}",
		),
		Units: []Unit{
			fn("a", 1, 3, "func a()"),
			fn("b", 4, 6, "func b()"),
			fn("c", 7, 9, "func c()"),
			fn("d", 10, 12, "func d()"),
			fn("e", 13, 14, "func e()"),
		},
	}
}

func TestNewTracer_InvalidDepth(t *testing.T) {
	for _, depth := range []int{0, -1} {
		_, err := NewTracer(depth, TraceTree)
		assert.True(t, errors.Is(err, ErrInvalidDepth), "depth %d", depth)
	}
}

func TestTrace_Scenario(t *testing.T) {
	files := scenarioFiles()
	g := NewBuilder(nil).Build(files)
	entries := NewEntryPointDetector(NewSourceCache(files)).Detect(g)

	tracer, err := NewTracer(3, TraceTree)
	require.NoError(t, err)
	chains := tracer.Trace(g, entries)

	require.Len(t, chains, 1)
	chain := chains[0]
	assert.Equal(t, []string{"main", "load", "run", "process"}, stepNames(chain))
	assert.Equal(t, []int{0, 1, 1, 2}, []int{chain.Steps[0].Depth, chain.Steps[1].Depth, chain.Steps[2].Depth, chain.Steps[3].Depth})
	assert.Equal(t, []string{"cmd/app/main.go", "internal/app/loader.go", "internal/app/runner.go"}, chain.InvolvedFiles)
	assert.False(t, chain.HasCycles)

	assert.Equal(t, 0, chain.Steps[0].CallSiteLine)
	assert.Equal(t, 5, chain.Steps[2].CallSiteLine)
	assert.Len(t, chain.Steps[0].Callees, 2)
}

func TestTrace_DepthBound(t *testing.T) {
	g := NewBuilder(nil).Build([]SourceFile{linearFile()})
	entries := NewEntryPointDetector(nil).Detect(g)
	require.Len(t, entries, 1)

	for _, mode := range []TraceMode{TraceTree, TracePaths} {
		for k := 1; k <= 5; k++ {
			tracer, err := NewTracer(k, mode)
			require.NoError(t, err)

			chains := tracer.Trace(g, entries)
			require.NotEmpty(t, chains)
			for _, chain := range chains {
				for _, step := range chain.Steps {
					assert.LessOrEqual(t, step.Depth, k, "mode %s depth %d", mode, k)
				}
			}
			wantSteps := k + 1
			if wantSteps > 5 {
				wantSteps = 5
			}
			assert.Len(t, chains[0].Steps, wantSteps, "mode %s depth %d", mode, k)
		}
	}
}

func TestTrace_CycleIsMarked(t *testing.T) {
	g := NewBuilder(nil).Build([]SourceFile{cycleFile()})
	a := findNode(g, "a")
	entry := EntryPoint{Signature: a.Signature, Type: EntryUnknown, Confidence: 0.5}

	tracer, err := NewTracer(10, TraceTree)
	require.NoError(t, err)
	chains := tracer.Trace(g, []EntryPoint{entry})

	require.Len(t, chains, 1)
	assert.True(t, chains[0].HasCycles)
	assert.Equal(t, []string{"a", "b", "c"}, stepNames(chains[0]))
}

func TestTrace_LeafEntryYieldsSingleStep(t *testing.T) {
	g := NewBuilder(nil).Build(scenarioFiles())
	process := findNode(g, "process")

	tracer, err := NewTracer(6, TraceTree)
	require.NoError(t, err)
	chains := tracer.Trace(g, []EntryPoint{{Signature: process.Signature, Confidence: 0.5}})

	require.Len(t, chains, 1)
	assert.Len(t, chains[0].Steps, 1)
	assert.Empty(t, chains[0].Steps[0].Callees)
}

func TestTrace_PathsModeSplitsBranches(t *testing.T) {
	files := scenarioFiles()
	g := NewBuilder(nil).Build(files)
	entries := NewEntryPointDetector(nil).Detect(g)

	tracer, err := NewTracer(3, TracePaths)
	require.NoError(t, err)
	chains := tracer.Trace(g, entries)

	require.Len(t, chains, 2)
	assert.Equal(t, []string{"main", "load"}, stepNames(chains[0]))
	assert.Equal(t, []string{"main", "run", "process"}, stepNames(chains[1]))
	assert.Equal(t, []string{"cmd/app/main.go", "internal/app/loader.go"}, chains[0].InvolvedFiles)
}

func TestTrace_ComplexityGrowsWithPath(t *testing.T) {
	g := NewBuilder(nil).Build([]SourceFile{linearFile()})
	entries := NewEntryPointDetector(nil).Detect(g)

	previous := 0
	for k := 1; k <= 4; k++ {
		tracer, err := NewTracer(k, TraceTree)
		require.NoError(t, err)
		chain := tracer.Trace(g, entries)[0]
		assert.Greater(t, chain.TotalComplexity, previous)
		previous = chain.TotalComplexity
	}
}

func TestParseTraceMode(t *testing.T) {
	mode, err := ParseTraceMode("")
	require.NoError(t, err)
	assert.Equal(t, TraceTree, mode)

	mode, err = ParseTraceMode("paths")
	require.NoError(t, err)
	assert.Equal(t, TracePaths, mode)

	_, err = ParseTraceMode("bfs")
	assert.Error(t, err)
}

// shortcutFile holds main -> a -> b -> c plus a direct main -> c, and c -> d
func shortcutFile() SourceFile {
	return SourceFile{
		Path:     "pkg/shortcut.go",
		Language: "go",
		Source: source(
			"func main() {", "	a()", "	c()", "}",
			"func a() {", "	b()", "}",
			"func b() {", "	c()", "}",
			"func c() {", "	d()", "}",
			"func d() {", "}",
		),
		Units: []Unit{
			fn("main", 1, 4, "func main()"),
			fn("a", 5, 7, "func a()"),
			fn("b", 8, 10, "func b()"),
			fn("c", 11, 13, "func c()"),
			fn("d", 14, 15, "func d()"),
		},
	}
}

func TestTrace_TreeExpandsAtShallowestDepth(t *testing.T) {
	g := NewBuilder(nil).Build([]SourceFile{shortcutFile()})
	entry := EntryPoint{Signature: findNode(g, "main").Signature, Type: EntryMain, Confidence: 0.9}

	tracer, err := NewTracer(3, TraceTree)
	require.NoError(t, err)
	chains := tracer.Trace(g, []EntryPoint{entry})

	require.Len(t, chains, 1)
	chain := chains[0]
	assert.Equal(t, []string{"main", "a", "b", "c", "d"}, stepNames(chain))

	depths := make(map[string]int)
	for _, step := range chain.Steps {
		depths[step.Method.MethodName] = step.Depth
	}
	assert.Equal(t, map[string]int{"main": 0, "a": 1, "b": 2, "c": 1, "d": 2}, depths)
	assert.Equal(t, 3, chain.Steps[3].CallSiteLine, "c is reached from main's call site")
	assert.False(t, chain.HasCycles)
}

// denseFile has n functions where each calls every later one, giving
// 2^(n-2) root-to-leaf paths from the first
func denseFile(n int) SourceFile {
	var lines []string
	var units []Unit
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f%d", i)
		start := len(lines) + 1
		lines = append(lines, "func "+name+"() {")
		for j := i + 1; j < n; j++ {
			lines = append(lines, fmt.Sprintf("	f%d()", j))
		}
		lines = append(lines, "}")
		units = append(units, fn(name, start, len(lines), "func "+name+"()"))
	}
	return SourceFile{Path: "pkg/dense.go", Language: "go", Source: source(lines...), Units: units}
}

func TestTrace_PathsStopsAtLimit(t *testing.T) {
	g := NewBuilder(nil).Build([]SourceFile{denseFile(26)})
	entry := EntryPoint{Signature: findNode(g, "f0").Signature, Confidence: 0.5}

	tracer, err := NewTracer(25, TracePaths)
	require.NoError(t, err)

	done := make(chan []CallChain, 1)
	go func() { done <- tracer.Trace(g, []EntryPoint{entry}) }()

	select {
	case chains := <-done:
		assert.Len(t, chains, maxPathsPerEntry)
		for _, chain := range chains {
			assert.Equal(t, "f0", chain.Steps[0].Method.MethodName)
			assert.Equal(t, "f25", chain.Steps[len(chain.Steps)-1].Method.MethodName)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("path enumeration kept walking past the chain limit")
	}
}
