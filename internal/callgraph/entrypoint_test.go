package callgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLines struct{}

func (failingLines) Lines(string) ([]string, error) {
	return nil, errors.New("permission denied")
}

func TestDetect_MainScenario(t *testing.T) {
	files := scenarioFiles()
	g := NewBuilder(nil).Build(files)

	entries := NewEntryPointDetector(NewSourceCache(files)).Detect(g)

	require.Len(t, entries, 1)
	assert.Equal(t, "main", entries[0].Signature.MethodName)
	assert.Equal(t, EntryMain, entries[0].Type)
	assert.GreaterOrEqual(t, entries[0].Confidence, 0.9)
}

func TestDetect_RouteAnnotation(t *testing.T) {
	files := []SourceFile{routeFile()}
	g := NewBuilder(nil).Build(files)

	entries := NewEntryPointDetector(NewSourceCache(files)).Detect(g)

	require.NotEmpty(t, entries)
	ep := entries[0]
	assert.Equal(t, "handleRequest", ep.Signature.MethodName)
	assert.Equal(t, EntryHTTPEndpoint, ep.Type)
	assert.GreaterOrEqual(t, ep.Confidence, 0.8)
	assert.Contains(t, ep.Rationale, "Has annotation: @app.route")

	structural := NewEntryPointDetector(nil).Detect(g)
	require.Len(t, structural, 1)
	assert.Less(t, structural[0].Confidence, ep.Confidence)
}

func TestDetect_UnreadableSourceKeepsStructuralEvidence(t *testing.T) {
	g := NewBuilder(nil).Build([]SourceFile{routeFile()})

	entries := NewEntryPointDetector(failingLines{}).Detect(g)

	require.Len(t, entries, 1)
	assert.Equal(t, EntryEventHandler, entries[0].Type)
	assert.InDelta(t, 0.8, entries[0].Confidence, 1e-9)
}

func TestDetect_AnnotationWithoutStructuralEvidence(t *testing.T) {
	file := SourceFile{
		Path:     "src/Jobs.java",
		Language: "java",
		Source: source(
			"public class Jobs {",
			"    @Scheduled(cron = \"0 0 * * *\")",
			"    public void nightly() {",
			"    }",
			"}",
		),
		Units: []Unit{
			{Name: "Jobs", Kind: UnitType, StartLine: 1, EndLine: 5, Children: []Unit{
				{Name: "nightly", Kind: UnitMethod, StartLine: 3, EndLine: 4, Visibility: "public", Signature: "public void nightly()"},
			}},
		},
	}
	g := NewBuilder(nil).Build([]SourceFile{file})

	entries := NewEntryPointDetector(NewSourceCache([]SourceFile{file})).Detect(g)

	require.Len(t, entries, 1)
	assert.Equal(t, EntryScheduledTask, entries[0].Type)
	assert.InDelta(t, 0.8, entries[0].Confidence, 1e-9)
	assert.Equal(t, "Jobs", entries[0].Signature.ClassName)
}

func TestDetect_IsolatedMainIsAlwaysIncluded(t *testing.T) {
	file := SourceFile{
		Path:     "main.go",
		Language: "go",
		Source:   source("func main() {", "}"),
		Units:    []Unit{fn("main", 1, 2, "func main()")},
	}
	g := NewBuilder(nil).Build([]SourceFile{file})

	entries := NewEntryPointDetector(nil).Detect(g)

	require.Len(t, entries, 1)
	assert.Equal(t, EntryMain, entries[0].Type)
}

func TestDetect_ConfidenceNonIncreasing(t *testing.T) {
	files := append(scenarioFiles(), routeFile(), cycleFile(), SourceFile{
		Path:     "lib/api.go",
		Language: "go",
		Source: source(
			"func TestThing() {",
			"	one()",
			"}",
			"func Exported() {",
			"	one()",
			"	two()",
			"	three()",
			"	four()",
			"}",
			"func one() {}",
			"func two() {}",
			"func three() {}",
			"func four() {}",
		),
		Units: []Unit{
			fn("TestThing", 1, 3, "func TestThing()"),
			{Name: "Exported", Kind: UnitFunction, StartLine: 4, EndLine: 9, Visibility: "exported", Signature: "func Exported()"},
			fn("one", 10, 10, "func one()"),
			fn("two", 11, 11, "func two()"),
			fn("three", 12, 12, "func three()"),
			fn("four", 13, 13, "func four()"),
		},
	})
	g := NewBuilder(nil).Build(files)

	entries := NewEntryPointDetector(NewSourceCache(files)).Detect(g)

	require.GreaterOrEqual(t, len(entries), 4)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].Confidence, entries[i].Confidence,
			"entries %d and %d out of order", i-1, i)
	}
}

func TestScoreStructural(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		visibility string
		wantType   EntryPointType
		wantConf   float64
	}{
		{name: "main", method: "main", wantType: EntryMain, wantConf: 0.9},
		{name: "handler", method: "OrderHandler", wantType: EntryEventHandler, wantConf: 0.8},
		{name: "on prefix", method: "onClick", wantType: EntryEventHandler, wantConf: 0.8},
		{name: "test", method: "test_parse", wantType: EntryTest, wantConf: 0.7},
		{name: "should", method: "it_should_work", wantType: EntryTest, wantConf: 0.7},
		{name: "public", method: "Serve", visibility: "pub", wantType: EntryPublicAPI, wantConf: 0.7},
		{name: "unknown", method: "compute", wantType: EntryUnknown, wantConf: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewCallGraph()
			node := &CallNode{
				Signature:  MethodSignature{FilePath: "x.go", MethodName: tt.method},
				Visibility: tt.visibility,
				StartLine:  1,
				EndLine:    2,
				Complexity: 2,
			}
			g.AddNode(node)

			ep := scoreStructural(g, node)

			assert.Equal(t, tt.wantType, ep.Type)
			assert.InDelta(t, tt.wantConf, ep.Confidence, 1e-9)
		})
	}
}

func TestScoreStructural_BonusesClamp(t *testing.T) {
	g := NewCallGraph()
	main := &CallNode{Signature: MethodSignature{FilePath: "m.go", MethodName: "main"}, StartLine: 1, EndLine: 40, Complexity: 40}
	g.AddNode(main)
	for _, name := range []string{"a", "b", "c", "d"} {
		callee := &CallNode{Signature: MethodSignature{FilePath: "m.go", MethodName: name}, StartLine: 50, EndLine: 51}
		g.AddNode(callee)
		g.AddEdge(CallEdge{Caller: main.Signature, Callee: callee.Signature, CallSiteLine: 2, CallKind: CallDirect})
	}
	g.Index()

	ep := scoreStructural(g, main)

	assert.Equal(t, 1.0, ep.Confidence)
	assert.Contains(t, ep.Rationale, "Calls 4 methods")
	assert.Contains(t, ep.Rationale, "Non-trivial complexity")
}

func TestClassifyMarker(t *testing.T) {
	tests := []struct {
		marker   string
		wantType EntryPointType
		wantConf float64
	}{
		{"@GetMapping", EntryHTTPEndpoint, 0.9},
		{"@router.post", EntryHTTPEndpoint, 0.9},
		{"app.get", EntryHTTPEndpoint, 0.9},
		{"@KafkaListener", EntryEventHandler, 0.8},
		{"@celery.task", EntryScheduledTask, 0.8},
		{"@Test", EntryTest, 0.7},
		{"@click.command", EntryCLICommand, 0.8},
		{"@Something", EntryUnknown, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.marker, func(t *testing.T) {
			gotType, gotConf := classifyMarker(tt.marker)
			assert.Equal(t, tt.wantType, gotType)
			assert.InDelta(t, tt.wantConf, gotConf, 1e-9)
		})
	}
}
