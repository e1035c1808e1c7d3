package callgraph

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Builder turns normalized front-end records into a CallGraph
type Builder struct {
	extractors *ExtractorRegistry
}

// NewBuilder creates a builder using the given extractors.
// A nil registry means DefaultExtractors.
func NewBuilder(extractors *ExtractorRegistry) *Builder {
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	return &Builder{extractors: extractors}
}

// Build collects nodes from every file, extracts call edges line by line
// and indexes the result. Malformed records are skipped, never fatal.
func (b *Builder) Build(files []SourceFile) *CallGraph {
	g := NewCallGraph()

	for i := range files {
		b.collectNodes(g, &files[i])
	}

	for i := range files {
		b.extractEdges(g, &files[i])
	}

	g.Index()

	log.Debug().
		Int("files", len(files)).
		Int("methods", g.Len()).
		Int("calls", len(g.Edges())).
		Int("cycles", len(g.Cycles())).
		Msg("built call graph")

	return g
}

type pendingUnit struct {
	unit      *Unit
	enclosing string
}

// collectNodes flattens the unit tree of one file in document order
// using an explicit stack.
func (b *Builder) collectNodes(g *CallGraph, file *SourceFile) {
	stack := make([]pendingUnit, 0, len(file.Units))
	for i := len(file.Units) - 1; i >= 0; i-- {
		stack = append(stack, pendingUnit{unit: &file.Units[i]})
	}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		u := item.unit

		childEnclosing := item.enclosing
		switch u.Kind {
		case UnitType:
			childEnclosing = u.Name
		case UnitModule:
		default:
			if node := newNode(file.Path, u, item.enclosing); node != nil {
				g.AddNode(node)
			}
		}

		for i := len(u.Children) - 1; i >= 0; i-- {
			stack = append(stack, pendingUnit{unit: &u.Children[i], enclosing: childEnclosing})
		}
	}
}

func newNode(path string, u *Unit, enclosing string) *CallNode {
	if u.Name == "" {
		return nil
	}
	if u.StartLine < 1 || u.EndLine < u.StartLine {
		log.Warn().
			Str("file", path).
			Str("name", u.Name).
			Int("start", u.StartLine).
			Int("end", u.EndLine).
			Msg("skipping unit with invalid line range")
		return nil
	}

	className := u.ClassName
	if className == "" {
		className = enclosing
	}
	namespace := u.Namespace
	if namespace == "" {
		namespace = namespaceFor(path)
	}

	return &CallNode{
		Signature: MethodSignature{
			FilePath:     path,
			MethodName:   u.Name,
			ClassName:    className,
			Namespace:    namespace,
			RawSignature: u.Signature,
		},
		Visibility: u.Visibility,
		Doc:        u.Doc,
		StartLine:  u.StartLine,
		EndLine:    u.EndLine,
		IsAsync:    u.Async || strings.Contains(u.Signature, "async"),
		Complexity: complexity(u.StartLine, u.EndLine, u.Signature),
	}
}

// namespaceFor returns the name of the directory containing path
func namespaceFor(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return filepath.Base(dir)
}

// complexity is the line span plus the parameter count estimated from commas
func complexity(start, end int, signature string) int {
	return (end - start) + strings.Count(signature, ",") + 1
}

func (b *Builder) extractEdges(g *CallGraph, file *SourceFile) {
	ext, ok := b.extractors.Get(file.Language)
	if !ok {
		log.Debug().Str("file", file.Path).Str("language", file.Language).Msg("no call extractor for language")
		return
	}
	if file.Source == "" {
		return
	}

	for i, line := range strings.Split(file.Source, "\n") {
		lineNo := i + 1
		if ext.IsComment(line) {
			continue
		}

		caller := g.EnclosingNode(file.Path, lineNo)
		if caller == nil {
			continue
		}

		names := ext.Calls(line)
		if len(names) == 0 {
			continue
		}
		kind := ext.Kind(line)

		for _, name := range names {
			// the declaration line names the caller itself
			if lineNo == caller.StartLine && name == caller.Signature.MethodName {
				continue
			}
			callee, ok := g.Resolve(name)
			if !ok {
				continue
			}
			g.AddEdge(CallEdge{
				Caller:       caller.Signature,
				Callee:       callee,
				CallSiteLine: lineNo,
				CallKind:     kind,
			})
		}
	}
}
