package callgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// ErrInvalidDepth is returned when the maximum trace depth is not positive
var ErrInvalidDepth = errors.New("max depth must be a positive integer")

// TraceMode selects how divergent branches are represented
type TraceMode string

const (
	// TraceTree emits one chain per entry point holding the pre-order
	// expansion of every reachable branch
	TraceTree TraceMode = "tree"
	// TracePaths emits one chain per root-to-leaf path
	TracePaths TraceMode = "paths"
)

// maxPathsPerEntry bounds path enumeration in TracePaths mode
const maxPathsPerEntry = 1000

// ParseTraceMode parses a mode name; empty means TraceTree
func ParseTraceMode(s string) (TraceMode, error) {
	switch TraceMode(s) {
	case "", TraceTree:
		return TraceTree, nil
	case TracePaths:
		return TracePaths, nil
	}
	return "", fmt.Errorf("unknown trace mode %q (want tree or paths)", s)
}

// Tracer walks the call graph from entry points up to a bounded depth
type Tracer struct {
	maxDepth int
	mode     TraceMode
}

// NewTracer creates a tracer
func NewTracer(maxDepth int, mode TraceMode) (*Tracer, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, maxDepth)
	}
	if mode == "" {
		mode = TraceTree
	}
	return &Tracer{maxDepth: maxDepth, mode: mode}, nil
}

// MaxDepth returns the configured depth bound
func (t *Tracer) MaxDepth() int {
	return t.maxDepth
}

// Trace produces the call chains for every entry point, in entry order
func (t *Tracer) Trace(g *CallGraph, entries []EntryPoint) []CallChain {
	var chains []CallChain
	for _, ep := range entries {
		if g.Node(ep.Signature) == nil {
			continue
		}
		switch t.mode {
		case TracePaths:
			chains = append(chains, t.tracePaths(g, ep)...)
		default:
			chains = append(chains, t.traceTree(g, ep))
		}
	}

	log.Debug().
		Int("entry_points", len(entries)).
		Int("chains", len(chains)).
		Str("mode", string(t.mode)).
		Msg("traced call chains")

	return chains
}

func (t *Tracer) traceTree(g *CallGraph, ep EntryPoint) CallChain {
	chain := CallChain{EntryPoint: ep}
	shallowest := t.shallowestDepths(g, ep.Signature)
	seen := make(map[MethodSignature]bool)
	onPath := make(map[MethodSignature]bool)

	// Each node is emitted once, at the shallowest depth it is reachable
	// from the entry point, so a branch reached late but shallow still gets
	// its full remaining depth.
	var visit func(sig MethodSignature, depth, line int, kind CallKind)
	visit = func(sig MethodSignature, depth, line int, kind CallKind) {
		seen[sig] = true
		onPath[sig] = true
		defer delete(onPath, sig)

		callees := g.Callees(sig)
		chain.Steps = append(chain.Steps, newStep(sig, depth, line, kind, callees))
		if depth >= t.maxDepth {
			return
		}

		for _, callee := range callees {
			if onPath[callee] {
				chain.HasCycles = true
				continue
			}
			if seen[callee] || shallowest[callee] != depth+1 {
				continue
			}
			edge, _ := g.EdgeBetween(sig, callee)
			visit(callee, depth+1, edge.CallSiteLine, edge.CallKind)
		}
	}

	visit(ep.Signature, 0, 0, CallDirect)
	finishChain(g, &chain)
	return chain
}

// shallowestDepths is the breadth-first distance of every node within
// maxDepth of root
func (t *Tracer) shallowestDepths(g *CallGraph, root MethodSignature) map[MethodSignature]int {
	depths := map[MethodSignature]int{root: 0}
	frontier := []MethodSignature{root}
	for depth := 0; depth < t.maxDepth && len(frontier) > 0; depth++ {
		var next []MethodSignature
		for _, sig := range frontier {
			for _, callee := range g.Callees(sig) {
				if _, ok := depths[callee]; ok {
					continue
				}
				depths[callee] = depth + 1
				next = append(next, callee)
			}
		}
		frontier = next
	}
	return depths
}

func (t *Tracer) tracePaths(g *CallGraph, ep EntryPoint) []CallChain {
	var chains []CallChain
	onPath := make(map[MethodSignature]bool)
	truncated := false

	emit := func(path []CallStep, cyclic bool) {
		if len(chains) >= maxPathsPerEntry {
			truncated = true
			return
		}
		chain := CallChain{
			EntryPoint: ep,
			Steps:      append([]CallStep(nil), path...),
			HasCycles:  cyclic,
		}
		finishChain(g, &chain)
		chains = append(chains, chain)
	}

	// Every walk yields at least one chain, so once the cap is reached any
	// further walk means paths are being dropped.
	var walk func(path []CallStep)
	walk = func(path []CallStep) {
		if len(chains) >= maxPathsPerEntry {
			truncated = true
			return
		}
		current := path[len(path)-1]
		onPath[current.Method] = true
		defer delete(onPath, current.Method)

		expanded, cyclic := false, false
		if current.Depth < t.maxDepth {
			for _, callee := range current.Callees {
				if onPath[callee] {
					cyclic = true
					continue
				}
				expanded = true
				edge, _ := g.EdgeBetween(current.Method, callee)
				step := newStep(callee, current.Depth+1, edge.CallSiteLine, edge.CallKind, g.Callees(callee))
				walk(append(path, step))
				if truncated {
					return
				}
			}
		}

		if !expanded || cyclic {
			emit(path, cyclic)
		}
	}

	walk([]CallStep{newStep(ep.Signature, 0, 0, CallDirect, g.Callees(ep.Signature))})

	if truncated {
		log.Warn().
			Str("entry_point", ep.Signature.String()).
			Int("limit", maxPathsPerEntry).
			Msg("path enumeration truncated")
	}
	return chains
}

func newStep(sig MethodSignature, depth, line int, kind CallKind, callees []MethodSignature) CallStep {
	return CallStep{
		Method:       sig,
		Depth:        depth,
		CallSiteLine: line,
		CallKind:     kind,
		Callees:      append(make([]MethodSignature, 0, len(callees)), callees...),
	}
}

// finishChain fills the derived file set and complexity of a chain
func finishChain(g *CallGraph, chain *CallChain) {
	files := make(map[string]bool)
	total := 0
	for _, step := range chain.Steps {
		files[step.Method.FilePath] = true
		if n := g.Node(step.Method); n != nil {
			total += n.Complexity
		}
	}

	chain.InvolvedFiles = make([]string, 0, len(files))
	for f := range files {
		chain.InvolvedFiles = append(chain.InvolvedFiles, f)
	}
	sort.Strings(chain.InvolvedFiles)
	chain.TotalComplexity = total + len(chain.Steps)
}
