package callgraph

// CallGraph is a directed graph of methods and the calls between them.
// Nodes are kept in insertion order so every traversal is deterministic.
type CallGraph struct {
	nodes   map[MethodSignature]*CallNode
	order   []MethodSignature
	byName  map[string][]MethodSignature
	byFile  map[string][]MethodSignature
	edges   []CallEdge
	forward map[MethodSignature][]MethodSignature
	reverse map[MethodSignature][]MethodSignature
	cycles  [][]MethodSignature
}

// NewCallGraph creates an empty graph
func NewCallGraph() *CallGraph {
	return &CallGraph{
		nodes:   make(map[MethodSignature]*CallNode),
		byName:  make(map[string][]MethodSignature),
		byFile:  make(map[string][]MethodSignature),
		forward: make(map[MethodSignature][]MethodSignature),
		reverse: make(map[MethodSignature][]MethodSignature),
	}
}

// AddNode inserts a node. Re-inserting an existing signature replaces the
// node in place and keeps its original position.
func (g *CallGraph) AddNode(node *CallNode) {
	sig := node.Signature
	if _, exists := g.nodes[sig]; !exists {
		g.order = append(g.order, sig)
		g.byName[sig.MethodName] = append(g.byName[sig.MethodName], sig)
		g.byFile[sig.FilePath] = append(g.byFile[sig.FilePath], sig)
	}
	g.nodes[sig] = node
}

// AddEdge records a call. Self-loops and edges whose endpoints are not
// nodes of the graph are ignored; the return value reports whether the
// edge was kept.
func (g *CallGraph) AddEdge(edge CallEdge) bool {
	if edge.Caller == edge.Callee {
		return false
	}
	if g.nodes[edge.Caller] == nil || g.nodes[edge.Callee] == nil {
		return false
	}
	g.edges = append(g.edges, edge)
	return true
}

// Node returns the node for sig, or nil
func (g *CallGraph) Node(sig MethodSignature) *CallNode {
	return g.nodes[sig]
}

// Nodes returns all nodes in insertion order
func (g *CallGraph) Nodes() []*CallNode {
	out := make([]*CallNode, 0, len(g.order))
	for _, sig := range g.order {
		out = append(out, g.nodes[sig])
	}
	return out
}

// Len returns the number of nodes
func (g *CallGraph) Len() int {
	return len(g.order)
}

// Edges returns all edges in discovery order
func (g *CallGraph) Edges() []CallEdge {
	return g.edges
}

// Callees returns the distinct methods called by sig
func (g *CallGraph) Callees(sig MethodSignature) []MethodSignature {
	return g.forward[sig]
}

// Callers returns the distinct methods calling sig
func (g *CallGraph) Callers(sig MethodSignature) []MethodSignature {
	return g.reverse[sig]
}

// InDegree is the number of distinct callers
func (g *CallGraph) InDegree(sig MethodSignature) int {
	return len(g.reverse[sig])
}

// OutDegree is the number of distinct callees
func (g *CallGraph) OutDegree(sig MethodSignature) int {
	return len(g.forward[sig])
}

// Cycles returns the cycles found during the last Index
func (g *CallGraph) Cycles() [][]MethodSignature {
	return g.cycles
}

// EdgeBetween returns the first recorded edge from caller to callee
func (g *CallGraph) EdgeBetween(caller, callee MethodSignature) (CallEdge, bool) {
	for _, e := range g.edges {
		if e.Caller == caller && e.Callee == callee {
			return e, true
		}
	}
	return CallEdge{}, false
}

// Resolve returns the first node, in insertion order, named name.
// This is a best-effort lookup: overloads and same-named methods on
// different types all resolve to the earliest declaration.
func (g *CallGraph) Resolve(name string) (MethodSignature, bool) {
	candidates := g.byName[name]
	if len(candidates) == 0 {
		return MethodSignature{}, false
	}
	return candidates[0], true
}

// NodesInFile returns the nodes declared in path, in insertion order
func (g *CallGraph) NodesInFile(path string) []*CallNode {
	sigs := g.byFile[path]
	out := make([]*CallNode, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, g.nodes[sig])
	}
	return out
}

// EnclosingNode returns the innermost node of path whose range contains
// line. Ties go to the earliest inserted node.
func (g *CallGraph) EnclosingNode(path string, line int) *CallNode {
	var best *CallNode
	for _, sig := range g.byFile[path] {
		n := g.nodes[sig]
		if !n.Contains(line) {
			continue
		}
		if best == nil || n.EndLine-n.StartLine < best.EndLine-best.StartLine {
			best = n
		}
	}
	return best
}

// EntryCandidates returns nodes nobody calls that call something,
// in insertion order
func (g *CallGraph) EntryCandidates() []*CallNode {
	var out []*CallNode
	for _, sig := range g.order {
		if g.InDegree(sig) == 0 && g.OutDegree(sig) > 0 {
			out = append(out, g.nodes[sig])
		}
	}
	return out
}

// Index rebuilds forward and reverse adjacency from the edge list and
// re-runs cycle detection. It must be called after the last AddEdge.
func (g *CallGraph) Index() {
	g.forward = make(map[MethodSignature][]MethodSignature)
	g.reverse = make(map[MethodSignature][]MethodSignature)

	type pair struct{ from, to MethodSignature }
	seen := make(map[pair]bool, len(g.edges))
	for _, e := range g.edges {
		p := pair{e.Caller, e.Callee}
		if seen[p] {
			continue
		}
		seen[p] = true
		g.forward[e.Caller] = append(g.forward[e.Caller], e.Callee)
		g.reverse[e.Callee] = append(g.reverse[e.Callee], e.Caller)
	}

	g.cycles = findCycles(g)
}

// Stats returns summary statistics for the graph
func (g *CallGraph) Stats() GraphStats {
	stats := GraphStats{
		TotalMethods: len(g.order),
		TotalCalls:   len(g.edges),
		EntryPoints:  len(g.EntryCandidates()),
		Cycles:       len(g.cycles),
	}
	for _, sig := range g.order {
		if d := g.InDegree(sig); d > stats.MaxInDegree {
			stats.MaxInDegree = d
		}
		if d := g.OutDegree(sig); d > stats.MaxOutDegree {
			stats.MaxOutDegree = d
		}
	}
	return stats
}
