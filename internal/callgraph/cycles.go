package callgraph

// findCycles runs an iterative depth-first search over forward adjacency
// and records path[start:] every time a back edge reaches a node that is
// still on the recursion stack. Roots are visited in insertion order.
func findCycles(g *CallGraph) [][]MethodSignature {
	type frame struct {
		sig  MethodSignature
		next int
	}

	var cycles [][]MethodSignature
	visited := make(map[MethodSignature]bool, len(g.order))
	onStack := make(map[MethodSignature]int)

	for _, root := range g.order {
		if visited[root] {
			continue
		}

		visited[root] = true
		onStack[root] = 0
		path := []MethodSignature{root}
		stack := []frame{{sig: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			callees := g.forward[top.sig]

			if top.next >= len(callees) {
				delete(onStack, top.sig)
				path = path[:len(path)-1]
				stack = stack[:len(stack)-1]
				continue
			}

			callee := callees[top.next]
			top.next++

			if pos, ok := onStack[callee]; ok {
				cycle := make([]MethodSignature, len(path)-pos)
				copy(cycle, path[pos:])
				cycles = append(cycles, cycle)
				continue
			}
			if visited[callee] {
				continue
			}

			visited[callee] = true
			onStack[callee] = len(path)
			path = append(path, callee)
			stack = append(stack, frame{sig: callee})
		}
	}

	return cycles
}
