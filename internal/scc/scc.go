// Package scc finds strongly connected components with Tarjan's algorithm.
//
// It is shared by the graph's stuck-pass diagnosis and the compiler's static
// link analysis. Both need the same answer: which processors feed each other.
package scc

// Graph is an adjacency list keyed by node.
//
// Nodes only reachable as successors need no key of their own.
type Graph[T comparable] map[T][]T

// Components returns the strongly connected components of g.
//
// order fixes the visit order so results are reproducible; nodes of g missing
// from order are never visited as roots. Components come out in reverse
// topological order, each listing its members in stack-pop order.
func Components[T comparable](g Graph[T], order []T) [][]T {
	var (
		index   = 0
		stack   []T
		indices = make(map[T]int)
		lowlink = make(map[T]int)
		onStack = make(map[T]bool)
		sccs    [][]T
	)

	var strongConnect func(T)
	strongConnect = func(v T) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component: pop it.
		if lowlink[v] == indices[v] {
			var scc []T
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// Cycles returns only the components that form a cycle: more than one
// member, or a single member with a self loop.
func Cycles[T comparable](g Graph[T], order []T) [][]T {
	var out [][]T
	for _, c := range Components(g, order) {
		if len(c) > 1 || HasSelfLoop(g, c[0]) {
			out = append(out, c)
		}
	}
	return out
}

// HasSelfLoop reports whether node has an edge to itself.
func HasSelfLoop[T comparable](g Graph[T], node T) bool {
	for _, n := range g[node] {
		if n == node {
			return true
		}
	}
	return false
}

// Path walks a cycle through the members of scc, starting and ending at
// scc[0]. A self loop yields [n, n].
func Path[T comparable](g Graph[T], scc []T) []T {
	if len(scc) == 0 {
		return nil
	}
	members := make(map[T]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []T{current}
	visited := make(map[T]bool)
	for {
		visited[current] = true

		var next T
		found := false
		for _, n := range g[current] {
			if members[n] && (!visited[n] || n == start) {
				next, found = n, true
				break
			}
		}
		if !found {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
