package models

// WouldCycle reports whether adding the edge from -> dependsOn to edges
// would create a cycle in the epic dependency graph. A self-edge always cycles.
func WouldCycle(edges []EpicDependency, from, dependsOn string) bool {
	if from == dependsOn {
		return true
	}

	adj := make(map[string][]string, len(edges))
	for _, e := range edges {
		adj[e.EpicID] = append(adj[e.EpicID], e.DependsOnID)
	}

	// The new edge cycles iff dependsOn already reaches from.
	seen := map[string]bool{dependsOn: true}
	stack := []string{dependsOn}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[n] {
			if next == from {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// HasEdge reports whether edges already contain from -> dependsOn.
func HasEdge(edges []EpicDependency, from, dependsOn string) bool {
	for _, e := range edges {
		if e.EpicID == from && e.DependsOnID == dependsOn {
			return true
		}
	}
	return false
}
