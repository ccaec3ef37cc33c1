package kg

import (
	"math"
	"sort"
)

// CentralityKind selects the centrality algorithm.
type CentralityKind string

const (
	CentralityDegree      CentralityKind = "degree"
	CentralityBetweenness CentralityKind = "betweenness"
	CentralityCloseness   CentralityKind = "closeness"
	CentralityEigenvector CentralityKind = "eigenvector"
)

// FindPaths returns all simple paths from source to target with at most
// maxLength edges. Absent nodes or no path yield an empty result, never an
// error.
func (g *Graph) FindPaths(sourceID, targetID string, maxLength int) [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.entities[sourceID]; !ok {
		return nil
	}
	if _, ok := g.entities[targetID]; !ok {
		return nil
	}
	if maxLength <= 0 {
		maxLength = 3
	}

	var paths [][]string
	visited := map[string]bool{sourceID: true}
	path := []string{sourceID}

	var dfs func(node string)
	dfs = func(node string) {
		if node == targetID {
			cp := make([]string, len(path))
			copy(cp, path)
			paths = append(paths, cp)
			return
		}
		if len(path)-1 >= maxLength {
			return
		}
		for _, next := range g.successorsLocked(node) {
			if visited[next] {
				continue
			}
			visited[next] = true
			path = append(path, next)
			dfs(next)
			path = path[:len(path)-1]
			visited[next] = false
		}
	}
	dfs(sourceID)
	return paths
}

// Centrality computes per-entity centrality scores. Eigenvector centrality
// may fail to converge; that returns an empty map rather than an error.
func (g *Graph) Centrality(kind CentralityKind) map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch kind {
	case CentralityDegree:
		return g.degreeCentralityLocked()
	case CentralityBetweenness:
		return g.betweennessCentralityLocked()
	case CentralityCloseness:
		return g.closenessCentralityLocked()
	case CentralityEigenvector:
		return g.eigenvectorCentralityLocked(100, 1e-6)
	default:
		return map[string]float64{}
	}
}

func (g *Graph) degreeCentralityLocked() map[string]float64 {
	out := make(map[string]float64, len(g.entities))
	n := len(g.entities)
	if n <= 1 {
		for id := range g.entities {
			out[id] = 0
		}
		return out
	}
	norm := float64(n - 1)
	for id := range g.entities {
		out[id] = float64(len(g.outgoing[id])+len(g.incoming[id])) / norm
	}
	return out
}

// betweennessCentralityLocked implements Brandes' algorithm over the
// directed, unweighted graph.
func (g *Graph) betweennessCentralityLocked() map[string]float64 {
	out := make(map[string]float64, len(g.entities))
	nodes := g.sortedEntityIDsLocked()
	for _, id := range nodes {
		out[id] = 0
	}

	for _, s := range nodes {
		// Single-source shortest paths.
		var stack []string
		preds := make(map[string][]string)
		sigma := map[string]float64{s: 1}
		dist := map[string]int{s: 0}
		queue := []string{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.successorsLocked(v) {
				if _, seen := dist[w]; !seen {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		// Accumulation.
		delta := make(map[string]float64)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				out[w] += delta[w]
			}
		}
	}

	// Normalize to [0,1] for directed graphs.
	n := float64(len(nodes))
	if n > 2 {
		scale := 1.0 / ((n - 1) * (n - 2))
		for id := range out {
			out[id] *= scale
		}
	}
	return out
}

func (g *Graph) closenessCentralityLocked() map[string]float64 {
	out := make(map[string]float64, len(g.entities))
	nodes := g.sortedEntityIDsLocked()
	n := len(nodes)

	for _, s := range nodes {
		dist := map[string]int{s: 0}
		queue := []string{s}
		total := 0
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range g.successorsLocked(v) {
				if _, seen := dist[w]; !seen {
					dist[w] = dist[v] + 1
					total += dist[w]
					queue = append(queue, w)
				}
			}
		}

		reachable := len(dist) - 1
		if reachable == 0 || total == 0 {
			out[s] = 0
			continue
		}
		// Wasserman-Faust scaling for disconnected graphs.
		closeness := float64(reachable) / float64(total)
		if n > 1 {
			closeness *= float64(reachable) / float64(n-1)
		}
		out[s] = closeness
	}
	return out
}

func (g *Graph) eigenvectorCentralityLocked(maxIter int, tol float64) map[string]float64 {
	nodes := g.sortedEntityIDsLocked()
	n := len(nodes)
	if n == 0 {
		return map[string]float64{}
	}

	x := make(map[string]float64, n)
	for _, id := range nodes {
		x[id] = 1.0 / float64(n)
	}

	for iter := 0; iter < maxIter; iter++ {
		next := make(map[string]float64, n)
		for _, v := range nodes {
			for _, w := range g.successorsLocked(v) {
				next[w] += x[v]
			}
		}

		norm := 0.0
		for _, val := range next {
			norm += val * val
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			// No mass flowing anywhere; centrality undefined.
			return map[string]float64{}
		}
		diff := 0.0
		for _, id := range nodes {
			next[id] /= norm
			diff += math.Abs(next[id] - x[id])
		}
		x = next
		if diff < tol*float64(n) {
			return x
		}
	}

	// Did not converge.
	return map[string]float64{}
}

// DetectCommunities clusters entities via label propagation over the
// undirected view of the graph. Deterministic: nodes are visited in
// insertion order and ties resolve to the smallest label.
func (g *Graph) DetectCommunities() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := g.sortedEntityIDsLocked()
	labels := make(map[string]string, len(nodes))
	for _, id := range nodes {
		labels[id] = id
	}

	for iter := 0; iter < 50; iter++ {
		changed := false
		for _, id := range nodes {
			counts := make(map[string]int)
			for _, nb := range g.neighborsLocked(id) {
				counts[labels[nb]]++
			}
			if len(counts) == 0 {
				continue
			}
			best := labels[id]
			bestCount := 0
			candidates := make([]string, 0, len(counts))
			for l := range counts {
				candidates = append(candidates, l)
			}
			sort.Strings(candidates)
			for _, l := range candidates {
				if counts[l] > bestCount {
					best = l
					bestCount = counts[l]
				}
			}
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	groups := make(map[string][]string)
	for _, id := range nodes {
		groups[labels[id]] = append(groups[labels[id]], id)
	}

	labelKeys := make([]string, 0, len(groups))
	for l := range groups {
		labelKeys = append(labelKeys, l)
	}
	sort.Strings(labelKeys)

	out := make([][]string, 0, len(groups))
	for _, l := range labelKeys {
		out = append(out, groups[l])
	}
	return out
}

func (g *Graph) successorsLocked(id string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, rid := range g.outgoing[id] {
		if r, ok := g.relationships[rid]; ok && !seen[r.TargetID] {
			seen[r.TargetID] = true
			out = append(out, r.TargetID)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Graph) neighborsLocked(id string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, rid := range g.outgoing[id] {
		if r, ok := g.relationships[rid]; ok && !seen[r.TargetID] && r.TargetID != id {
			seen[r.TargetID] = true
			out = append(out, r.TargetID)
		}
	}
	for _, rid := range g.incoming[id] {
		if r, ok := g.relationships[rid]; ok && !seen[r.SourceID] && r.SourceID != id {
			seen[r.SourceID] = true
			out = append(out, r.SourceID)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Graph) weaklyConnectedComponentsLocked() int {
	visited := make(map[string]bool)
	components := 0
	for _, id := range g.entityOrder {
		if visited[id] {
			continue
		}
		components++
		queue := []string{id}
		visited[id] = true
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, nb := range g.neighborsLocked(v) {
				if !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
	}
	return components
}
