package dag

// Batches groups the nodes into topological layers with Kahn's algorithm:
// each batch holds every node whose dependencies all sit in earlier batches,
// in insertion order. On a cyclic graph it returns the *CycleError found by
// DetectCycles.
func (g *Graph) Batches() ([][]string, error) {
	order, err := g.layers()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(order))
	for k, layer := range order {
		out[k] = g.names(layer)
	}
	return out, nil
}

func (g *Graph) layers() ([][]int, error) {
	inDegree := make([]int, len(g.ids))
	var ready []int
	for i := range g.ids {
		inDegree[i] = len(g.deps[i])
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	var layers [][]int
	placed := 0
	for len(ready) > 0 {
		layers = append(layers, ready)
		placed += len(ready)

		unlocked := make([]bool, len(g.ids))
		for _, i := range ready {
			for _, next := range g.dependents[i] {
				inDegree[next]--
				if inDegree[next] == 0 {
					unlocked[next] = true
				}
			}
		}
		ready = nil
		for i, ok := range unlocked {
			if ok {
				ready = append(ready, i)
			}
		}
	}

	if placed != len(g.ids) {
		return nil, g.DetectCycles()
	}
	return layers, nil
}

// LongestPath returns the chain of nodes with the greatest total weight and
// that total. Among equal predecessors the earliest declared one wins, and
// among equal chains the one ending first in topological order.
func (g *Graph) LongestPath(weight func(id string) float64) ([]string, float64, error) {
	layers, err := g.layers()
	if err != nil {
		return nil, 0, err
	}

	best := make([]float64, len(g.ids))
	prev := make([]int, len(g.ids))
	end := -1
	for _, layer := range layers {
		for _, i := range layer {
			prev[i] = -1
			for _, d := range g.deps[i] {
				if prev[i] == -1 || best[d] > best[prev[i]] {
					prev[i] = d
				}
			}
			if prev[i] >= 0 {
				best[i] = best[prev[i]]
			}
			best[i] += weight(g.ids[i])
			if end == -1 || best[i] > best[end] {
				end = i
			}
		}
	}
	if end == -1 {
		return []string{}, 0, nil
	}

	var path []string
	for i := end; i >= 0; i = prev[i] {
		path = append(path, g.ids[i])
	}
	for a, b := 0, len(path)-1; a < b; a, b = a+1, b-1 {
		path[a], path[b] = path[b], path[a]
	}
	return path, best[end], nil
}
