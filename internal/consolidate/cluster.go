package consolidate

import "github.com/atlasmemory/atlas/internal/storage"

// unionFind is a minimal disjoint-set structure over point indices.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}

// sharesKey reports whether a and b have at least one qntm key in common.
func sharesKey(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	for _, k := range b {
		if set[k] {
			return true
		}
	}
	return false
}

// clusterBySimilarity groups points into connected components where an
// edge exists between two points when their vectors' cosine similarity is
// at least threshold and they share at least one qntm key — the "nearest
// neighbors within the same QNTM collection" test. Singleton components
// (no redundancy found) are included; callers filter those out.
func clusterBySimilarity(points []storage.Point, threshold float64) [][]string {
	uf := newUnionFind(len(points))
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			if !sharesKey(payloadKeys(points[i].Payload), payloadKeys(points[j].Payload)) {
				continue
			}
			if CosineSimilarity(points[i].Vector, points[j].Vector) >= threshold {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]string)
	for i, p := range points {
		root := uf.find(i)
		groups[root] = append(groups[root], p.ID)
	}

	clusters := make([][]string, 0, len(groups))
	for _, ids := range groups {
		clusters = append(clusters, ids)
	}
	return clusters
}
