package cluster

import (
	"slices"

	"github.com/determined-ai/taskrank/pkg/set"
)

// InvertAssignment groups tasks by the value they are assigned to. Each group is sorted.
func InvertAssignment[V comparable](assignment map[string]V) map[V][]string {
	inv := make(map[V][]string)
	for task, v := range assignment {
		inv[v] = append(inv[v], task)
	}
	for _, tasks := range inv {
		slices.Sort(tasks)
	}
	return inv
}

// Intersections returns the sets of tasks that every assignment agrees belong together. A pair
// of tasks is together when each assignment holding both tasks puts them in the same cluster;
// overlapping pairs are merged. Sets are sorted, and ordered by their first task.
func Intersections(keys []string, assignments []map[string]int) [][]string {
	uf := newUnionFind(keys)
	for a := 0; a < len(keys); a++ {
		for b := a + 1; b < len(keys); b++ {
			if together(keys[a], keys[b], assignments) {
				uf.union(keys[a], keys[b])
			}
		}
	}

	groups := make(map[string]set.Set[string])
	for _, key := range keys {
		root := uf.find(key)
		if _, ok := groups[root]; !ok {
			groups[root] = set.New[string]()
		}
		groups[root].Insert(key)
	}

	var out [][]string
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		out = append(out, set.Sorted(g))
	}
	slices.SortFunc(out, func(a, b []string) int {
		return slices.Compare(a, b)
	})
	return out
}

func together(t1, t2 string, assignments []map[string]int) bool {
	for _, assignment := range assignments {
		c1, ok1 := assignment[t1]
		c2, ok2 := assignment[t2]
		if ok1 && ok2 && c1 != c2 {
			return false
		}
	}
	return true
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind(keys []string) *unionFind {
	parent := make(map[string]string, len(keys))
	for _, k := range keys {
		parent[k] = k
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(k string) string {
	for u.parent[k] != k {
		u.parent[k] = u.parent[u.parent[k]]
		k = u.parent[k]
	}
	return k
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
