package cluster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// blobs returns tasks drawn around well separated unit directions so that L2 normalization keeps
// the groups apart.
func blobs(perGroup int, centers [][]float64, seed int64) (map[string][]float64, map[string]int) {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404
	metrics := make(map[string][]float64)
	truth := make(map[string]int)
	for g, c := range centers {
		for i := 0; i < perGroup; i++ {
			v := make([]float64, len(c))
			for j := range c {
				v[j] = c[j] + 0.01*rng.NormFloat64()
			}
			name := fmt.Sprintf("task-%d-%02d", g, i)
			metrics[name] = v
			truth[name] = g
		}
	}
	return metrics, truth
}

func TestDPGMMLabelCount(t *testing.T) {
	metrics, _ := blobs(6, [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, 1)
	res, err := DPGMM(metrics, 3, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Labels, len(metrics))
	require.Len(t, res.Tasks, len(metrics))
	require.Len(t, res.TaskToCluster, len(metrics))
	for i, task := range res.Tasks {
		require.Equal(t, res.Labels[i], res.TaskToCluster[task])
		require.GreaterOrEqual(t, res.Labels[i], 0)
		require.Less(t, res.Labels[i], 3)
	}
}

func TestDPGMMSeparatesGroups(t *testing.T) {
	metrics, truth := blobs(8, [][]float64{{1, 0.1}, {0.1, 1}}, 2)
	res, err := DPGMM(metrics, 2, DefaultOptions())
	require.NoError(t, err)

	// Tasks from the same group share a cluster and the two groups differ.
	clusterOf := make(map[int]int)
	for task, group := range truth {
		label := res.TaskToCluster[task]
		if prev, ok := clusterOf[group]; ok {
			require.Equal(t, prev, label, task)
		}
		clusterOf[group] = label
	}
	require.NotEqual(t, clusterOf[0], clusterOf[1])
}

func TestDPGMMDeterministic(t *testing.T) {
	metrics, _ := blobs(5, [][]float64{{1, 0}, {0, 1}}, 3)
	a, err := DPGMM(metrics, 2, DefaultOptions())
	require.NoError(t, err)
	b, err := DPGMM(metrics, 2, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDPGMMEdgeCases(t *testing.T) {
	res, err := DPGMM(nil, 3, DefaultOptions())
	require.NoError(t, err)
	require.True(t, res.Empty())

	_, err = DPGMM(map[string][]float64{"a": {1, 0}}, 2, DefaultOptions())
	require.ErrorContains(t, err, "expected at least 2 samples")

	_, err = DPGMM(map[string][]float64{"a": {1, 0}}, 0, DefaultOptions())
	require.Error(t, err)

	_, err = DPGMM(map[string][]float64{"a": {1, 0}, "b": {1}}, 1, DefaultOptions())
	require.ErrorContains(t, err, "building metric matrix")
}

func TestKMeans(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 0.1, 10, 10.1})
	labels := kmeans(x, 2, rand.New(rand.NewSource(0))) // #nosec G404
	require.Equal(t, labels[0], labels[1])
	require.Equal(t, labels[2], labels[3])
	require.NotEqual(t, labels[0], labels[2])
}

func TestIntersections(t *testing.T) {
	keys := []string{"A", "B", "C", "D"}
	assignments := []map[string]int{
		{"A": 0, "B": 0, "C": 0, "D": 1},
		{"A": 1, "B": 1, "C": 0, "D": 2},
		{"A": 2, "B": 2, "C": 2, "D": 0},
	}
	got := Intersections(keys, assignments)
	require.Equal(t, [][]string{{"A", "B"}}, got)
	for _, s := range got {
		require.NotContains(t, s, "C")
	}
}

func TestIntersectionsMergesOverlappingPairs(t *testing.T) {
	keys := []string{"A", "B", "C", "D", "E"}
	assignments := []map[string]int{
		{"A": 0, "B": 0, "C": 0, "D": 1, "E": 1},
		{"A": 3, "B": 3, "C": 3, "D": 4, "E": 4},
	}
	require.Equal(t, [][]string{{"A", "B", "C"}, {"D", "E"}}, Intersections(keys, assignments))
}

func TestIntersectionsIgnoresMissingTasks(t *testing.T) {
	keys := []string{"A", "B"}
	assignments := []map[string]int{
		{"A": 0, "B": 0},
		{"A": 1},
	}
	require.Equal(t, [][]string{{"A", "B"}}, Intersections(keys, assignments))
}

func TestInvertAssignment(t *testing.T) {
	inv := InvertAssignment(map[string]string{"a": "map", "b": "fold", "c": "map"})
	require.Equal(t, map[string][]string{"map": {"a", "c"}, "fold": {"b"}}, inv)
}
