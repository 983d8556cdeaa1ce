// Package stats holds the vector and partition statistics used to compare task metrics.
package stats

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Softmax returns exp(x) normalized to sum to one. The maximum is subtracted first so large
// inputs do not overflow.
func Softmax(x []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}
	out := make([]float64, len(x))
	maxX := floats.Max(x)
	for i, v := range x {
		out[i] = math.Exp(v - maxX)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// Entropy is the Shannon entropy of p in nats.
func Entropy(p []float64) float64 {
	return stat.Entropy(p)
}

// NormalizeAndEntropy is the entropy of softmax(x).
func NormalizeAndEntropy(x []float64) float64 {
	return Entropy(Softmax(x))
}

// Rows copies equal-length vectors into a dense matrix, one vector per row.
func Rows(vectors [][]float64) (*mat.Dense, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("zero-length vectors")
	}
	m := mat.NewDense(len(vectors), dim, nil)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.Errorf("vector %d has length %d, expected %d", i, len(v), dim)
		}
		m.SetRow(i, v)
	}
	return m, nil
}

// L2NormalizeRows scales every row of m to unit Euclidean norm in place. Zero rows are left
// unchanged.
func L2NormalizeRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
	}
}

// CosineSimilarity returns the pairwise cosine similarity of the rows of m with the diagonal set
// to zero. Rows with zero norm have zero similarity to everything. A nil matrix yields nil.
func CosineSimilarity(m mat.Matrix) *mat.SymDense {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	normed := mat.DenseCopyOf(m)
	L2NormalizeRows(normed)

	sim := mat.NewSymDense(r, nil)
	sim.SymOuterK(1, normed)
	for i := 0; i < r; i++ {
		sim.SetSym(i, i, 0)
	}
	return sim
}

// LabelEncode maps each distinct value to its index in the sorted list of distinct values.
func LabelEncode(values []string) []int {
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		distinct[v] = struct{}{}
	}
	classes := make([]string, 0, len(distinct))
	for v := range distinct {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	index := make(map[string]int, len(classes))
	for i, v := range classes {
		index[v] = i
	}

	labels := make([]int, len(values))
	for i, v := range values {
		labels[i] = index[v]
	}
	return labels
}

func comb2(n int) float64 {
	return float64(n) * float64(n-1) / 2
}

// AdjustedRandScore is the Rand index of two partitions of the same samples, adjusted for chance.
// Identical partitions score 1 regardless of label values.
func AdjustedRandScore(truth, pred []int) (float64, error) {
	if len(truth) != len(pred) {
		return 0, errors.Errorf("label lengths differ: %d and %d", len(truth), len(pred))
	}
	n := len(truth)
	type cell struct{ t, p int }
	contingency := make(map[cell]int)
	truthSums := make(map[int]int)
	predSums := make(map[int]int)
	for i := range truth {
		contingency[cell{truth[i], pred[i]}]++
		truthSums[truth[i]]++
		predSums[pred[i]]++
	}

	nClasses, nClusters := len(truthSums), len(predSums)
	if nClasses == nClusters && (nClasses <= 1 || nClasses == n) {
		return 1, nil
	}

	var sumComb, sumTruth, sumPred float64
	for _, c := range contingency {
		sumComb += comb2(c)
	}
	for _, c := range truthSums {
		sumTruth += comb2(c)
	}
	for _, c := range predSums {
		sumPred += comb2(c)
	}

	expected := sumTruth * sumPred / comb2(n)
	maxIndex := (sumTruth + sumPred) / 2
	if maxIndex == expected {
		return 1, nil
	}
	return (sumComb - expected) / (maxIndex - expected), nil
}

// MeanSquaredError is the mean of the squared element-wise differences of a and b.
func MeanSquaredError(a, b mat.Matrix) (float64, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return 0, errors.Errorf("shape mismatch: %dx%d and %dx%d", ar, ac, br, bc)
	}
	if ar == 0 || ac == 0 {
		return 0, errors.New("empty matrices")
	}
	var sum float64
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			d := a.At(i, j) - b.At(i, j)
			sum += d * d
		}
	}
	return sum / float64(ar*ac), nil
}

// Flatten returns the elements of m in row-major order.
func Flatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// SubSym returns the symmetric sub-matrix of s at the given indices.
func SubSym(s mat.Symmetric, idx []int) *mat.SymDense {
	sub := mat.NewSymDense(len(idx), nil)
	for i, a := range idx {
		for j := i; j < len(idx); j++ {
			sub.SetSym(i, j, s.At(a, idx[j]))
		}
	}
	return sub
}

// Argsort returns the indices that sort x in ascending order. Ties keep their input order.
func Argsort(x []float64) []int {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return x[idx[a]] < x[idx[b]]
	})
	return idx
}
