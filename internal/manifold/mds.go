package manifold

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/determined-ai/taskrank/internal/stats"
)

// MDSOrdering scales the rows of x to one dimension with classical multidimensional scaling
// over Euclidean distances and returns the row indices sorted by that coordinate.
func MDSOrdering(x *mat.Dense) ([]int, error) {
	coords, err := MDS1D(x)
	if err != nil {
		return nil, err
	}
	return stats.Argsort(coords), nil
}

// MDS1D returns the one dimensional classical scaling coordinate of every row of x. The sign is
// fixed so that the coordinate with the largest magnitude is positive.
func MDS1D(x *mat.Dense) ([]float64, error) {
	if x == nil || x.IsEmpty() {
		return nil, errors.New("cannot scale an empty matrix")
	}
	n, _ := x.Dims()
	if n == 1 {
		return []float64{0}, nil
	}

	// Double centered squared distances.
	sq := squaredDistances(x)
	rowMeans := make([]float64, n)
	var total float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rowMeans[i] += sq.At(i, j)
		}
		total += rowMeans[i]
		rowMeans[i] /= float64(n)
	}
	grand := total / float64(n*n)
	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(sq.At(i, j)-rowMeans[i]-rowMeans[j]+grand))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(b, true); !ok {
		return nil, errors.New("eigendecomposition did not converge")
	}
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Eigenvalues are ascending.
	top := len(values) - 1
	scale := math.Sqrt(math.Max(values[top], 0))
	coords := mat.Col(nil, top, &vecs)
	floats.Scale(scale, coords)

	if i := floats.MaxIdx(absAll(coords)); coords[i] < 0 {
		floats.Scale(-1, coords)
	}
	return coords, nil
}

func absAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}
