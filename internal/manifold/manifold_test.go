package manifold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
)

func twoGroups() *mat.Dense {
	return mat.NewDense(8, 3, []float64{
		1, 0, 0,
		0.98, 0.02, 0,
		0.99, 0, 0.01,
		0.97, 0.01, 0.02,
		0, 0, 1,
		0.02, 0, 0.98,
		0, 0.01, 0.99,
		0.01, 0.02, 0.97,
	})
}

func TestTSNEShape(t *testing.T) {
	y, err := TSNE{Perplexity: 30, LearningRate: 250, Iterations: 500}.Embed(twoGroups())
	require.NoError(t, err)
	r, c := y.Dims()
	assert.Equal(t, r, 8)
	assert.Equal(t, c, 2)
	for _, v := range y.RawMatrix().Data {
		require.False(t, math.IsNaN(v))
	}
}

func TestTSNESeparatesGroups(t *testing.T) {
	y, err := TSNE{Perplexity: 2, LearningRate: 100, Iterations: 1000}.Embed(twoGroups())
	require.NoError(t, err)

	within := floats.Distance(y.RawRowView(0), y.RawRowView(1), 2)
	across := floats.Distance(y.RawRowView(0), y.RawRowView(5), 2)
	require.Less(t, within, across)
}

func TestTSNEDeterministic(t *testing.T) {
	ts := TSNE{Perplexity: 3, LearningRate: 200, Iterations: 300, Seed: 7}
	a, err := ts.Embed(twoGroups())
	require.NoError(t, err)
	b, err := ts.Embed(twoGroups())
	require.NoError(t, err)
	require.True(t, mat.Equal(a, b))
}

func TestTSNEEdgeCases(t *testing.T) {
	y, err := DefaultTSNE().Embed(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0}, y.RawRowView(0))

	_, err = DefaultTSNE().Embed(nil)
	require.Error(t, err)

	_, err = TSNE{Perplexity: 30, LearningRate: 0, Iterations: 10}.Embed(twoGroups())
	require.Error(t, err)
}

func TestPerplexityClamp(t *testing.T) {
	assert.Equal(t, TSNE{Perplexity: 30}.perplexity(10), 3.0)
	assert.Equal(t, TSNE{Perplexity: 2}.perplexity(10), 2.0)
	assert.Equal(t, TSNE{Perplexity: 30}.perplexity(2), 1.0)
}

func TestJointProbabilities(t *testing.T) {
	p := jointProbabilities(squaredDistances(twoGroups()), 2)
	n := p.SymmetricDim()
	var sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum += p.At(i, j)
		}
	}
	require.InDelta(t, 1.0, sum, 1e-6)
	require.Greater(t, p.At(0, 1), p.At(0, 5))
}

func TestMDSOrderingLine(t *testing.T) {
	// Points on a line, given out of order.
	x := mat.NewDense(4, 2, []float64{
		2, 2,
		0, 0,
		3, 3,
		1, 1,
	})
	order, err := MDSOrdering(x)
	require.NoError(t, err)
	if order[0] == 2 {
		require.Equal(t, []int{2, 0, 3, 1}, order)
	} else {
		require.Equal(t, []int{1, 3, 0, 2}, order)
	}
}

func TestMDS1DPreservesDistances(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{0, 1, 4})
	coords, err := MDS1D(x)
	require.NoError(t, err)
	require.InDelta(t, 1.0, math.Abs(coords[0]-coords[1]), 1e-9)
	require.InDelta(t, 4.0, math.Abs(coords[0]-coords[2]), 1e-9)
}

func TestMDSSingleRow(t *testing.T) {
	order, err := MDSOrdering(mat.NewDense(1, 3, []float64{1, 2, 3}))
	require.NoError(t, err)
	require.Equal(t, []int{0}, order)

	_, err = MDSOrdering(nil)
	require.Error(t, err)
}
