// Package manifold embeds task metric vectors into low dimensional spaces.
package manifold

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	embeddingDims          = 2
	exaggerationIterations = 250
	earlyExaggeration      = 12.0
	initialMomentum        = 0.5
	finalMomentum          = 0.8
	minGain                = 0.01
	minGradNorm            = 1e-7
	perplexityTol          = 1e-5
	perplexitySteps        = 100
	minProbability         = 1e-12
)

// TSNE is an exact t-distributed stochastic neighbour embedding into two dimensions.
type TSNE struct {
	Perplexity   float64
	LearningRate float64
	Iterations   int
	Seed         int64
}

// DefaultTSNE returns the settings used for the command line t-SNE plots.
func DefaultTSNE() TSNE {
	return TSNE{
		Perplexity:   30,
		LearningRate: 250,
		Iterations:   10000,
		Seed:         0,
	}
}

// Embed returns one two dimensional point per row of x. The perplexity is clamped below the
// number of rows so that small inputs still embed.
func (t TSNE) Embed(x *mat.Dense) (*mat.Dense, error) {
	if x == nil || x.IsEmpty() {
		return nil, errors.New("cannot embed an empty matrix")
	}
	if t.LearningRate <= 0 {
		return nil, errors.Errorf("invalid learning rate %v", t.LearningRate)
	}
	if t.Iterations < 1 {
		return nil, errors.Errorf("invalid iteration count %d", t.Iterations)
	}
	n, _ := x.Dims()
	y := mat.NewDense(n, embeddingDims, nil)
	if n == 1 {
		return y, nil
	}

	p := jointProbabilities(squaredDistances(x), t.perplexity(n))

	rng := rand.New(rand.NewSource(t.Seed)) // #nosec G404
	for i := 0; i < n; i++ {
		for d := 0; d < embeddingDims; d++ {
			y.Set(i, d, 1e-4*rng.NormFloat64())
		}
	}

	update := mat.NewDense(n, embeddingDims, nil)
	gains := mat.NewDense(n, embeddingDims, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < embeddingDims; d++ {
			gains.Set(i, d, 1)
		}
	}
	grad := mat.NewDense(n, embeddingDims, nil)
	num := mat.NewDense(n, n, nil)

	for iter := 0; iter < t.Iterations; iter++ {
		exaggeration, momentum := 1.0, finalMomentum
		if iter < exaggerationIterations {
			exaggeration, momentum = earlyExaggeration, initialMomentum
		}
		gradient(grad, num, y, p, exaggeration)

		for i := 0; i < n; i++ {
			for d := 0; d < embeddingDims; d++ {
				g, u, gain := grad.At(i, d), update.At(i, d), gains.At(i, d)
				if (g > 0) != (u > 0) {
					gain += 0.2
				} else {
					gain *= 0.8
				}
				gain = math.Max(gain, minGain)
				gains.Set(i, d, gain)
				u = momentum*u - t.LearningRate*gain*g
				update.Set(i, d, u)
				y.Set(i, d, y.At(i, d)+u)
			}
		}

		if iter >= exaggerationIterations && mat.Norm(grad, 2) < minGradNorm {
			break
		}
	}
	return y, nil
}

func (t TSNE) perplexity(n int) float64 {
	limit := float64(n-1) / 3
	if limit < 1 {
		limit = 1
	}
	if t.Perplexity <= 0 || t.Perplexity > limit {
		return limit
	}
	return t.Perplexity
}

// gradient writes the Kullback-Leibler gradient into grad. num receives the Student-t kernel.
func gradient(grad, num, y *mat.Dense, p *mat.SymDense, exaggeration float64) {
	n, _ := y.Dims()
	var sum float64
	for i := 0; i < n; i++ {
		num.Set(i, i, 0)
		for j := i + 1; j < n; j++ {
			dist := floats.Distance(y.RawRowView(i), y.RawRowView(j), 2)
			k := 1 / (1 + dist*dist)
			num.Set(i, j, k)
			num.Set(j, i, k)
			sum += 2 * k
		}
	}

	grad.Zero()
	for i := 0; i < n; i++ {
		gi := grad.RawRowView(i)
		yi := y.RawRowView(i)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			k := num.At(i, j)
			q := math.Max(k/sum, minProbability)
			mult := 4 * (exaggeration*p.At(i, j) - q) * k
			yj := y.RawRowView(j)
			for d := range gi {
				gi[d] += mult * (yi[d] - yj[d])
			}
		}
	}
}

func squaredDistances(x *mat.Dense) *mat.SymDense {
	n, _ := x.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(x.RawRowView(i), x.RawRowView(j), 2)
			out.SetSym(i, j, d*d)
		}
	}
	return out
}

// jointProbabilities calibrates a Gaussian per point to the target perplexity and returns the
// symmetrized joint probabilities.
func jointProbabilities(dist *mat.SymDense, perplexity float64) *mat.SymDense {
	n := dist.SymmetricDim()
	target := math.Log(perplexity)
	cond := mat.NewDense(n, n, nil)
	row := make([]float64, n)

	for i := 0; i < n; i++ {
		beta, lo, hi := 1.0, math.Inf(-1), math.Inf(1)
		for step := 0; step < perplexitySteps; step++ {
			entropy := conditionalRow(row, dist, i, beta)
			diff := entropy - target
			if math.Abs(diff) < perplexityTol {
				break
			}
			if diff > 0 {
				lo = beta
				if math.IsInf(hi, 1) {
					beta *= 2
				} else {
					beta = (beta + hi) / 2
				}
			} else {
				hi = beta
				if math.IsInf(lo, -1) {
					beta /= 2
				} else {
					beta = (beta + lo) / 2
				}
			}
		}
		cond.SetRow(i, row)
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := (cond.At(i, j) + cond.At(j, i)) / (2 * float64(n))
			out.SetSym(i, j, math.Max(v, minProbability))
		}
	}
	return out
}

// conditionalRow fills row with p(j|i) for precision beta and returns the entropy in nats.
func conditionalRow(row []float64, dist *mat.SymDense, i int, beta float64) float64 {
	n := dist.SymmetricDim()
	minDist := math.Inf(1)
	for j := 0; j < n; j++ {
		if j != i {
			minDist = math.Min(minDist, dist.At(i, j))
		}
	}
	var sum float64
	for j := 0; j < n; j++ {
		if j == i {
			row[j] = 0
			continue
		}
		row[j] = math.Exp(-(dist.At(i, j) - minDist) * beta)
		sum += row[j]
	}
	var weighted float64
	for j := 0; j < n; j++ {
		row[j] /= sum
		weighted += row[j] * (dist.At(i, j) - minDist)
	}
	return math.Log(sum) + beta*weighted
}
