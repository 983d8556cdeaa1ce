// Package cluster groups tasks by their metric vectors and compares groupings across checkpoints.
package cluster

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"

	"github.com/determined-ai/taskrank/internal/stats"
	"github.com/determined-ai/taskrank/pkg/checkpoint"
)

var machineEpsilon = math.Nextafter(1, 2) - 1

// Options control the variational mixture fit.
type Options struct {
	MaxIter  int
	Tol      float64
	RegCovar float64
	Seed     int64
}

// DefaultOptions returns the options used by the clustering analysis.
func DefaultOptions() Options {
	return Options{
		MaxIter:  100,
		Tol:      1e-3,
		RegCovar: 1e-6,
		Seed:     0,
	}
}

// Result is a clustering of tasks. Tasks and Labels are parallel and Tasks is in display order.
type Result struct {
	Tasks         []string
	Labels        []int
	TaskToCluster map[string]int
}

// Len is the number of clustered tasks.
func (r Result) Len() int {
	return len(r.Tasks)
}

// Empty reports whether no task was clustered.
func (r Result) Empty() bool {
	return len(r.Tasks) == 0
}

// DPGMM clusters the L2-normalized metric vectors with a Dirichlet-process Gaussian mixture
// of nComponents full-covariance components and returns the most likely component of each task.
func DPGMM(metrics map[string][]float64, nComponents int, opts Options) (Result, error) {
	if len(metrics) == 0 {
		return Result{TaskToCluster: map[string]int{}}, nil
	}
	if nComponents < 1 {
		return Result{}, errors.Errorf("invalid number of components: %d", nComponents)
	}
	if len(metrics) < nComponents {
		return Result{}, errors.Errorf(
			"expected at least %d samples to fit %d components, got %d",
			nComponents, nComponents, len(metrics))
	}

	tasks := checkpoint.SortTasks(maps.Keys(metrics))
	vectors := make([][]float64, len(tasks))
	for i, task := range tasks {
		vectors[i] = metrics[task]
	}
	x, err := stats.Rows(vectors)
	if err != nil {
		return Result{}, errors.Wrap(err, "building metric matrix")
	}
	stats.L2NormalizeRows(x)

	m := newMixture(nComponents, opts)
	if err := m.fit(x); err != nil {
		return Result{}, err
	}
	labels, err := m.predict(x)
	if err != nil {
		return Result{}, err
	}

	taskToCluster := make(map[string]int, len(tasks))
	for i, task := range tasks {
		taskToCluster[task] = labels[i]
	}
	return Result{Tasks: tasks, Labels: labels, TaskToCluster: taskToCluster}, nil
}

// mixture is a variational Bayesian Gaussian mixture with a stick-breaking weight prior and
// Normal-Wishart component priors.
type mixture struct {
	k    int
	opts Options

	// Priors.
	concentrationPrior float64
	meanPrecisionPrior float64
	meanPrior          []float64
	dofPrior           float64
	covPrior           *mat.SymDense

	// Variational posterior.
	alpha, beta   []float64
	meanPrecision []float64
	means         [][]float64
	dof           []float64
	chols         []*mat.Cholesky
}

func newMixture(k int, opts Options) *mixture {
	return &mixture{k: k, opts: opts}
}

func (m *mixture) fit(x *mat.Dense) error {
	n, d := x.Dims()
	m.concentrationPrior = 1 / float64(m.k)
	m.meanPrecisionPrior = 1
	m.dofPrior = float64(d)
	m.meanPrior = make([]float64, d)
	for j := 0; j < d; j++ {
		m.meanPrior[j] = floats.Sum(mat.Col(nil, j, x)) / float64(n)
	}
	m.covPrior = empiricalCovariance(x, m.meanPrior)
	for j := 0; j < d; j++ {
		m.covPrior.SetSym(j, j, m.covPrior.At(j, j)+m.opts.RegCovar)
	}

	rng := rand.New(rand.NewSource(m.opts.Seed)) // #nosec G404
	labels := kmeans(x, m.k, rng)
	resp := mat.NewDense(n, m.k, nil)
	for i, l := range labels {
		resp.Set(i, l, 1)
	}
	if err := m.mStep(x, resp); err != nil {
		return err
	}

	lowerBound := math.Inf(-1)
	for iter := 0; iter < m.opts.MaxIter; iter++ {
		prev := lowerBound
		logNorm, logResp, err := m.eStep(x)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			for j := 0; j < m.k; j++ {
				resp.Set(i, j, math.Exp(logResp.At(i, j)))
			}
		}
		if err := m.mStep(x, resp); err != nil {
			return err
		}
		lowerBound = logNorm
		if math.Abs(lowerBound-prev) < m.opts.Tol {
			break
		}
	}
	return nil
}

func (m *mixture) predict(x *mat.Dense) ([]int, error) {
	weighted, err := m.weightedLogProb(x)
	if err != nil {
		return nil, err
	}
	n, _ := weighted.Dims()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = floats.MaxIdx(weighted.RawRowView(i))
	}
	return labels, nil
}

// eStep returns the mean log normalizer and the log responsibilities.
func (m *mixture) eStep(x *mat.Dense) (float64, *mat.Dense, error) {
	weighted, err := m.weightedLogProb(x)
	if err != nil {
		return 0, nil, err
	}
	n, _ := weighted.Dims()
	var total float64
	for i := 0; i < n; i++ {
		row := weighted.RawRowView(i)
		norm := floats.LogSumExp(row)
		floats.AddConst(-norm, row)
		total += norm
	}
	return total / float64(n), weighted, nil
}

func (m *mixture) weightedLogProb(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	logWeights := m.logWeights()

	out := mat.NewDense(n, m.k, nil)
	diff := mat.NewVecDense(d, nil)
	var solved mat.VecDense
	for j := 0; j < m.k; j++ {
		logDet := m.chols[j].LogDet()
		logLambda := float64(d) * math.Ln2
		for i := 0; i < d; i++ {
			logLambda += mathext.Digamma(0.5 * (m.dof[j] - float64(i)))
		}
		constant := -0.5*(float64(d)*math.Log(2*math.Pi)+logDet) -
			0.5*float64(d)*math.Log(m.dof[j]) +
			0.5*(logLambda-float64(d)/m.meanPrecision[j])

		for i := 0; i < n; i++ {
			floats.SubTo(diff.RawVector().Data, x.RawRowView(i), m.means[j])
			if err := m.chols[j].SolveVecTo(&solved, diff); err != nil {
				return nil, errors.Wrap(err, "solving component covariance")
			}
			maha := mat.Dot(diff, &solved)
			out.Set(i, j, logWeights[j]+constant-0.5*maha)
		}
	}
	return out, nil
}

// logWeights is the expected log mixing weight of each component under the stick-breaking
// posterior.
func (m *mixture) logWeights() []float64 {
	out := make([]float64, m.k)
	var cum float64
	for j := 0; j < m.k; j++ {
		digammaSum := mathext.Digamma(m.alpha[j] + m.beta[j])
		out[j] = mathext.Digamma(m.alpha[j]) - digammaSum + cum
		cum += mathext.Digamma(m.beta[j]) - digammaSum
	}
	return out
}

func (m *mixture) mStep(x *mat.Dense, resp *mat.Dense) error {
	n, d := x.Dims()
	nk := make([]float64, m.k)
	xk := make([][]float64, m.k)
	for j := 0; j < m.k; j++ {
		xk[j] = make([]float64, d)
		for i := 0; i < n; i++ {
			r := resp.At(i, j)
			nk[j] += r
			floats.AddScaled(xk[j], r, x.RawRowView(i))
		}
		nk[j] += 10 * machineEpsilon
		floats.Scale(1/nk[j], xk[j])
	}

	// Stick-breaking weights.
	m.alpha = make([]float64, m.k)
	m.beta = make([]float64, m.k)
	var tail float64
	for j := m.k - 1; j >= 0; j-- {
		m.alpha[j] = 1 + nk[j]
		m.beta[j] = m.concentrationPrior + tail
		tail += nk[j]
	}

	// Means.
	m.meanPrecision = make([]float64, m.k)
	m.means = make([][]float64, m.k)
	for j := 0; j < m.k; j++ {
		m.meanPrecision[j] = m.meanPrecisionPrior + nk[j]
		mean := make([]float64, d)
		floats.AddScaled(mean, m.meanPrecisionPrior, m.meanPrior)
		floats.AddScaled(mean, nk[j], xk[j])
		floats.Scale(1/m.meanPrecision[j], mean)
		m.means[j] = mean
	}

	// Wishart posteriors, stored as the Cholesky factor of the expected covariance.
	m.dof = make([]float64, m.k)
	m.chols = make([]*mat.Cholesky, m.k)
	diff := make([]float64, d)
	for j := 0; j < m.k; j++ {
		m.dof[j] = m.dofPrior + nk[j]

		cov := mat.NewSymDense(d, nil)
		cov.CopySym(m.covPrior)
		for i := 0; i < n; i++ {
			r := resp.At(i, j)
			if r == 0 {
				continue
			}
			floats.SubTo(diff, x.RawRowView(i), xk[j])
			cov.SymRankOne(cov, r, mat.NewVecDense(d, diff))
		}
		for a := 0; a < d; a++ {
			cov.SetSym(a, a, cov.At(a, a)+nk[j]*m.opts.RegCovar)
		}
		floats.SubTo(diff, xk[j], m.meanPrior)
		cov.SymRankOne(cov, nk[j]*m.meanPrecisionPrior/m.meanPrecision[j], mat.NewVecDense(d, diff))
		cov.ScaleSym(1/m.dof[j], cov)

		var chol mat.Cholesky
		if ok := chol.Factorize(cov); !ok {
			return errors.Errorf(
				"covariance of component %d is not positive definite, try a larger regularization", j)
		}
		m.chols[j] = &chol
	}
	return nil
}

// empiricalCovariance is the unbiased sample covariance of the rows of x.
func empiricalCovariance(x *mat.Dense, mean []float64) *mat.SymDense {
	n, d := x.Dims()
	cov := mat.NewSymDense(d, nil)
	if n < 2 {
		return cov
	}
	diff := make([]float64, d)
	for i := 0; i < n; i++ {
		floats.SubTo(diff, x.RawRowView(i), mean)
		cov.SymRankOne(cov, 1, mat.NewVecDense(d, diff))
	}
	cov.ScaleSym(1/float64(n-1), cov)
	return cov
}
