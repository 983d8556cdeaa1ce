package analysis

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/guregu/null.v3"

	"github.com/determined-ai/taskrank/internal/config"
	"github.com/determined-ai/taskrank/internal/manifold"
	"github.com/determined-ai/taskrank/internal/plots"
	"github.com/determined-ai/taskrank/internal/report"
	"github.com/determined-ai/taskrank/internal/stats"
	"github.com/determined-ai/taskrank/internal/storage"
	"github.com/determined-ai/taskrank/pkg/checkpoint"
	"github.com/determined-ai/taskrank/pkg/set"
)

const (
	similarityLearningRate = 350
	groundTruthTitle       = "Expected Productions"
)

// TaskVectors are task vectors in a fixed order with their pairwise cosine similarities.
type TaskVectors struct {
	Tasks        []string
	Vectors      *mat.Dense
	Similarities *mat.SymDense
}

// Len is the number of tasks.
func (v TaskVectors) Len() int {
	return len(v.Tasks)
}

func newTaskVectors(tasks []string, vecs [][]float64) (TaskVectors, error) {
	if len(vecs) == 0 {
		return TaskVectors{}, nil
	}
	x, err := stats.Rows(vecs)
	if err != nil {
		return TaskVectors{}, err
	}
	return TaskVectors{Tasks: tasks, Vectors: x, Similarities: stats.CosineSimilarity(x)}, nil
}

// reorder permutes the tasks and vectors and recomputes the similarities.
func (v TaskVectors) reorder(order []int) (TaskVectors, error) {
	tasks := make([]string, len(order))
	vecs := make([][]float64, len(order))
	for i, k := range order {
		tasks[i] = v.Tasks[k]
		vecs[i] = mat.Row(nil, k, v.Vectors)
	}
	return newTaskVectors(tasks, vecs)
}

// GroundTruthSimilarities are the expected production use similarities of the train and test
// tasks of one ground truth checkpoint.
type GroundTruthSimilarities struct {
	Train TaskVectors
	Test  TaskVectors
}

// MetricSimilarity compares the similarities of one metric with the ground truth.
type MetricSimilarity struct {
	Checkpoint string
	Experiment string
	Metric     string
	Iteration  int
	TrainTasks int
	TestTasks  int
	TrainMSE   null.Float
	TestMSE    null.Float
}

// SimilarityReport is the outcome of the similarity analysis.
type SimilarityReport struct {
	GroundTruth []GroundTruthSimilarities
	Metrics     []MetricSimilarity
}

// ExpectedProductionSimilarities computes the ground truth similarities of every ground truth
// checkpoint, optionally ordered by a one dimensional MDS of the expected production uses.
func (a *Analyzer) ExpectedProductionSimilarities(ctx context.Context) ([]GroundTruthSimilarities, error) {
	var out []GroundTruthSimilarities
	for _, path := range a.cfg.GroundTruthCheckpoints {
		ckpt, err := a.loader.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		gt, err := expectedProductionSimilarities(ckpt, a.cfg.SimilarityOrdering)
		if err != nil {
			return nil, errors.Wrapf(err, "ground truth similarities of %s", path)
		}
		log.WithField("checkpoint", path).Infof(
			"found %d ground truth train and %d test", gt.Train.Len(), gt.Test.Len())
		out = append(out, gt)
	}
	return out, nil
}

func expectedProductionSimilarities(ckpt *checkpoint.Checkpoint, ordering string) (GroundTruthSimilarities, error) {
	g := ckpt.LastGrammar()
	trainTasks := set.FromSlice(ckpt.SolvedTrainingTasks())
	var trainNames, testNames []string
	var trainVecs, testVecs [][]float64
	for _, task := range ckpt.SortedTasks() {
		metrics := ckpt.RecognitionTaskMetrics[task]
		if m, ok := metrics[ExpectedProductionUsesMetric]; ok {
			if m.IsNull() {
				continue
			}
			v, err := m.AsVector(g)
			if err != nil {
				return GroundTruthSimilarities{}, errors.Wrapf(err, "task %s", task)
			}
			trainNames, trainVecs = append(trainNames, task), append(trainVecs, v)
			continue
		}
		m, ok := metrics[FrontierMetric]
		if !ok || m.IsNull() || trainTasks.Contains(task) {
			continue
		}
		v, err := m.AsVector(g)
		if err != nil {
			return GroundTruthSimilarities{}, errors.Wrapf(err, "task %s", task)
		}
		testNames, testVecs = append(testNames, task), append(testVecs, v)
	}

	var gt GroundTruthSimilarities
	var err error
	if gt.Train, err = newTaskVectors(trainNames, trainVecs); err != nil {
		return gt, errors.Wrap(err, "train")
	}
	if gt.Test, err = newTaskVectors(testNames, testVecs); err != nil {
		return gt, errors.Wrap(err, "test")
	}
	if ordering != config.OrderingMDS {
		return gt, nil
	}

	log.Info("fitting an MDS ordering")
	for _, split := range []*TaskVectors{&gt.Train, &gt.Test} {
		if split.Len() == 0 {
			continue
		}
		order, err := manifold.MDSOrdering(split.Vectors)
		if err != nil {
			return gt, errors.Wrap(err, "MDS ordering")
		}
		if *split, err = split.reorder(order); err != nil {
			return gt, err
		}
	}
	return gt, nil
}

// SimilarityAnalysis compares the pairwise similarities of every similarity metric with the
// expected production use similarities of the ground truth.
func (a *Analyzer) SimilarityAnalysis(ctx context.Context) (*SimilarityReport, error) {
	gts, err := a.ExpectedProductionSimilarities(ctx)
	if err != nil {
		return nil, err
	}
	if len(gts) < len(a.cfg.Checkpoints) {
		return nil, errors.Errorf("%d ground truth checkpoints for %d checkpoints",
			len(gts), len(a.cfg.Checkpoints))
	}

	rep := &SimilarityReport{GroundTruth: gts}
	for j, path := range a.cfg.Checkpoints {
		res, err := a.loader.LoadResult(ctx, path, a.cfg.Export)
		if err != nil {
			return nil, err
		}
		for _, metric := range a.cfg.SimilarityAnalysisMetrics {
			ms, err := a.compareSimilarities(res, a.experimentName(j), metric, gts[j])
			if err != nil {
				return nil, errors.Wrapf(err, "metric %s of %s", metric, path)
			}
			rep.Metrics = append(rep.Metrics, ms)
		}
		if a.cfg.SimilarityWithTSNE {
			if err := a.plotGroundTruthTSNE(a.experimentName(j), gts[j]); err != nil {
				return nil, err
			}
		}
	}
	return rep, nil
}

func (a *Analyzer) compareSimilarities(
	res *storage.Result, experiment, metric string, gt GroundTruthSimilarities,
) (MetricSimilarity, error) {
	ms := MetricSimilarity{
		Checkpoint: res.Location,
		Experiment: experiment,
		Metric:     metric,
		Iteration:  res.Iterations,
	}
	logger := a.logContext(res, experiment).WithField("metric", metric)
	heldout := HeldoutMetric(metric)
	for _, split := range []struct {
		test   bool
		metric string
		truth  TaskVectors
		n      *int
		mse    *null.Float
	}{
		{false, metric, gt.Train, &ms.TrainTasks, &ms.TrainMSE},
		{true, heldout, gt.Test, &ms.TestTasks, &ms.TestMSE},
	} {
		if split.metric == noHeldoutMetric || split.truth.Len() == 0 {
			continue
		}
		mse, n, err := a.compareSplit(res, experiment, split.metric, metric, split.test, split.truth)
		if err != nil {
			return ms, errors.Wrap(err, splitName(split.test))
		}
		*split.n = n
		if n == 0 {
			logger.Warnf("no %s tasks recorded %s", splitName(split.test), split.metric)
			continue
		}
		*split.mse = null.FloatFrom(mse)
	}
	return ms, nil
}

// compareSplit plots the similarities of one split against the ground truth and returns their
// mean squared error with the number of tasks compared.
func (a *Analyzer) compareSplit(
	res *storage.Result, experiment, metric, name string, test bool, truth TaskVectors,
) (float64, int, error) {
	var idx []int
	var vecs [][]float64
	g := res.Checkpoint.LastGrammar()
	for i, task := range truth.Tasks {
		m, ok := res.Checkpoint.RecognitionTaskMetrics[task][metric]
		if !ok || m.IsNull() {
			continue
		}
		v, err := m.AsVector(g)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "task %s", task)
		}
		idx = append(idx, i)
		vecs = append(vecs, v)
	}
	if len(idx) == 0 {
		return 0, 0, nil
	}
	if a.cfg.ApplySoftmax {
		vecs = softmaxAll(vecs)
	}

	tasks := make([]string, len(idx))
	for i, k := range idx {
		tasks[i] = truth.Tasks[k]
	}
	metricVectors, err := newTaskVectors(tasks, vecs)
	if err != nil {
		return 0, 0, err
	}
	truthSims := stats.SubSym(truth.Similarities, idx)
	labels := formattedNames(tasks)

	split := splitName(test)
	base := fmt.Sprintf("%s_it_%d_%s_%s", experiment, res.Iterations, name, split)
	if err := plots.HeatMap(metricVectors.Similarities, labels, name,
		filepath.Join(a.cfg.Export, base+"_similarities.png")); err != nil {
		return 0, 0, err
	}
	if err := plots.Scatter(stats.Flatten(truthSims), stats.Flatten(metricVectors.Similarities),
		filepath.Join(a.cfg.Export, base+"_scatter.png"), "Expected Production Uses", name, ""); err != nil {
		return 0, 0, err
	}
	if a.cfg.SimilarityWithTSNE {
		if err := a.plotTaskTSNE(metricVectors.Vectors, labels, name,
			filepath.Join(a.cfg.Export, base+"_tsne.png")); err != nil {
			return 0, 0, err
		}
	}

	mse, err := stats.MeanSquaredError(truthSims, metricVectors.Similarities)
	if err != nil {
		return 0, 0, err
	}
	log.Infof("Experiment %s: %s, it=%d, metric %s, mse %f", split, experiment, res.Iterations, name, mse)
	a.observe(report.Observation{
		Analysis:   report.Similarity,
		Name:       "similarity_mse",
		Experiment: experiment,
		Checkpoint: res.Location,
		Metric:     name,
		Split:      split,
		Iteration:  res.Iterations,
		Value:      mse,
	})
	return mse, len(idx), nil
}

// plotGroundTruthTSNE embeds the ground truth expected production uses as a sanity check of the
// metric embeddings.
func (a *Analyzer) plotGroundTruthTSNE(experiment string, gt GroundTruthSimilarities) error {
	for _, split := range []struct {
		test bool
		v    TaskVectors
	}{{false, gt.Train}, {true, gt.Test}} {
		if split.v.Len() == 0 {
			continue
		}
		path := filepath.Join(a.cfg.Export, experiment+"_gt_"+splitName(split.test)+"_tsne.png")
		if err := a.plotTaskTSNE(split.v.Vectors, formattedNames(split.v.Tasks), groundTruthTitle, path); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) plotTaskTSNE(x *mat.Dense, labels []string, title, path string) error {
	t := a.tsne()
	t.LearningRate = similarityLearningRate
	embedded, err := t.Embed(x)
	if err != nil {
		return errors.Wrap(err, "embedding similarities")
	}
	return plots.EmbeddingWithLabels(embedded, labels, title, path, "", "")
}
