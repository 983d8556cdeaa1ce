package analysis

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/taskrank/internal/cluster"
	"github.com/determined-ai/taskrank/internal/report"
	"github.com/determined-ai/taskrank/internal/stats"
	"github.com/determined-ai/taskrank/pkg/checkpoint"
	"github.com/determined-ai/taskrank/pkg/set"
)

// SplitScores are per checkpoint adjusted Rand scores. Test scores are only recorded for
// checkpoints with clustered test tasks.
type SplitScores struct {
	Train []float64
	Test  []float64
}

// MetricClustering is the clustering analysis of one metric.
type MetricClustering struct {
	Metric             string
	HeldoutMetric      string
	Clusters           []SplitClusters
	StartsARI          SplitScores
	ExpectedUsesARI    SplitScores
	TrainIntersections [][]string
	TestIntersections  [][]string
}

// ClusteringReport is the outcome of the clustering analysis.
type ClusteringReport struct {
	Starts  []Starts
	Metrics []MetricClustering
}

// ClusteringAnalysis clusters the train and test tasks of every checkpoint by each clustering
// metric and compares the clusters with the ground truth checkpoints.
func (a *Analyzer) ClusteringAnalysis(ctx context.Context) (*ClusteringReport, error) {
	log.Infof("clustering on %d checkpoints", len(a.cfg.Checkpoints))
	starts, err := a.GroundTruthStarts(ctx)
	if err != nil {
		return nil, err
	}
	if len(starts) < len(a.cfg.Checkpoints) {
		return nil, errors.Errorf("%d ground truth checkpoints for %d checkpoints",
			len(starts), len(a.cfg.Checkpoints))
	}

	var groundTruthEPs []SplitClusters
	if a.cfg.CompareToExpectedProductionUses {
		if groundTruthEPs, err = a.ExpectedProductionUses(ctx, starts); err != nil {
			return nil, err
		}
	}

	rep := &ClusteringReport{Starts: starts}
	for _, metric := range a.cfg.ClusteringAnalysisMetrics {
		mc, err := a.clusterMetric(ctx, metric, starts, groundTruthEPs)
		if err != nil {
			return nil, errors.Wrapf(err, "metric %s", metric)
		}
		rep.Metrics = append(rep.Metrics, *mc)
	}
	return rep, nil
}

func (a *Analyzer) clusterMetric(
	ctx context.Context, metric string, starts []Starts, groundTruthEPs []SplitClusters,
) (*MetricClustering, error) {
	heldout := HeldoutMetric(metric)
	log.WithFields(log.Fields{"metric": metric, "heldout": heldout}).Info("clustering on metric")

	mc := &MetricClustering{Metric: metric, HeldoutMetric: heldout}
	iterations := make([]int, len(a.cfg.Checkpoints))
	for j, path := range a.cfg.Checkpoints {
		res, err := a.loader.LoadResult(ctx, path, "")
		if err != nil {
			return nil, err
		}
		iterations[j] = res.Iterations
		train, test, err := splitMetrics(res.Checkpoint, metric, heldout, starts[j])
		if err != nil {
			return nil, err
		}

		logger := a.logContext(res, a.experimentName(j)).WithField("metric", metric)
		if !set.FromKeys(train).Equal(set.FromKeys(starts[j].TrainToStart)) {
			logger.Warn("train keys do not match ground truth")
		}
		if !set.FromKeys(test).Equal(set.FromKeys(starts[j].TestToStart)) {
			logger.Warn("test keys do not match ground truth")
		}

		sc, err := clusterSplits(train, test, starts[j])
		if err != nil {
			return nil, errors.Wrapf(err, "clustering %s", path)
		}
		mc.Clusters = append(mc.Clusters, sc)
	}

	if a.cfg.CompareToGroundTruthStarts {
		for j, sc := range mc.Clusters {
			if err := a.scoreSplits(&mc.StartsARI, j, metric, iterations[j], "starts_ari", sc,
				startLabels(starts[j].TrainToStart), startLabels(starts[j].TestToStart)); err != nil {
				return nil, err
			}
		}
		log.Infof("comparison to ground truth starts RI train: %s", describe(mc.StartsARI.Train))
		log.Infof("comparison to ground truth starts RI test: %s", describe(mc.StartsARI.Test))
	}

	if groundTruthEPs != nil {
		for j, sc := range mc.Clusters {
			if err := a.scoreSplits(&mc.ExpectedUsesARI, j, metric, iterations[j], "expected_uses_ari", sc,
				groundTruthEPs[j].Train.TaskToCluster, groundTruthEPs[j].Test.TaskToCluster); err != nil {
				return nil, err
			}
		}
		log.Infof("comparison to ground truth EP RI train: %s", describe(mc.ExpectedUsesARI.Train))
		log.Infof("comparison to ground truth EP RI test: %s", describe(mc.ExpectedUsesARI.Test))
	}

	mc.TrainIntersections, mc.TestIntersections = intersections(mc.Clusters)
	log.Infof("train intersections: %v", mc.TrainIntersections)
	if len(mc.TestIntersections) > 0 {
		log.Infof("test intersections: %v", mc.TestIntersections)
	}
	return mc, nil
}

// splitMetrics collects the metric of the ground truth train tasks and the held out metric of the
// ground truth test tasks.
func splitMetrics(
	ckpt *checkpoint.Checkpoint, metric, heldout string, s Starts,
) (train, test map[string][]float64, err error) {
	g := ckpt.LastGrammar()
	train, test = map[string][]float64{}, map[string][]float64{}
	for _, task := range ckpt.SortedTasks() {
		metrics := ckpt.RecognitionTaskMetrics[task]
		_, isTrain := s.TrainToStart[task]
		_, isTest := s.TestToStart[task]
		var (
			m   checkpoint.Metric
			dst map[string][]float64
		)
		switch {
		case isTrain && metrics.Has(metric):
			m, dst = metrics[metric], train
		case isTest && metrics.Has(heldout):
			m, dst = metrics[heldout], test
		default:
			continue
		}
		if m.IsNull() {
			continue
		}
		v, err := m.AsVector(g)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "task %s", task)
		}
		dst[task] = v
	}
	return train, test, nil
}

// startLabels encodes ground truth starts as integer labels.
func startLabels(taskToStart map[string]string) map[string]int {
	tasks := make([]string, 0, len(taskToStart))
	values := make([]string, 0, len(taskToStart))
	for task, start := range taskToStart {
		tasks = append(tasks, task)
		values = append(values, start)
	}
	encoded := stats.LabelEncode(values)
	out := make(map[string]int, len(tasks))
	for i, task := range tasks {
		out[task] = encoded[i]
	}
	return out
}

// alignedARI scores a clustering against reference labels over the tasks both label.
func alignedARI(truth map[string]int, pred cluster.Result) (float64, int, error) {
	var t, p []int
	for i, task := range pred.Tasks {
		label, ok := truth[task]
		if !ok {
			continue
		}
		t = append(t, label)
		p = append(p, pred.Labels[i])
	}
	if len(t) == 0 {
		return 0, 0, nil
	}
	score, err := stats.AdjustedRandScore(t, p)
	return score, len(t), err
}

func (a *Analyzer) scoreSplits(
	scores *SplitScores, j int, metric string, iteration int, name string, sc SplitClusters,
	trainTruth, testTruth map[string]int,
) error {
	for _, split := range []struct {
		test  bool
		pred  cluster.Result
		truth map[string]int
		dst   *[]float64
	}{
		{false, sc.Train, trainTruth, &scores.Train},
		{true, sc.Test, testTruth, &scores.Test},
	} {
		if split.test && split.pred.Empty() {
			continue
		}
		score, n, err := alignedARI(split.truth, split.pred)
		if err != nil {
			return errors.Wrapf(err, "scoring %s", a.cfg.Checkpoints[j])
		}
		if n == 0 {
			log.WithField("checkpoint", a.cfg.Checkpoints[j]).
				Warnf("no %s tasks shared with the ground truth", splitName(split.test))
			continue
		}
		*split.dst = append(*split.dst, score)
		a.observe(report.Observation{
			Analysis:   report.Clustering,
			Name:       name,
			Experiment: a.experimentName(j),
			Checkpoint: a.cfg.Checkpoints[j],
			Metric:     metric,
			Split:      splitName(split.test),
			Iteration:  iteration,
			Value:      score,
		})
	}
	return nil
}

// intersections finds the task sets every checkpoint clustered together, keyed on the tasks of
// the first checkpoint.
func intersections(clusters []SplitClusters) (train, test [][]string) {
	if len(clusters) == 0 {
		return nil, nil
	}
	trainAssignments := make([]map[string]int, len(clusters))
	testAssignments := make([]map[string]int, len(clusters))
	for i, sc := range clusters {
		trainAssignments[i] = sc.Train.TaskToCluster
		testAssignments[i] = sc.Test.TaskToCluster
	}
	train = cluster.Intersections(clusters[0].Train.Tasks, trainAssignments)
	if !clusters[0].Test.Empty() {
		test = cluster.Intersections(clusters[0].Test.Tasks, testAssignments)
	}
	return train, test
}
