package analysis

import (
	"context"

	"github.com/pkg/errors"

	"github.com/determined-ai/taskrank/internal/cluster"
	"github.com/determined-ai/taskrank/pkg/checkpoint"
)

// Starts is the ground truth grouping of solved tasks by the head primitive of their best
// program.
type Starts struct {
	TrainToStart  map[string]string
	StartToTrains map[string][]string
	TestToStart   map[string]string
	StartToTests  map[string][]string
}

// SplitClusters is a clustering of the train and test tasks of one checkpoint.
type SplitClusters struct {
	Train cluster.Result
	Test  cluster.Result
}

func frontierStart(f checkpoint.Frontier) (string, error) {
	top, ok := f.Top()
	if !ok {
		return "", errors.New("empty frontier")
	}
	return checkpoint.ProgramHead(top.Program)
}

// startsOf computes the ground truth starts of a checkpoint. Train tasks are the solved task
// solutions; test tasks are the other tasks with a non-empty frontier metric.
func startsOf(ckpt *checkpoint.Checkpoint) (Starts, error) {
	s := Starts{
		TrainToStart: map[string]string{},
		TestToStart:  map[string]string{},
	}
	for _, task := range ckpt.SolvedTrainingTasks() {
		start, err := frontierStart(ckpt.TaskSolutions[task])
		if err != nil {
			return Starts{}, errors.Wrapf(err, "train task %s", task)
		}
		s.TrainToStart[task] = start
	}

	for _, task := range ckpt.SortedTasks() {
		if _, ok := s.TrainToStart[task]; ok {
			continue
		}
		m, ok := ckpt.RecognitionTaskMetrics[task][FrontierMetric]
		if !ok || m.Kind != checkpoint.KindFrontier || m.Frontier.Empty() {
			continue
		}
		start, err := frontierStart(*m.Frontier)
		if err != nil {
			return Starts{}, errors.Wrapf(err, "test task %s", task)
		}
		s.TestToStart[task] = start
	}

	s.StartToTrains = cluster.InvertAssignment(s.TrainToStart)
	s.StartToTests = cluster.InvertAssignment(s.TestToStart)
	return s, nil
}

// GroundTruthStarts computes the starts of every ground truth checkpoint.
func (a *Analyzer) GroundTruthStarts(ctx context.Context) ([]Starts, error) {
	var out []Starts
	for _, path := range a.cfg.GroundTruthCheckpoints {
		ckpt, err := a.loader.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		s, err := startsOf(ckpt)
		if err != nil {
			return nil, errors.Wrapf(err, "ground truth starts of %s", path)
		}
		out = append(out, s)
	}
	return out, nil
}

// ExpectedProductionUses clusters the expected production uses predicted for the ground truth
// tasks of every ground truth checkpoint, with one component per ground truth start.
func (a *Analyzer) ExpectedProductionUses(ctx context.Context, starts []Starts) ([]SplitClusters, error) {
	var out []SplitClusters
	for j, path := range a.cfg.GroundTruthCheckpoints {
		ckpt, err := a.loader.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		g := ckpt.LastGrammar()
		train, test := map[string][]float64{}, map[string][]float64{}
		for _, task := range ckpt.SortedTasks() {
			metrics := ckpt.RecognitionTaskMetrics[task]
			if m, ok := metrics[ExpectedProductionUsesMetric]; ok {
				if m.IsNull() {
					continue
				}
				v, err := m.AsVector(g)
				if err != nil {
					return nil, errors.Wrapf(err, "expected production uses of %s", task)
				}
				train[task] = v
				continue
			}
			m, ok := metrics[FrontierMetric]
			if _, isTest := starts[j].TestToStart[task]; !ok || !isTest || m.IsNull() {
				continue
			}
			v, err := m.AsVector(g)
			if err != nil {
				return nil, errors.Wrapf(err, "frontier of %s", task)
			}
			test[task] = v
		}

		sc, err := clusterSplits(train, test, starts[j])
		if err != nil {
			return nil, errors.Wrapf(err, "clustering expected production uses of %s", path)
		}
		out = append(out, sc)
	}
	return out, nil
}

// clusterSplits clusters the train and test metrics into as many components as the splits have
// ground truth starts.
func clusterSplits(train, test map[string][]float64, s Starts) (SplitClusters, error) {
	opts := cluster.DefaultOptions()
	trainResult, err := cluster.DPGMM(train, len(s.StartToTrains), opts)
	if err != nil {
		return SplitClusters{}, errors.Wrap(err, "train")
	}
	testResult, err := cluster.DPGMM(test, len(s.StartToTests), opts)
	if err != nil {
		return SplitClusters{}, errors.Wrap(err, "test")
	}
	return SplitClusters{Train: trainResult, Test: testResult}, nil
}
