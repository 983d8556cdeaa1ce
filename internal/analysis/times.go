package analysis

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/determined-ai/taskrank/internal/plots"
	"github.com/determined-ai/taskrank/internal/report"
	"github.com/determined-ai/taskrank/internal/storage"
	"github.com/determined-ai/taskrank/pkg/checkpoint"
)

// unsolvedPlotTime stands in for the time of unsolved tasks in time plots.
const unsolvedPlotTime = -1.0

// TaskTime is the solve time of one task.
type TaskTime struct {
	Task   string
	Time   float64
	Solved bool
}

// TimeSummary summarizes the solve times of one checkpoint.
type TimeSummary struct {
	Checkpoint    string
	Experiment    string
	Domain        string
	Iteration     int
	Solved        int
	Total         int
	MeanSolveTime float64
	TotalTime     float64
	Tasks         []TaskTime
}

// taskTimes returns the times metric of every task that recorded it, in display order. Unsolved
// tasks get the unsolved time.
func taskTimes(ckpt *checkpoint.Checkpoint, metric string, unsolved float64) ([]TaskTime, error) {
	var out []TaskTime
	for _, task := range ckpt.SortedTasks() {
		m, ok := ckpt.RecognitionTaskMetrics[task][metric]
		if !ok {
			continue
		}
		switch m.Kind {
		case checkpoint.KindNull:
			out = append(out, TaskTime{Task: task, Time: unsolved})
		case checkpoint.KindScalar:
			out = append(out, TaskTime{Task: task, Time: m.Scalar, Solved: true})
		default:
			return nil, errors.Errorf("times metric %s of task %s is a %s", metric, task, m.Kind)
		}
	}
	return out, nil
}

// ExportTaskTimes logs the solve times of every checkpoint. Unsolved tasks are charged the
// checkpoint's enumeration timeout.
func (a *Analyzer) ExportTaskTimes(ctx context.Context) ([]TimeSummary, error) {
	var summaries []TimeSummary
	for j, path := range a.cfg.Checkpoints {
		res, err := a.loader.LoadResult(ctx, path, a.cfg.Export)
		if err != nil {
			return nil, err
		}
		experiment := a.experimentName(j)
		logger := a.logContext(res, experiment)
		logger.Info("logging task times")

		timeout, hasTimeout := res.Checkpoint.EnumerationTimeout()
		times, err := taskTimes(res.Checkpoint, a.cfg.Times, timeout)
		if err != nil {
			return nil, err
		}

		s := TimeSummary{
			Checkpoint: path,
			Experiment: experiment,
			Domain:     res.Domain,
			Iteration:  res.Iterations,
			Total:      len(times),
			Tasks:      times,
		}
		var solved []float64
		for _, tt := range times {
			if tt.Solved {
				solved = append(solved, tt.Time)
			} else if !hasTimeout {
				return nil, errors.Errorf(
					"%s has unsolved tasks but no %s parameter", path, checkpoint.EnumerationTimeoutParam)
			}
			s.TotalTime += tt.Time
		}
		s.Solved = len(solved)
		s.MeanSolveTime = math.NaN()
		if len(solved) > 0 {
			s.MeanSolveTime = stat.Mean(solved, nil)
		}

		logger.Infof("solved tasks: %d", s.Solved)
		logger.Infof("total tasks this round: %d", s.Total)
		logger.Infof("average solve time (secs): %v", s.MeanSolveTime)
		logger.Infof("total time spent solving tasks (secs): %v", s.TotalTime)
		for _, tt := range times {
			logger.Infof("TASK: %s TIME: %v", checkpoint.FormattedName(tt.Task), tt.Time)
		}

		for _, o := range []struct {
			name  string
			value float64
		}{
			{"solved_tasks", float64(s.Solved)},
			{"total_tasks", float64(s.Total)},
			{"mean_solve_time_seconds", s.MeanSolveTime},
			{"total_time_seconds", s.TotalTime},
		} {
			a.observe(report.Observation{
				Analysis:   report.TaskTimes,
				Name:       o.name,
				Experiment: experiment,
				Checkpoint: path,
				Metric:     a.cfg.Times,
				Iteration:  res.Iterations,
				Value:      o.value,
			})
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// PlotTimeMetrics plots every metric to plot against the solve times of each checkpoint, once
// plain and once with task labels.
func (a *Analyzer) PlotTimeMetrics(ctx context.Context) error {
	var errs *multierror.Error
	for j, path := range a.cfg.Checkpoints {
		res, err := a.loader.LoadResult(ctx, path, a.cfg.Export)
		if err != nil {
			return err
		}
		experiment := a.experimentName(j)
		times, err := taskTimes(res.Checkpoint, a.cfg.Times, unsolvedPlotTime)
		if err != nil {
			return err
		}

		for _, metric := range a.cfg.MetricsToPlot {
			a.logContext(res, experiment).WithField("metric", metric).Info("plotting metric")
			if err := a.plotTimeMetric(res, experiment, metric, times); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

func (a *Analyzer) plotTimeMetric(
	res *storage.Result, experiment, metric string, times []TaskTime,
) error {
	threshold := a.cfg.OutlierThreshold
	var names []string
	var xs, ys []float64
	for _, tt := range times {
		m, ok := res.Checkpoint.RecognitionTaskMetrics[tt.Task][metric]
		if !ok || m.IsNull() {
			continue
		}
		if m.Kind != checkpoint.KindScalar {
			return errors.Errorf("metric %s of task %s is a %s, expected a scalar", metric, tt.Task, m.Kind)
		}
		if threshold > 0 && !(tt.Time < threshold) {
			continue
		}
		names = append(names, checkpoint.FormattedName(tt.Task))
		xs = append(xs, tt.Time)
		ys = append(ys, m.Scalar)
	}
	if len(xs) == 0 {
		a.logContext(res, experiment).WithField("metric", metric).Warn("no tasks to plot")
		return nil
	}

	xlabel := "Recognition Best Times"
	thresholdName := "None"
	if threshold > 0 {
		xlabel = fmt.Sprintf("Recognition Best Times, Outlier Threshold: %v", threshold)
		thresholdName = checkpoint.FormatFloat(threshold)
	}
	title := fmt.Sprintf("Experiment: %s Domain: %s, Iteration: %d", experiment, res.Domain, res.Iterations)
	exportName := experiment + metric + "_iters_" + iterationString(res.Iterations) +
		"outlier_threshold_" + thresholdName + "_time_plot.png"
	dir := res.ExportDir(a.cfg.Export)

	if err := plots.Scatter(xs, ys, filepath.Join(dir, exportName), xlabel, metric, title); err != nil {
		return err
	}
	points := make([]float64, 0, 2*len(xs))
	for i := range xs {
		points = append(points, xs[i], ys[i])
	}
	if floats.HasNaN(points) {
		return errors.Errorf("metric %s has NaN values", metric)
	}
	return plots.EmbeddingWithLabels(
		pointMatrix(points), names, title, filepath.Join(dir, "labels_"+exportName), xlabel, metric)
}
