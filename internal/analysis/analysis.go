// Package analysis implements the checkpoint analyses: task time export, time versus metric
// plots, t-SNE plots, clustering against ground truth and similarity against ground truth.
package analysis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/determined-ai/taskrank/internal/config"
	"github.com/determined-ai/taskrank/internal/report"
	"github.com/determined-ai/taskrank/internal/stats"
	"github.com/determined-ai/taskrank/internal/storage"
	"github.com/determined-ai/taskrank/pkg/checkpoint"
)

// Well known metric names.
const (
	FrontierMetric               = "frontier"
	ExpectedProductionUsesMetric = "expectedProductionUses"
	TaskImagesMetric             = "taskImages"
	noHeldoutMetric              = "None"
)

// metricToHeldout names the metric recorded for held out (test) tasks.
var metricToHeldout = map[string]string{
	"startProductions":         "heldoutStartProductions",
	"taskAuxiliaryLossLayer":   "heldoutAuxiliaryLossLayer",
	"taskLogProductions":       "heldoutTaskLogProductions",
	"contextualLogProductions": "heldoutTaskLogProductions",
}

// HeldoutMetric returns the held out counterpart of metric, or "None".
func HeldoutMetric(metric string) string {
	if h, ok := metricToHeldout[metric]; ok {
		return h
	}
	return noHeldoutMetric
}

// Analyzer runs the analyses selected by a configuration.
type Analyzer struct {
	cfg    *config.Config
	loader *storage.Loader
	report *report.Report
}

// New returns an Analyzer. Observations are added to rep, which may be nil.
func New(cfg *config.Config, loader *storage.Loader, rep *report.Report) *Analyzer {
	return &Analyzer{cfg: cfg, loader: loader, report: rep}
}

// Run runs every selected analysis in a fixed order.
func (a *Analyzer) Run(ctx context.Context) error {
	if len(a.cfg.SimilarityAnalysisMetrics) > 0 {
		if _, err := a.SimilarityAnalysis(ctx); err != nil {
			return errors.Wrap(err, "similarity analysis")
		}
	}
	if len(a.cfg.ClusteringAnalysisMetrics) > 0 {
		if _, err := a.ClusteringAnalysis(ctx); err != nil {
			return errors.Wrap(err, "clustering analysis")
		}
	}
	if a.cfg.ExportTaskTimes {
		if _, err := a.ExportTaskTimes(ctx); err != nil {
			return errors.Wrap(err, "exporting task times")
		}
	}
	if len(a.cfg.MetricsToPlot) > 0 {
		if err := a.PlotTimeMetrics(ctx); err != nil {
			return errors.Wrap(err, "plotting time metrics")
		}
	}
	if len(a.cfg.MetricsToCluster) > 0 {
		if err := a.PlotTSNE(ctx); err != nil {
			return errors.Wrap(err, "plotting t-SNE")
		}
	}
	return nil
}

func (a *Analyzer) experimentName(j int) string {
	if j < len(a.cfg.ExperimentNames) {
		return a.cfg.ExperimentNames[j]
	}
	return config.NoExperimentName
}

func (a *Analyzer) logContext(res *storage.Result, experiment string) *log.Entry {
	return log.WithFields(log.Fields{
		"checkpoint": res.Location,
		"experiment": experiment,
		"domain":     res.Domain,
		"iteration":  res.Iterations,
	})
}

// vectors returns the non-null values of metric for the given tasks as vectors, with the tasks
// that had them. Frontiers are summarized under the last grammar of ckpt.
func vectors(
	ckpt *checkpoint.Checkpoint, metric string, tasks []string,
) (names []string, vecs [][]float64, err error) {
	g := ckpt.LastGrammar()
	for _, task := range tasks {
		m, ok := ckpt.RecognitionTaskMetrics[task][metric]
		if !ok || m.IsNull() {
			continue
		}
		v, err := m.AsVector(g)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "metric %s of task %s", metric, task)
		}
		names = append(names, task)
		vecs = append(vecs, v)
	}
	return names, vecs, nil
}

func softmaxAll(vecs [][]float64) [][]float64 {
	out := make([][]float64, len(vecs))
	for i, v := range vecs {
		out[i] = stats.Softmax(v)
	}
	return out
}

func formattedNames(tasks []string) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = checkpoint.FormattedName(t)
	}
	return out
}

// pointMatrix views interleaved x, y coordinates as an n x 2 matrix.
func pointMatrix(points []float64) *mat.Dense {
	return mat.NewDense(len(points)/2, 2, points)
}

func iterationString(it int) string {
	return strconv.Itoa(it)
}

func (a *Analyzer) observe(o report.Observation) {
	a.report.Add(o)
}

func splitName(test bool) string {
	if test {
		return "test"
	}
	return "train"
}

func describe(values []float64) string {
	return fmt.Sprintf("%v", values)
}
