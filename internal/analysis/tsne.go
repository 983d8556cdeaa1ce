package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/taskrank/internal/manifold"
	"github.com/determined-ai/taskrank/internal/plots"
	"github.com/determined-ai/taskrank/internal/stats"
	"github.com/determined-ai/taskrank/internal/storage"
	"github.com/determined-ai/taskrank/pkg/checkpoint"
)

// Example formats understood by --print-examples.
const (
	ExampleTypeText = "text"
	ExampleTypeList = "list"
)

func (a *Analyzer) tsne() manifold.TSNE {
	t := manifold.DefaultTSNE()
	t.LearningRate = a.cfg.TSNE.LearningRate
	t.Perplexity = a.cfg.TSNE.Perplexity
	t.Iterations = a.cfg.TSNE.Iterations
	return t
}

// PlotTSNE embeds every metric to cluster with t-SNE and plots the embedding, labelled with task
// names or task images.
func (a *Analyzer) PlotTSNE(ctx context.Context) error {
	for j, path := range a.cfg.Checkpoints {
		res, err := a.loader.LoadResult(ctx, path, a.cfg.Export)
		if err != nil {
			return err
		}
		experiment := a.experimentName(j)
		for _, metric := range a.cfg.MetricsToCluster {
			if err := a.plotMetricTSNE(res, experiment, metric); err != nil {
				return errors.Wrapf(err, "metric %s of %s", metric, path)
			}
		}
	}
	return nil
}

func (a *Analyzer) plotMetricTSNE(res *storage.Result, experiment, metric string) error {
	logger := a.logContext(res, experiment).WithField("metric", metric)
	logger.Info("clustering metric")

	tasks := res.Checkpoint.SortedTasks()
	if a.cfg.PrintExamples != "" {
		for _, task := range tasks {
			if res.Checkpoint.RecognitionTaskMetrics[task].Has(metric) {
				printExamples(a.cfg.PrintExamples, task, res.Checkpoint.Tasks[task])
			}
		}
	}

	names, vecs, err := vectors(res.Checkpoint, metric, tasks)
	if err != nil {
		return err
	}
	if len(vecs) == 0 {
		logger.Warn("no tasks recorded the metric")
		return nil
	}
	logger.Infof("clustering %d tasks with embeddings of length %d", len(vecs), len(vecs[0]))

	if a.cfg.ApplySoftmax {
		vecs = softmaxAll(vecs)
	}
	x, err := stats.Rows(vecs)
	if err != nil {
		return err
	}
	stats.L2NormalizeRows(x)
	embedded, err := a.tsne().Embed(x)
	if err != nil {
		return errors.Wrap(err, "embedding metric")
	}

	title := fmt.Sprintf("Metric: %s, Domain: %s, Experiment: %s, Iteration: %d",
		metric, res.Domain, experiment, res.Iterations)
	base := experiment + metric + "_iters_" + iterationString(res.Iterations)
	dir := res.ExportDir(a.cfg.Export)

	if a.cfg.LabelWithImages {
		images, err := taskImages(res, names)
		if err != nil {
			return err
		}
		return plots.EmbeddingWithImages(
			embedded, images, title, filepath.Join(dir, base+"_tsne_images.png"))
	}
	return plots.EmbeddingWithLabels(
		embedded, formattedNames(names), title, filepath.Join(dir, base+"_tsne_labels.png"), "", "")
}

// taskImages decodes the recorded image of every task under the decoder of the result's domain.
func taskImages(res *storage.Result, tasks []string) ([]image.Image, error) {
	images := make([]image.Image, 0, len(tasks))
	for _, task := range tasks {
		m, ok := res.Checkpoint.RecognitionTaskMetrics[task][TaskImagesMetric]
		if !ok || m.IsNull() {
			return nil, errors.Errorf("task %s has no %s", task, TaskImagesMetric)
		}
		pixels, err := m.AsVector(checkpoint.Grammar{})
		if err != nil {
			return nil, errors.Wrapf(err, "%s of task %s", TaskImagesMetric, task)
		}
		im, err := plots.DecodeTaskImage(res.Domain, pixels)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding image of task %s", task)
		}
		images = append(images, im)
	}
	return images, nil
}

// printExamples logs the input/output examples of a task.
func printExamples(exampleType, name string, task checkpoint.Task) {
	lines := []string{name}
	for _, raw := range task.Examples {
		lines = append(lines, formatExample(exampleType, raw))
	}
	log.Info(strings.Join(lines, "\n"))
}

func formatExample(exampleType string, raw json.RawMessage) string {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return string(raw)
	}
	var inputs []json.RawMessage
	if err := json.Unmarshal(pair[0], &inputs); err != nil || len(inputs) == 0 {
		return string(raw)
	}

	switch exampleType {
	case ExampleTypeText:
		in, okIn := joinStrings(inputs[0])
		out, okOut := joinStrings(pair[1])
		if okIn && okOut {
			return in + " -> " + out
		}
	case ExampleTypeList:
		return string(inputs[0]) + " -> " + string(pair[1])
	}
	return string(raw)
}

func joinStrings(raw json.RawMessage) (string, bool) {
	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return strings.Join(parts, ""), true
}
