package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"

	"github.com/determined-ai/taskrank/internal/config"
	"github.com/determined-ai/taskrank/internal/report"
	"github.com/determined-ai/taskrank/internal/storage"
)

const (
	fixtureName   = "list_it=2_ET=720.json"
	timeoutFree   = "list_it=2.json"
	testTimeout   = 720.0
	tsneTestIters = 300
)

func entry(program string, uses []float64) map[string]any {
	return map[string]any{
		"program":        program,
		"logLikelihood":  0,
		"logPrior":       -1,
		"productionUses": uses,
	}
}

func frontier(entries ...map[string]any) map[string]any {
	return map[string]any{"entries": entries}
}

// fixture is a checkpoint with three "map" and three "fold" training tasks, three held out tasks
// and one unsolved task. Recognition metrics equal the expected production uses.
func fixture(withTimeout bool) map[string]any {
	metrics := map[string]any{}
	solutions := map[string]any{"unsolved": frontier()}
	for i := 1; i <= 3; i++ {
		for _, group := range []struct {
			name    string
			program string
			uses    []float64
		}{
			{"map", "(lambda (map $0))", []float64{1, 0.1 * float64(i), 0}},
			{"fold", "(lambda (fold $0 0 +))", []float64{0, 0.1 * float64(i), 1}},
		} {
			task := fmt.Sprintf("%s%d", group.name, i)
			solutions[task] = frontier(entry(group.program, group.uses))
			metrics[task] = map[string]any{
				"recognitionBestTimes":   float64(i),
				"logPosterior":           -float64(i),
				"taskLogProductions":     group.uses,
				"expectedProductionUses": group.uses,
				"taskImages":             []float64{0, 1, 1, float64(i)},
			}
		}
	}
	for task, e := range map[string]map[string]any{
		"tmap1":  entry("(lambda (map $0))", []float64{1, 0.05, 0}),
		"tmap2":  entry("(lambda (map (map $0)))", []float64{1, 0.15, 0}),
		"tfold1": entry("(lambda (fold $0 1 *))", []float64{0, 0.05, 1}),
	} {
		metrics[task] = map[string]any{
			"frontier":                  frontier(e),
			"heldoutTaskLogProductions": e["productionUses"],
		}
	}
	metrics["unsolved"] = map[string]any{"recognitionBestTimes": nil}

	doc := map[string]any{
		"recognitionTaskMetrics": metrics,
		"taskSolutions":          solutions,
		"grammars": []any{map[string]any{"productions": []any{
			map[string]any{"program": "map"},
			map[string]any{"program": "fold"},
			map[string]any{"program": "+"},
		}}},
		"tasks": map[string]any{
			"map1": map[string]any{"type": "list", "examples": []any{
				[]any{[]any{[]int{1, 2}}, []int{2, 3}},
			}},
		},
	}
	if withTimeout {
		doc["parameters"] = map[string]any{"enumerationTimeout": testTimeout}
	}
	return doc
}

func writeFixture(t *testing.T, dir, name string, withTimeout bool) string {
	t.Helper()
	bs, err := json.Marshal(fixture(withTimeout))
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, bs, 0o600))
	return path
}

func testAnalyzer(t *testing.T, modify func(c *config.Config)) (*Analyzer, *config.Config, *report.Report) {
	t.Helper()
	dir := t.TempDir()
	path := writeFixture(t, dir, fixtureName, true)

	cfg := config.DefaultConfig()
	cfg.Checkpoints = []string{path}
	cfg.GroundTruthCheckpoints = []string{path}
	cfg.Export = filepath.Join(dir, "export")
	cfg.TSNE.Iterations = tsneTestIters
	if modify != nil {
		modify(cfg)
	}
	require.NoError(t, cfg.Resolve())

	loader, err := storage.NewLoader(storage.NewRouter(storage.Config{}), storage.DefaultCacheSize)
	require.NoError(t, err)
	rep := report.New()
	return New(cfg, loader, rep), cfg, rep
}

func requireFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err, path)
	require.Positive(t, info.Size())
}

func TestHeldoutMetric(t *testing.T) {
	assert.Equal(t, HeldoutMetric("taskLogProductions"), "heldoutTaskLogProductions")
	assert.Equal(t, HeldoutMetric("contextualLogProductions"), "heldoutTaskLogProductions")
	assert.Equal(t, HeldoutMetric("startProductions"), "heldoutStartProductions")
	assert.Equal(t, HeldoutMetric("frontier"), "None")
}

func TestExportTaskTimes(t *testing.T) {
	a, _, rep := testAnalyzer(t, nil)
	summaries, err := a.ExportTaskTimes(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, s.Domain, "list")
	assert.Equal(t, s.Iteration, 2)
	assert.Equal(t, s.Experiment, config.NoExperimentName)
	assert.Equal(t, s.Solved, 6)
	assert.Equal(t, s.Total, 7)
	require.InDelta(t, 2.0, s.MeanSolveTime, 1e-9)
	require.InDelta(t, 12.0+testTimeout, s.TotalTime, 1e-9)

	var unsolved []TaskTime
	for _, tt := range s.Tasks {
		if !tt.Solved {
			unsolved = append(unsolved, tt)
		}
	}
	require.Equal(t, []TaskTime{{Task: "unsolved", Time: testTimeout}}, unsolved)

	require.Equal(t, 4, rep.Len())
	assert.DeepEqual(t, rep.Names(report.TaskTimes), []string{
		"mean_solve_time_seconds", "solved_tasks", "total_tasks", "total_time_seconds",
	})
}

func TestExportTaskTimesRequiresTimeout(t *testing.T) {
	a, cfg, _ := testAnalyzer(t, nil)
	cfg.Checkpoints = []string{writeFixture(t, t.TempDir(), timeoutFree, false)}
	_, err := a.ExportTaskTimes(context.Background())
	require.ErrorContains(t, err, "enumerationTimeout")
}

func TestPlotTimeMetrics(t *testing.T) {
	a, cfg, _ := testAnalyzer(t, func(c *config.Config) {
		c.MetricsToPlot = []string{"logPosterior"}
	})
	require.NoError(t, a.PlotTimeMetrics(context.Background()))
	name := "nonelogPosterior_iters_2outlier_threshold_None_time_plot.png"
	requireFile(t, filepath.Join(cfg.Export, "list", name))
	requireFile(t, filepath.Join(cfg.Export, "list", "labels_"+name))

	cfg.OutlierThreshold = 2.5
	require.NoError(t, a.PlotTimeMetrics(context.Background()))
	requireFile(t, filepath.Join(cfg.Export, "list",
		"nonelogPosterior_iters_2outlier_threshold_2.5_time_plot.png"))
}

func TestPlotTimeMetricsRejectsVectors(t *testing.T) {
	a, _, _ := testAnalyzer(t, func(c *config.Config) {
		c.MetricsToPlot = []string{"taskLogProductions", "logPosterior"}
	})
	err := a.PlotTimeMetrics(context.Background())
	require.ErrorContains(t, err, "expected a scalar")
}

func TestPlotTSNE(t *testing.T) {
	a, cfg, _ := testAnalyzer(t, func(c *config.Config) {
		c.MetricsToCluster = []string{"taskLogProductions", "frontier"}
		c.ApplySoftmax = true
		c.PrintExamples = ExampleTypeList
	})
	require.NoError(t, a.PlotTSNE(context.Background()))
	requireFile(t, filepath.Join(cfg.Export, "list", "nonetaskLogProductions_iters_2_tsne_labels.png"))
	requireFile(t, filepath.Join(cfg.Export, "list", "nonefrontier_iters_2_tsne_labels.png"))

	cfg.LabelWithImages = true
	cfg.MetricsToCluster = []string{"taskLogProductions"}
	require.NoError(t, a.PlotTSNE(context.Background()))
	requireFile(t, filepath.Join(cfg.Export, "list", "nonetaskLogProductions_iters_2_tsne_images.png"))

	cfg.MetricsToCluster = []string{"frontier"}
	require.ErrorContains(t, a.PlotTSNE(context.Background()), "has no taskImages")
}

func TestGroundTruthStarts(t *testing.T) {
	a, _, _ := testAnalyzer(t, nil)
	starts, err := a.GroundTruthStarts(context.Background())
	require.NoError(t, err)
	require.Len(t, starts, 1)

	s := starts[0]
	assert.DeepEqual(t, s.StartToTrains, map[string][]string{
		"map":  {"map1", "map2", "map3"},
		"fold": {"fold1", "fold2", "fold3"},
	})
	assert.DeepEqual(t, s.StartToTests, map[string][]string{
		"map":  {"tmap1", "tmap2"},
		"fold": {"tfold1"},
	})
	_, ok := s.TrainToStart["unsolved"]
	require.False(t, ok)
}

func TestClusteringAnalysis(t *testing.T) {
	a, _, rep := testAnalyzer(t, func(c *config.Config) {
		c.ClusteringAnalysisMetrics = []string{"taskLogProductions"}
		c.CompareToGroundTruthStarts = true
		c.CompareToExpectedProductionUses = true
	})
	cr, err := a.ClusteringAnalysis(context.Background())
	require.NoError(t, err)
	require.Len(t, cr.Metrics, 1)

	mc := cr.Metrics[0]
	assert.Equal(t, mc.HeldoutMetric, "heldoutTaskLogProductions")
	require.Len(t, mc.Clusters, 1)
	require.Equal(t, 6, mc.Clusters[0].Train.Len())
	require.Equal(t, 3, mc.Clusters[0].Test.Len())

	for _, scores := range [][]float64{
		mc.StartsARI.Train, mc.StartsARI.Test, mc.ExpectedUsesARI.Train, mc.ExpectedUsesARI.Test,
	} {
		require.Len(t, scores, 1)
		require.GreaterOrEqual(t, scores[0], -1.0)
		require.LessOrEqual(t, scores[0], 1.0)
	}
	// The metric equals the expected production uses, so both clusterings agree.
	require.InDelta(t, 1.0, mc.ExpectedUsesARI.Train[0], 1e-9)

	for _, group := range mc.TrainIntersections {
		require.GreaterOrEqual(t, len(group), 2)
	}
	assert.DeepEqual(t, rep.Names(report.Clustering), []string{"expected_uses_ari", "starts_ari"})
}

func TestSimilarityAnalysis(t *testing.T) {
	a, cfg, rep := testAnalyzer(t, func(c *config.Config) {
		c.ExperimentNames = []string{"exp"}
		c.SimilarityAnalysisMetrics = []string{"taskLogProductions"}
		c.SimilarityOrdering = "mds"
		c.SimilarityWithTSNE = true
	})
	sr, err := a.SimilarityAnalysis(context.Background())
	require.NoError(t, err)

	require.Len(t, sr.GroundTruth, 1)
	require.Equal(t, 6, sr.GroundTruth[0].Train.Len())
	require.Equal(t, 3, sr.GroundTruth[0].Test.Len())

	require.Len(t, sr.Metrics, 1)
	ms := sr.Metrics[0]
	require.Equal(t, 6, ms.TrainTasks)
	require.Equal(t, 3, ms.TestTasks)
	require.True(t, ms.TrainMSE.Valid)
	require.True(t, ms.TestMSE.Valid)
	require.InDelta(t, 0, ms.TrainMSE.Float64, 1e-12)
	require.InDelta(t, 0, ms.TestMSE.Float64, 1e-12)

	for _, name := range []string{
		"exp_it_2_taskLogProductions_train_similarities.png",
		"exp_it_2_taskLogProductions_train_scatter.png",
		"exp_it_2_taskLogProductions_train_tsne.png",
		"exp_it_2_taskLogProductions_test_similarities.png",
		"exp_gt_train_tsne.png",
		"exp_gt_test_tsne.png",
	} {
		requireFile(t, filepath.Join(cfg.Export, name))
	}
	require.Equal(t, 2, len(rep.Observations))
}

func TestSimilarityWithoutHeldoutMetric(t *testing.T) {
	a, _, _ := testAnalyzer(t, func(c *config.Config) {
		c.SimilarityAnalysisMetrics = []string{"expectedProductionUses"}
	})
	sr, err := a.SimilarityAnalysis(context.Background())
	require.NoError(t, err)
	require.Len(t, sr.Metrics, 1)
	require.True(t, sr.Metrics[0].TrainMSE.Valid)
	require.False(t, sr.Metrics[0].TestMSE.Valid)
}

func TestRun(t *testing.T) {
	a, _, rep := testAnalyzer(t, func(c *config.Config) {
		c.ExportTaskTimes = true
		c.SimilarityAnalysisMetrics = []string{"taskLogProductions"}
		c.ClusteringAnalysisMetrics = []string{"taskLogProductions"}
		c.CompareToGroundTruthStarts = true
	})
	require.NoError(t, a.Run(context.Background()))
	require.NotEmpty(t, rep.Names(report.TaskTimes))
	require.NotEmpty(t, rep.Names(report.Clustering))
	require.NotEmpty(t, rep.Names(report.Similarity))
}

func TestRunMissingCheckpoint(t *testing.T) {
	a, cfg, _ := testAnalyzer(t, func(c *config.Config) {
		c.ExportTaskTimes = true
	})
	cfg.Checkpoints = []string{filepath.Join(t.TempDir(), "list_it=1.json")}
	require.ErrorContains(t, a.Run(context.Background()), "exporting task times")
}

func TestFormatExample(t *testing.T) {
	cases := []struct {
		exampleType string
		raw         string
		expected    string
	}{
		{ExampleTypeList, `[[[1,2]],[2,3]]`, "[1,2] -> [2,3]"},
		{ExampleTypeText, `[[["a","b"]],["c"]]`, "ab -> c"},
		{"other", `[[1],2]`, "[[1],2]"},
		{ExampleTypeList, `"bare"`, `"bare"`},
	}
	for _, tc := range cases {
		assert.Equal(t, formatExample(tc.exampleType, json.RawMessage(tc.raw)), tc.expected)
	}
}
