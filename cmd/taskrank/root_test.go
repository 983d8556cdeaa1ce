package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"

	"github.com/determined-ai/taskrank/internal/config"
)

func TestUnmarshalConfigurationViaViper(t *testing.T) {
	raw := `
checkpoints:
  - s3://results/list_it=2.json
  - gs://results/list_it=4.json
experiment_names: [baseline, contextual]
ground_truth_checkpoints:
  - data/list_it=2.json
  - data/list_it=2.json
clustering_analysis_metrics: [taskLogProductions]
similarity_ordering: mds
tsne:
  perplexity: 5
  iterations: 500
log:
  level: debug
`
	expected := config.DefaultConfig()
	expected.Checkpoints = []string{"s3://results/list_it=2.json", "gs://results/list_it=4.json"}
	expected.ExperimentNames = []string{"baseline", "contextual"}
	expected.GroundTruthCheckpoints = []string{"data/list_it=2.json", "data/list_it=2.json"}
	expected.ClusteringAnalysisMetrics = []string{"taskLogProductions"}
	expected.SimilarityOrdering = "mds"
	expected.TSNE.Perplexity = 5
	expected.TSNE.Iterations = 500
	expected.Log.Level = "debug"
	err := expected.Resolve()
	assert.NilError(t, err)

	err = mergeConfigBytesIntoViper([]byte(raw))
	assert.NilError(t, err)
	cfg, err := getConfig(v.AllSettings())
	assert.NilError(t, err)
	assert.DeepEqual(t, cfg, expected)
	assert.Equal(t, cfg.SimilarityOrdering, config.OrderingMDS)
}

func TestUnknownConfigurationField(t *testing.T) {
	_, err := getConfig(map[string]interface{}{"tsne_rate": 3})
	require.ErrorContains(t, err, "cannot unmarshal configuration")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TASKRANK_EXPORT", "plots")
	t.Setenv("TASKRANK_OUTLIER_THRESHOLD", "2.5")
	t.Setenv("TASKRANK_METRICS_TO_PLOT", "logPosterior entropy")
	t.Setenv("TASKRANK_TSNE_LEARNING_RATE", "100")

	cfg, err := getConfig(v.AllSettings())
	require.NoError(t, err)
	assert.Equal(t, cfg.Export, "plots")
	assert.Equal(t, cfg.OutlierThreshold, 2.5)
	assert.DeepEqual(t, cfg.MetricsToPlot, []string{"logPosterior", "entropy"})
	assert.Equal(t, cfg.TSNE.LearningRate, 100.0)
}

func TestConfigKey(t *testing.T) {
	key := configKey{"tsne", "learning-rate"}
	assert.Equal(t, key.FlagName(), "tsne-learning-rate")
	assert.Equal(t, key.AccessPath(), "tsne..learning_rate")
	assert.Equal(t, key.EnvName(), "TASKRANK_TSNE_LEARNING_RATE")
}

func TestFlags(t *testing.T) {
	flags := rootCmd.Flags()
	export := flags.ShorthandLookup("e")
	require.NotNil(t, export)
	assert.Equal(t, export.Name, "export")

	for _, name := range []string{
		"checkpoints", "experiment-names", "metrics-to-plot", "tsne-perplexity",
		"clustering-analysis-metrics", "similarity-with-tsne", "results-db", "s3-region",
	} {
		require.NotNil(t, flags.Lookup(name), name)
	}
}

func TestReadConfigFile(t *testing.T) {
	bs, err := readConfigFile("")
	require.NoError(t, err)
	require.Nil(t, bs)

	_, err = readConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "error finding configuration file")
}
