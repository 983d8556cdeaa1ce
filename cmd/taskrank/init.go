package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/determined-ai/taskrank/internal/config"
)

var v *viper.Viper

// version is set at link time.
var version = "dev"

// viperKeyDelimiter marks nested values in the configuration. It is ".." rather than "." so that
// metric names and locations containing "." are not split into nested keys.
const viperKeyDelimiter = ".."

//nolint:gochecknoinit
func init() {
	rootCmd.Version = version
	registerConfig()
}

type configKey []string

func (c configKey) EnvName() string {
	return "TASKRANK_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func bind(flags *pflag.FlagSet, name configKey, value any) {
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerStringP(flags *pflag.FlagSet, name configKey, shorthand, value string, usage string) {
	flags.StringP(name.FlagName(), shorthand, value, usage)
	bind(flags, name, value)
}

func registerStringSlice(flags *pflag.FlagSet, name configKey, value []string, usage string) {
	flags.StringSlice(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerFloat64(flags *pflag.FlagSet, name configKey, value float64, usage string) {
	flags.Float64(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerConfig() {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := config.DefaultConfig()

	// Register flags and environment variables, and set default values for the flags.
	flags := rootCmd.Flags()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")
	registerBool(flags, name("log", "json"),
		defaults.Log.JSON, "output logs as JSON lines")

	registerStringSlice(flags, name("checkpoints"),
		defaults.Checkpoints, "checkpoint locations (paths, file://, s3:// or gs://)")
	registerStringSlice(flags, name("experiment-names"),
		defaults.ExperimentNames, "experiment name of each checkpoint")
	registerStringP(flags, name("export"), "e",
		defaults.Export, "directory plots are written to")
	registerString(flags, name("times"),
		defaults.Times, "metric holding the task solve times")
	registerBool(flags, name("apply-softmax"),
		defaults.ApplySoftmax, "apply a softmax to metric vectors before comparing them")

	registerBool(flags, name("export-task-times"),
		defaults.ExportTaskTimes, "log the task solve times of every checkpoint")
	registerStringSlice(flags, name("metrics-to-plot"),
		defaults.MetricsToPlot, "scalar metrics to plot against the solve times")
	registerFloat64(flags, name("outlier-threshold"),
		defaults.OutlierThreshold, "only plot tasks solved faster than this many seconds (0 disables)")

	registerStringSlice(flags, name("metrics-to-cluster"),
		defaults.MetricsToCluster, "metrics to embed with t-SNE")
	registerFloat64(flags, name("tsne", "learning-rate"),
		defaults.TSNE.LearningRate, "t-SNE learning rate")
	registerFloat64(flags, name("tsne", "perplexity"),
		defaults.TSNE.Perplexity, "t-SNE perplexity")
	registerInt(flags, name("tsne", "iterations"),
		defaults.TSNE.Iterations, "t-SNE iterations")
	registerBool(flags, name("label-with-images"),
		defaults.LabelWithImages, "label t-SNE plots with task images instead of names")
	registerString(flags, name("print-examples"),
		defaults.PrintExamples, "log the examples of embedded tasks as [text, list]")

	registerStringSlice(flags, name("clustering-analysis-metrics"),
		defaults.ClusteringAnalysisMetrics, "metrics to cluster and compare with the ground truth")
	registerStringSlice(flags, name("ground-truth-checkpoints"),
		defaults.GroundTruthCheckpoints, "ground truth checkpoint of each checkpoint")
	registerString(flags, name("clustering-method"),
		defaults.ClusteringMethod, "clustering method")
	registerBool(flags, name("compare-to-ground-truth-starts"),
		defaults.CompareToGroundTruthStarts, "score clusters against the ground truth starts")
	registerBool(flags, name("compare-to-expected-production-uses"),
		defaults.CompareToExpectedProductionUses, "score clusters against expected production use clusters")

	registerStringSlice(flags, name("similarity-analysis-metrics"),
		defaults.SimilarityAnalysisMetrics, "metrics to compare with the ground truth similarities")
	registerString(flags, name("similarity-ordering"),
		defaults.SimilarityOrdering, "order ground truth tasks by [MDS]")
	registerBool(flags, name("similarity-with-tsne"),
		defaults.SimilarityWithTSNE, "also plot t-SNE embeddings of the compared metrics")

	registerInt(flags, name("cache-size"),
		defaults.CacheSize, "number of decoded checkpoints kept in memory")
	registerString(flags, name("metrics-file"),
		defaults.MetricsFile, "write run results to this Prometheus textfile")
	registerString(flags, name("results-db"),
		defaults.ResultsDB, "store run results in this Postgres database")
	registerString(flags, name("s3", "region"),
		defaults.S3.Region, "region of s3:// checkpoints")
	registerString(flags, name("s3", "endpoint"),
		defaults.S3.Endpoint, "endpoint for s3:// checkpoints")
	registerString(flags, name("gcs", "endpoint"),
		defaults.GCS.Endpoint, "endpoint for gs:// checkpoints")
}
