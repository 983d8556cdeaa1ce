// Package config defines the configuration of a taskrank run.
package config

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/determined-ai/taskrank/pkg/check"
	"github.com/determined-ai/taskrank/pkg/logger"
)

// Clustering methods and similarity orderings.
const (
	ClusteringDPGMM = "dpgmm"
	OrderingMDS     = "MDS"
)

// NoExperimentName labels checkpoints whose experiment was not named.
const NoExperimentName = "none"

// Config is the configuration of a run. Every field can be set from the config file, the
// environment or a flag.
type Config struct {
	ConfigFile string        `json:"config_file"`
	Log        logger.Config `json:"log"`

	Checkpoints     []string `json:"checkpoints"`
	ExperimentNames []string `json:"experiment_names"`
	Export          string   `json:"export"`
	Times           string   `json:"times"`
	ApplySoftmax    bool     `json:"apply_softmax"`

	ExportTaskTimes  bool     `json:"export_task_times"`
	MetricsToPlot    []string `json:"metrics_to_plot"`
	OutlierThreshold float64  `json:"outlier_threshold"`

	MetricsToCluster []string   `json:"metrics_to_cluster"`
	TSNE             TSNEConfig `json:"tsne"`
	LabelWithImages  bool       `json:"label_with_images"`
	PrintExamples    string     `json:"print_examples"`

	ClusteringAnalysisMetrics       []string `json:"clustering_analysis_metrics"`
	GroundTruthCheckpoints          []string `json:"ground_truth_checkpoints"`
	ClusteringMethod                string   `json:"clustering_method"`
	CompareToGroundTruthStarts      bool     `json:"compare_to_ground_truth_starts"`
	CompareToExpectedProductionUses bool     `json:"compare_to_expected_production_uses"`

	SimilarityAnalysisMetrics []string `json:"similarity_analysis_metrics"`
	SimilarityOrdering        string   `json:"similarity_ordering"`
	SimilarityWithTSNE        bool     `json:"similarity_with_tsne"`

	CacheSize   int       `json:"cache_size"`
	MetricsFile string    `json:"metrics_file"`
	ResultsDB   string    `json:"results_db"`
	S3          S3Config  `json:"s3"`
	GCS         GCSConfig `json:"gcs"`
}

// TSNEConfig configures the t-SNE plots.
type TSNEConfig struct {
	LearningRate float64 `json:"learning_rate"`
	Perplexity   float64 `json:"perplexity"`
	Iterations   int     `json:"iterations"`
}

// Validate implements the check.Validatable interface.
func (t TSNEConfig) Validate() []error {
	return []error{
		check.GreaterThan(t.LearningRate, 0, "tsne learning rate must be positive"),
		check.GreaterThan(t.Perplexity, 0, "tsne perplexity must be positive"),
		check.GreaterThanOrEqualTo(float64(t.Iterations), 1, "tsne iterations must be at least 1"),
	}
}

// S3Config configures access to s3:// checkpoints.
type S3Config struct {
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
}

// GCSConfig configures access to gs:// checkpoints.
type GCSConfig struct {
	Endpoint string `json:"endpoint"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log:                       *logger.DefaultConfig(),
		Checkpoints:               []string{},
		ExperimentNames:           []string{},
		Export:                    "data",
		Times:                     "recognitionBestTimes",
		MetricsToPlot:             []string{},
		MetricsToCluster:          []string{},
		ClusteringAnalysisMetrics: []string{},
		GroundTruthCheckpoints:    []string{},
		SimilarityAnalysisMetrics: []string{},
		TSNE: TSNEConfig{
			LearningRate: 250,
			Perplexity:   30,
			Iterations:   10000,
		},
		ClusteringMethod: ClusteringDPGMM,
		CacheSize:        8,
		S3: S3Config{
			Region: "us-west-2",
		},
	}
}

// Resolve fills values that depend on other settings.
func (c *Config) Resolve() error {
	if len(c.ExperimentNames) == 0 {
		c.ExperimentNames = make([]string, len(c.Checkpoints))
		for i := range c.ExperimentNames {
			c.ExperimentNames[i] = NoExperimentName
		}
	}
	c.ClusteringMethod = strings.ToLower(c.ClusteringMethod)
	if strings.EqualFold(c.SimilarityOrdering, OrderingMDS) {
		c.SimilarityOrdering = OrderingMDS
	}
	return nil
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	errs := []error{
		check.NotEmpty(c.Export, "export directory must be set"),
		check.NotEmpty(c.Times, "times metric must be set"),
		check.Equal(len(c.ExperimentNames), len(c.Checkpoints),
			"experiment names must match the checkpoints one to one"),
		check.OneOf(c.ClusteringMethod, []string{ClusteringDPGMM}, "invalid clustering method"),
		check.OneOf(c.SimilarityOrdering, []string{"", OrderingMDS}, "invalid similarity ordering"),
		check.GreaterThan(float64(c.CacheSize), 0, "cache size must be positive"),
		check.GreaterThanOrEqualTo(c.OutlierThreshold, 0, "outlier threshold must not be negative"),
	}
	if len(c.ClusteringAnalysisMetrics) > 0 || len(c.SimilarityAnalysisMetrics) > 0 {
		errs = append(errs, check.GreaterThanOrEqualTo(
			float64(len(c.GroundTruthCheckpoints)), float64(len(c.Checkpoints)),
			"every checkpoint needs a ground truth checkpoint"))
	}
	if c.ResultsDB != "" {
		if _, err := url.Parse(c.ResultsDB); err != nil {
			errs = append(errs, errors.Wrap(err, "invalid results database url"))
		}
	}
	return errs
}

// Printable returns the configuration as JSON with credentials hidden.
func (c Config) Printable() ([]byte, error) {
	const hiddenValue = "********"
	if u, err := url.Parse(c.ResultsDB); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), hiddenValue)
			c.ResultsDB = u.String()
		}
	}

	optJSON, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}
