package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/determined-ai/taskrank/internal/analysis"
	"github.com/determined-ai/taskrank/internal/config"
	"github.com/determined-ai/taskrank/internal/report"
	"github.com/determined-ai/taskrank/internal/storage"
	"github.com/determined-ai/taskrank/pkg/check"
	"github.com/determined-ai/taskrank/pkg/logger"
)

const defaultConfigPath = "/etc/taskrank/taskrank.yaml"

var rootCmd = &cobra.Command{
	Use:   "taskrank",
	Short: "Analyze the per-task recognition metrics of training checkpoints",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRoot(cmd.Context()); err != nil {
			log.Error(fmt.Sprintf("%+v", err))
			os.Exit(1)
		}
	},
}

func runRoot(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := initializeConfig()
	if err != nil {
		return err
	}
	logger.SetLogrus(cfg.Log)

	printableConfig, err := cfg.Printable()
	if err != nil {
		return err
	}
	log.Infof("taskrank configuration: %s", printableConfig)

	loader, err := storage.NewLoader(storage.NewRouter(storage.Config{
		S3Region:    cfg.S3.Region,
		S3Endpoint:  cfg.S3.Endpoint,
		GCSEndpoint: cfg.GCS.Endpoint,
	}), cfg.CacheSize)
	if err != nil {
		return err
	}

	rep := report.New()
	log.WithFields(log.Fields{
		"run_id":   rep.RunID,
		"run_name": rep.RunName,
	}).Info("starting analysis run")
	if err := analysis.New(cfg, loader, rep).Run(ctx); err != nil {
		return err
	}
	return exportReport(ctx, cfg, rep)
}

// exportReport writes the run results to the configured sinks.
func exportReport(ctx context.Context, cfg *config.Config, rep *report.Report) error {
	if cfg.MetricsFile != "" {
		if err := rep.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
		log.Infof("wrote %d results to %s", rep.Len(), cfg.MetricsFile)
	}
	if cfg.ResultsDB == "" {
		return nil
	}

	sink, err := report.ConnectPostgres(ctx, cfg.ResultsDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Error("failed to close results database")
		}
	}()
	return sink.Write(ctx, rep)
}

// initializeConfig returns the validated configuration populated from the config file,
// environment variables and command line flags.
func initializeConfig() (*config.Config, error) {
	// Fetch an initial config to get the config file path and read its settings into Viper.
	initialConfig, err := getConfig(v.AllSettings())
	if err != nil {
		return nil, err
	}

	bs, err := readConfigFile(initialConfig.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err = mergeConfigBytesIntoViper(bs); err != nil {
		return nil, err
	}

	cfg, err := getConfig(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if err := check.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(configPath string) ([]byte, error) {
	isDefault := configPath == ""
	if isDefault {
		configPath = defaultConfigPath
	}

	var err error
	if _, err = os.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			log.Debugf("no configuration file at %s, skipping", configPath)
			return nil, nil
		}
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}

func mergeConfigBytesIntoViper(bs []byte) error {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return errors.Wrap(err, "error unmarshal yaml configuration file")
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return errors.Wrap(err, "error merge configuration to viper")
	}
	return nil
}

func getConfig(configMap map[string]interface{}) (*config.Config, error) {
	cfg := config.DefaultConfig()
	bs, err := json.Marshal(configMap)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}
	if err = yaml.Unmarshal(bs, &cfg, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}
