// Package logger configures the process-wide logrus logger.
package logger

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config selects the level and format of log output.
type Config struct {
	Level string `json:"level"`
	Color bool   `json:"color"`
	// JSON switches to one JSON object per line, for runs whose output is collected by a log
	// pipeline. Color is ignored.
	JSON bool `json:"json"`
}

// DefaultConfig returns the default configuration of logger.
func DefaultConfig() *Config {
	return &Config{
		Level: "info",
		Color: true,
	}
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return []error{errors.Wrap(err, "invalid log level")}
	}
	return nil
}

// Formatter returns the logrus formatter described by c.
func (c Config) Formatter() logrus.Formatter {
	if c.JSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   c.Color,
		DisableColors: !c.Color,
	}
}

// SetLogrus configures the standard logrus logger. An invalid level keeps the current one.
func SetLogrus(c Config) {
	if level, err := logrus.ParseLevel(c.Level); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.WithError(err).Warn("keeping current log level")
	}
	logrus.SetFormatter(c.Formatter())
}
