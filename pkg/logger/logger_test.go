package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/assert"
)

func TestConfigValidate(t *testing.T) {
	assert.Equal(t, len(DefaultConfig().Validate()), 0)
	errs := Config{Level: "loud"}.Validate()
	assert.Equal(t, len(errs), 1)
	assert.ErrorContains(t, errs[0], "invalid log level")
}

func TestSetLogrus(t *testing.T) {
	defer func() {
		SetLogrus(*DefaultConfig())
		logrus.SetLevel(logrus.InfoLevel)
	}()

	SetLogrus(Config{Level: "debug"})
	assert.Equal(t, logrus.GetLevel(), logrus.DebugLevel)

	SetLogrus(Config{Level: "loud", JSON: true})
	assert.Equal(t, logrus.GetLevel(), logrus.DebugLevel)
	_, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.Assert(t, ok)
}

func TestFormatter(t *testing.T) {
	text, ok := Config{Color: false}.Formatter().(*logrus.TextFormatter)
	assert.Assert(t, ok)
	assert.Assert(t, text.DisableColors)
	assert.Assert(t, text.FullTimestamp)
}
