package mqttcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(&buf, LogLevelWarn)

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	logger.Warn("shown", LogFields{"k": "v"})
	logger.Error("shown too", nil)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "shown too")
	assert.Contains(t, out, "map[k:v]")
}

func TestStdLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(&buf, LogLevelInfo).WithFields(LogFields{LogFieldClientID: "c1"})

	logger.Info("connected", nil)
	assert.Contains(t, buf.String(), "c1")
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	logger.Info("nothing happens", nil)
	assert.Equal(t, LogLevelNone, logger.Level())
}
