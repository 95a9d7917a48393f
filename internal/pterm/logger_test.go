package pterm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, false, true)

	logger.Section("Query agent")
	logger.Info("Sending prompt", "endpoint", "agent-ep")
	logger.Debug("hidden")
	logger.Success("done")
	logger.Block(`{"response":"hi"}`)

	assert.Equal(t, "\n== Query agent ==\n"+
		"[INFO] Sending prompt (endpoint=agent-ep)\n"+
		"[SUCCESS] done\n"+
		`{"response":"hi"}`+"\n", buf.String())
}

func TestDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, true, true)

	logger.Debugf("base_url=%s", "https://h/serving-endpoints")
	assert.Equal(t, "[DEBUG] base_url=https://h/serving-endpoints\n", buf.String())
	assert.True(t, logger.IsDebugEnabled())
}

func TestFormatMessageOddArgs(t *testing.T) {
	assert.Equal(t, "msg (a=1)", formatMessage("msg", "a", 1, "dangling"))
	assert.Equal(t, "msg", formatMessage("msg", "dangling"))
}
