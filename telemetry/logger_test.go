package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/infergate/core"
)

func newTestLogger(format string) (*Logger, *bytes.Buffer) {
	logger := NewLogger(core.LoggingConfig{Level: "debug", Format: format}, "infergate")
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	// Tests log errors back to back; rate limiting is exercised separately.
	logger.errorLimiter = nil
	return logger, buf
}

func TestLoggerJSONFormat(t *testing.T) {
	logger, buf := newTestLogger("json")

	logger.Info("task enqueued", map[string]interface{}{
		"operation": "task_submit",
		"task_id":   "abc-123",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "infergate", entry["service"])
	assert.Equal(t, "task enqueued", entry["message"])
	assert.Equal(t, "task_submit", entry["operation"])
	assert.Equal(t, "abc-123", entry["task_id"])
}

func TestLoggerTextFormat(t *testing.T) {
	logger, buf := newTestLogger("text")

	logger.Warn("slow dequeue", map[string]interface{}{"operation": "task_dequeue"})

	line := buf.String()
	assert.Contains(t, line, "[WARN]")
	assert.Contains(t, line, "[infergate]")
	assert.Contains(t, line, "slow dequeue")
	assert.Contains(t, line, "operation=task_dequeue")
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger("text")
	logger.SetLevel("warn")

	logger.Debug("noise", nil)
	logger.Info("more noise", nil)
	assert.Empty(t, buf.String())

	logger.Error("real problem", nil)
	assert.Contains(t, buf.String(), "real problem")
}

func TestLoggerWithComponent(t *testing.T) {
	logger, buf := newTestLogger("json")

	scoped := logger.WithComponent("executor")
	scoped.Info("worker started", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "executor", entry["component"])

	// Parent stays unscoped.
	buf.Reset()
	logger.Info("unscoped", nil)
	entry = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasComponent := entry["component"]
	assert.False(t, hasComponent)
}

func TestLoggerErrorRateLimiting(t *testing.T) {
	logger := NewLogger(core.LoggingConfig{Level: "debug", Format: "text"}, "infergate")
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)

	for i := 0; i < 10; i++ {
		logger.Error("redis connection refused", nil)
	}

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 1, lines, "repeated errors within the limiter interval should emit once")
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(50 * time.Millisecond)

	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestWithTraceFieldsNoSpan(t *testing.T) {
	fields := map[string]interface{}{"k": "v"}
	out := withTraceFields(context.Background(), fields)
	assert.Equal(t, fields, out, "no active span leaves fields untouched")
}
