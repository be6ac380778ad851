package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adbcam/internal/config"
)

func jsonCfg(level string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: "json"}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	logger.Info("hello", slog.String("key", "value"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "value", rec["key"])
}

func TestNewLoggerWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.Info("hello", slog.String("key", "value"))

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "key=value")
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("warn"), &buf)

	logger.Info("suppressed")
	assert.Empty(t, buf.String())

	logger.Warn("emitted")
	assert.Contains(t, buf.String(), "emitted")
}

func TestNewLoggerWithWriter_TimeFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "json", TimeFormat: "2006-01-02"}
	logger := NewLoggerWithWriter(cfg, &buf)

	logger.Info("stamped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	ts, ok := rec["time"].(string)
	require.True(t, ok)
	assert.Len(t, ts, len("2006-01-02"))
}

func TestNewLoggerWithWriter_RedactsSecretFields(t *testing.T) {
	type device struct {
		Serial string `masq:"secret"`
		Model  string
	}

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	logger.Info("device found", slog.Any("device", device{Serial: "R58M12ABCDE", Model: "SM-G991B"}))

	out := buf.String()
	assert.NotContains(t, out, "R58M12ABCDE")
	assert.Contains(t, out, "SM-G991B")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLevel(tt.input), tt.input)
	}
}

func TestNewRunID(t *testing.T) {
	a := NewRunID()
	b := NewRunID()

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestWithRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	WithRunID(logger, "01ARZ3NDEKTSV4RRFFQ69G5FAV").Info("tagged")

	assert.True(t, strings.Contains(buf.String(), "01ARZ3NDEKTSV4RRFFQ69G5FAV"))
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	WithComponent(logger, "lifecycle").Info("tagged")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "lifecycle", rec["component"])
}
