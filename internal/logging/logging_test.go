package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"team-activity-pipeline/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogConfig{Level: slog.LevelInfo, Format: "json"})

	logger.Debug("hidden")
	logger.Info("installation created", "installationId", int64(42))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "installation created", record["msg"])
	assert.EqualValues(t, 42, record["installationId"])
}

func TestNewTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogConfig{Level: slog.LevelDebug, Format: "text"})

	logger.Debug("batch submitted", "teamId", 7)

	assert.Contains(t, buf.String(), "msg=\"batch submitted\"")
	assert.Contains(t, buf.String(), "teamId=7")
}

func TestSentryWriterStripsPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogConfig{Level: slog.LevelDebug, Format: "text"})
	w := NewSentryWriter(logger)

	input := []byte("[Sentry] 2024/01/01 12:00:00 Integration installed\nplain line\n")
	n, err := w.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	out := buf.String()
	assert.Contains(t, out, "msg=\"Integration installed\"")
	assert.Contains(t, out, "msg=\"plain line\"")
	assert.NotContains(t, out, "[Sentry]")
}
