package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "info")

	logger.Debug("hidden")
	logger.Info("usage recorded", "metric", "deals_per_month")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "usage recorded", entry["msg"])
	assert.Equal(t, "quotaledger", entry["service"])
	assert.Equal(t, "deals_per_month", entry["metric"])
}

func TestNewLogger_TextInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "development", "debug").Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
