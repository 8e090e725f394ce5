package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/log"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, log.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, log.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, log.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("loud"))
}

func TestOpenJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := log.Open(log.Options{Level: "warn", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "capability", "list_vms")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "list_vms", line["capability"])
}

func TestOpenTextWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "router.log")
	var buf bytes.Buffer
	logger, closer, err := log.Open(log.Options{Format: "text", File: path, Output: &buf})
	require.NoError(t, err)

	logger.Info("hello", "session", "cli")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "msg=hello")
	assert.Contains(t, buf.String(), "session=cli")
}
