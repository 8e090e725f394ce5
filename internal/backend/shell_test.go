//go:build !windows

package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/backend"
	"github.com/codex-k8s/command-router/internal/executil"
)

func TestShellTrimsOutput(t *testing.T) {
	sh := backend.Shell{Command: executil.Command{Path: "echo", Args: []string{"  ${path}  "}}}
	out, err := sh.Execute(context.Background(), map[string]any{"path": "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp", out.(backend.CommandOutput).Output)
}

func TestShellNonZeroExitIsBackendError(t *testing.T) {
	sh := backend.Shell{Command: executil.Command{Path: "ls", Args: []string{"/definitely/missing/dir"}}}
	_, err := sh.Execute(context.Background(), nil)
	require.ErrorIs(t, err, backend.ErrBackend)
}

func TestShellDetach(t *testing.T) {
	sh := backend.Shell{Command: executil.Command{Path: "sleep", Args: []string{"0"}}, Detach: true}
	out, err := sh.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Positive(t, out.(backend.Started).PID)
}
