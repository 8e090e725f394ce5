package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/executil"
)

// CommandOutput is the payload of a shell capability.
type CommandOutput struct {
	Output    string `json:"output"`
	ExitCode  int    `json:"exit_code"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Started is the payload of a detached shell capability.
type Started struct {
	PID     int    `json:"pid"`
	Command string `json:"command"`
}

// Shell runs a fixed argv command with argument placeholders.
type Shell struct {
	Command executil.Command
	// Detach starts the process and returns without waiting for it.
	Detach bool
}

// Execute implements registry.Executor.
func (s Shell) Execute(ctx context.Context, args map[string]any) (any, error) {
	if path := strings.TrimSpace(executil.Expand(s.Command.Path, args)); strings.HasPrefix(path, "-") {
		return nil, &Error{Backend: constants.BackendShell, Detail: fmt.Sprintf("invalid command %q", path)}
	}
	if s.Detach {
		pid, err := executil.Start(s.Command, args)
		if err != nil {
			return nil, fail(constants.BackendShell, err, "start %s", executil.Expand(s.Command.Path, args))
		}
		return Started{PID: pid, Command: executil.Expand(s.Command.Path, args)}, nil
	}

	res, err := executil.Run(ctx, s.Command, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		var exitErr *executil.ExitError
		if errors.As(err, &exitErr) {
			return nil, &Error{Backend: constants.BackendShell, Detail: exitErr.Error()}
		}
		return nil, fail(constants.BackendShell, err, "run %s", executil.Expand(s.Command.Path, args))
	}
	return CommandOutput{
		Output:    strings.TrimSpace(res.Output),
		ExitCode:  res.ExitCode,
		Truncated: res.Truncated,
	}, nil
}
