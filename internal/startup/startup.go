package startup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codex-k8s/command-router/internal/catalog"
	"github.com/codex-k8s/command-router/internal/executil"
)

// Run executes configured startup hooks sequentially. A failing optional hook
// is logged and skipped; any other failure stops startup.
func Run(ctx context.Context, hooks []catalog.HookConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for idx, hook := range hooks {
		if strings.TrimSpace(hook.Command) == "" {
			continue
		}
		hookCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout := catalog.Duration(hook.Timeout, 0); timeout > 0 {
			hookCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		logger.Info("Running startup hook", "index", idx, "command", hook.Command)
		res, err := executil.Run(hookCtx, executil.Command{
			Path:    hook.Command,
			Args:    hook.Args,
			Env:     hook.Env,
			Literal: true,
		}, nil)
		cancel()

		output := strings.TrimSpace(res.Output)
		if err != nil {
			if hook.Optional {
				logger.Warn("Optional startup hook failed", "index", idx, "command", hook.Command, "error", err)
				continue
			}
			if output != "" {
				logger.Error("Startup hook failed", "index", idx, "output", output)
			}
			return fmt.Errorf("startup hook %d (%s) failed: %w", idx, hook.Command, err)
		}
		if output != "" {
			logger.Info("Startup hook output", "index", idx, "output", output)
		}
	}
	return nil
}
