package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	catalogPath    string
	embeddedConfig string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "command-router",
		Short:         "Route natural-language commands to local capabilities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "capability catalog file (overrides ROUTER_CATALOG)")
	root.PersistentFlags().StringVar(&embeddedConfig, "embedded-config", "", "use an embedded catalog from configs/ (default.yaml or windows.yaml; default picks by OS)")

	root.AddCommand(newChatCmd(), newServeCmd(), newHistoryCmd(), newToolsCmd())
	return root
}
