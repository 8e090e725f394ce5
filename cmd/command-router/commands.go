package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/command-router/internal/app"
	"github.com/codex-k8s/command-router/internal/cli"
	"github.com/codex-k8s/command-router/internal/mcpserver"
	"github.com/codex-k8s/command-router/internal/startup"
)

func newChatCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chat [command...]",
		Short: "Interactive assistant; with arguments, run one command and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := startup.Run(ctx, e.catalog.Router.StartupHooks, e.logger); err != nil {
				return err
			}
			if session == "" {
				session = "cli-" + uuid.NewString()
			}

			if text := strings.TrimSpace(strings.Join(args, " ")); text != "" {
				out := e.router.Engine.Submit(ctx, session, text)
				fmt.Fprintln(cmd.OutOrStdout(), out.Message)
				if out.Succeeded() && out.Result != nil {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatResult(out.Result))
				}
				return nil
			}

			repl := &cli.REPL{
				Engine:    e.router.Engine,
				Templates: e.templates,
				Session:   session,
				In:        cmd.InOrStdin(),
				Out:       cmd.OutOrStdout(),
				Prompt:    "> ",
			}
			return repl.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id (default: random)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the router over MCP (stdio or streamable HTTP)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := startup.Run(ctx, e.catalog.Router.StartupHooks, e.logger); err != nil {
				return err
			}

			server := mcpserver.New(e.router.Engine, mcpserver.Options{
				Name:    e.catalog.Server.Name,
				Version: e.catalog.Server.Version,
				Logger:  e.logger,
			})
			if transport == "" {
				transport = e.catalog.Server.Transport
			}
			switch transport {
			case "stdio":
				e.logger.Info("Serving MCP over stdio")
				return server.Run(ctx, &mcp.StdioTransport{})
			case "http":
				return runHTTP(ctx, e, server)
			default:
				return fmt.Errorf("unknown transport %q", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio or http (default: catalog server.transport)")
	return cmd
}

func runHTTP(ctx context.Context, e *env, server *mcp.Server) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{
		Stateless: e.catalog.Server.HTTP.Stateless,
	})

	application, err := app.New(ctx, e.catalog.Server, handler, map[string]http.Handler{
		"/metrics": e.metrics.Handler(),
	}, e.logger, e.cfg.ShutdownTimeout)
	if err != nil {
		return err
	}
	application.Health().AddCheck("history", func(ctx context.Context) error {
		_, err := e.router.Engine.History(ctx, 1)
		return err
	})
	return application.Run(ctx)
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent interaction records, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			records, err := e.router.Engine.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatRecord(rec))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of records")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the capabilities of the loaded catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			w := cmd.OutOrStdout()
			for _, d := range e.router.Engine.Capabilities() {
				fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Description)
				for _, arg := range d.Schema {
					req := "optional"
					if arg.Required {
						req = "required"
					}
					fmt.Fprintf(w, "    %s (%s, %s)\n", arg.Name, arg.Type, req)
				}
			}
			return nil
		},
	}
}
