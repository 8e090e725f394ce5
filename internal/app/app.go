package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/codex-k8s/command-router/internal/catalog"
	"github.com/codex-k8s/command-router/internal/http/health"
)

// App controls the HTTP server lifecycle.
type App struct {
	baseCtx         context.Context
	server          *http.Server
	health          *health.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New initializes the HTTP server with the MCP handler, health endpoints and
// any extra routes such as /metrics.
func New(baseCtx context.Context, serverCfg catalog.ServerConfig, handler http.Handler, extra map[string]http.Handler, logger *slog.Logger, shutdownTimeout time.Duration) (*App, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is nil")
	}
	if baseCtx == nil {
		return nil, fmt.Errorf("base context is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	healthHandler := health.New()
	mux := http.NewServeMux()
	mux.Handle(serverCfg.HTTP.Path, handler)
	mux.HandleFunc("/healthz", healthHandler.Healthz)
	mux.HandleFunc("/readyz", healthHandler.Readyz)
	for path, route := range extra {
		if strings.TrimSpace(path) == "" || route == nil {
			continue
		}
		mux.Handle(path, route)
	}

	srv := &http.Server{
		Addr:         serverCfg.HTTP.Listen,
		Handler:      mux,
		ReadTimeout:  catalog.Duration(serverCfg.HTTP.ReadTimeout, 15*time.Second),
		WriteTimeout: catalog.Duration(serverCfg.HTTP.WriteTimeout, 150*time.Second),
		IdleTimeout:  catalog.Duration(serverCfg.HTTP.IdleTimeout, 60*time.Second),
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	if shutdownTimeout == 0 {
		shutdownTimeout = catalog.Duration(serverCfg.ShutdownTimeout, 10*time.Second)
	}

	return &App{
		baseCtx:         baseCtx,
		server:          srv,
		health:          healthHandler,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// Health exposes the probe handler so callers can register readiness checks.
func (a *App) Health() *health.Handler {
	return a.health
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		a.health.SetReady()
		a.logger.Info("HTTP server started", "addr", ln.Addr().String())
		errCh <- a.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown requested")
		return a.shutdown()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		a.logger.Error("HTTP server error", "error", err)
		return err
	}
}

func (a *App) shutdown() error {
	a.health.SetNotReady()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.baseCtx), a.shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
