package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	goruntime "runtime"

	"github.com/codex-k8s/command-router/configs"
	"github.com/codex-k8s/command-router/internal/audit"
	"github.com/codex-k8s/command-router/internal/catalog"
	"github.com/codex-k8s/command-router/internal/config"
	"github.com/codex-k8s/command-router/internal/log"
	"github.com/codex-k8s/command-router/internal/metrics"
	"github.com/codex-k8s/command-router/internal/nlu"
	"github.com/codex-k8s/command-router/internal/recorder"
	"github.com/codex-k8s/command-router/internal/runtime"
	"github.com/codex-k8s/command-router/internal/secrets"
	"github.com/codex-k8s/command-router/internal/templates"
)

// env bundles everything a subcommand needs.
type env struct {
	cfg       config.Config
	logger    *slog.Logger
	catalog   *catalog.Catalog
	templates *templates.Bundle
	metrics   *metrics.Collectors
	router    *runtime.Router
	closers   []io.Closer
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	return errors.Join(errs...)
}

func bootstrap(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, logCloser, err := log.Open(log.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if err := e.init(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) init(ctx context.Context) error {
	cat, err := loadCatalog(e.cfg)
	if err != nil {
		return err
	}
	e.catalog = cat

	e.templates, err = templates.Load(e.cfg.Lang)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	e.metrics = metrics.New()

	store, err := recorder.Open(ctx, recorder.Options{
		Type:          e.cfg.Recorder,
		Path:          e.cfg.RecorderPath,
		DSN:           e.cfg.RecorderDSN,
		RedisAddr:     e.cfg.RedisAddr,
		RedisPassword: e.cfg.RedisPassword,
		RedisDB:       e.cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}

	src, err := secretSource(e.cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	router, err := runtime.Builder{
		Logger:    e.logger,
		Audit:     audit.New(e.logger),
		Templates: e.templates,
		Metrics:   e.metrics,
		Secrets:   src,
		Interpreter: nlu.Options{
			Provider: e.cfg.LLMProvider,
			Model:    e.cfg.LLMModel,
			BaseURL:  e.cfg.LLMBaseURL,
		},
		VMPaths: e.cfg.VMPaths,
		Store:   store,
	}.Build(ctx, cat)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build router: %w", err)
	}
	e.router = router
	e.closers = append(e.closers, router)
	return nil
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	path := catalogPath
	if path == "" {
		path = cfg.CatalogPath
	}
	var (
		cat *catalog.Catalog
		err error
	)
	switch {
	case embeddedConfig != "" || path == "":
		name := embeddedConfig
		if name == "" {
			name = configs.ForPlatform(goruntime.GOOS)
		}
		raw, rerr := configs.Load(name)
		if rerr != nil {
			return nil, rerr
		}
		cat, err = catalog.LoadBytes(name, raw)
	default:
		cat, err = catalog.LoadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func secretSource(cfg config.Config) (secrets.Source, error) {
	chain := secrets.Chain{secrets.Static(cfg.APIKeys)}
	if cfg.VaultAddr != "" {
		vault, err := secrets.NewVault(secrets.VaultConfig{
			Address: cfg.VaultAddr,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
			Path:    cfg.VaultPath,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, vault)
	}
	return chain, nil
}
