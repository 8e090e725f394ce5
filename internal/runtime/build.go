package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"time"

	"github.com/codex-k8s/command-router/internal/audit"
	"github.com/codex-k8s/command-router/internal/backend"
	"github.com/codex-k8s/command-router/internal/cache"
	"github.com/codex-k8s/command-router/internal/catalog"
	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/dispatch"
	"github.com/codex-k8s/command-router/internal/engine"
	"github.com/codex-k8s/command-router/internal/executil"
	"github.com/codex-k8s/command-router/internal/guard"
	"github.com/codex-k8s/command-router/internal/metrics"
	"github.com/codex-k8s/command-router/internal/nlu"
	"github.com/codex-k8s/command-router/internal/recorder"
	"github.com/codex-k8s/command-router/internal/registry"
	"github.com/codex-k8s/command-router/internal/resolver"
	"github.com/codex-k8s/command-router/internal/secrets"
	"github.com/codex-k8s/command-router/internal/templates"
)

// Builder constructs a router engine from the capability catalog.
type Builder struct {
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Audit records dispatch events.
	Audit audit.Logger
	// Templates provides localized messages.
	Templates templates.Renderer
	// Metrics collects dispatch metrics; nil disables them.
	Metrics *metrics.Collectors
	// Secrets resolves api keys for the interpreter and backends.
	Secrets secrets.Source
	// Interpreter selects the provider; Rules and APIKey are filled by Build.
	Interpreter nlu.Options
	// VMPaths override the catalog vm_paths.
	VMPaths map[string]string
	// Store persists interaction records.
	Store recorder.Store
	// Runner replaces hypervisor command execution, for tests.
	Runner backend.Runner
}

// Router is a built, ready-to-serve engine with its parts.
type Router struct {
	Engine   *engine.Engine
	Registry *registry.Registry
	Recorder *recorder.Recorder
	Catalog  *catalog.Catalog
}

// Close releases the history store.
func (r *Router) Close() error {
	return r.Recorder.Close()
}

// Build creates the registry, interpreter, dispatcher and engine.
func (b Builder) Build(ctx context.Context, cat *catalog.Catalog) (*Router, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if b.Store == nil {
		return nil, fmt.Errorf("history store is nil")
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.New()
	hv := &backend.Hypervisor{
		Kind:    cat.Router.Hypervisor.Kind,
		Binary:  cat.Router.Hypervisor.Binary,
		VMPaths: mergePaths(cat.Router.Hypervisor.VMPaths, b.VMPaths),
		Run:     b.Runner,
	}
	var search *backend.Search
	guards := map[string]guard.Chain{}
	var rules []nlu.Rule

	for _, capCfg := range cat.Capabilities {
		schema, err := buildSchema(capCfg.Arguments)
		if err != nil {
			return nil, fmt.Errorf("capability %s: %w", capCfg.Name, err)
		}

		var exec registry.Executor
		switch capCfg.Backend.Type {
		case constants.BackendSearch:
			if search == nil {
				search, err = b.buildSearch(ctx, cat.Router.Search)
				if err != nil {
					return nil, fmt.Errorf("capability %s: %w", capCfg.Name, err)
				}
			}
			exec = search
		default:
			exec, err = buildExecutor(capCfg.Backend, hv)
			if err != nil {
				return nil, fmt.Errorf("capability %s: %w", capCfg.Name, err)
			}
		}

		if err := reg.Register(registry.Descriptor{
			Name:        capCfg.Name,
			Description: capCfg.Description,
			Schema:      schema,
			Executor:    exec,
			Timeout:     catalog.Duration(capCfg.Timeout, 0),
			ReadOnly:    capCfg.ReadOnly,
			CacheTTL:    catalog.Duration(capCfg.CacheTTL, 0),
		}); err != nil {
			return nil, err
		}

		if capCfg.Limits.MaxTotal > 0 || capCfg.Limits.RatePerMinute > 0 {
			guards[capCfg.Name] = guard.Chain{
				guard.NewLimits(capCfg.Name+"-limits", capCfg.Limits.MaxTotal, capCfg.Limits.RatePerMinute, b.Templates),
			}
		}
		for _, phrase := range capCfg.Interpret.Phrases {
			rules = append(rules, nlu.Rule{
				Capability: capCfg.Name,
				Pattern:    phrase,
				Confidence: capCfg.Interpret.Confidence,
			})
		}
	}
	reg.Seal()

	interpOpts := b.Interpreter
	interpOpts.Rules = rules
	if interpOpts.APIKey == "" && interpOpts.Provider != "" && interpOpts.Provider != constants.ProviderRules {
		key, err := secrets.Lookup(ctx, b.Secrets, interpOpts.Provider)
		if err != nil {
			return nil, fmt.Errorf("resolve %s api key: %w", interpOpts.Provider, err)
		}
		interpOpts.APIKey = key
	}
	interpreter, err := nlu.New(interpOpts, reg)
	if err != nil {
		return nil, fmt.Errorf("build interpreter: %w", err)
	}

	var resultCache *cache.Cache
	if hasCachedCapability(cat) {
		resultCache = cache.New(cat.Router.CacheEntries)
	}

	dispatcher := dispatch.New(dispatch.Options{
		Logger:         logger,
		Audit:          b.Audit,
		Guards:         guards,
		Cache:          resultCache,
		Metrics:        b.Metrics,
		DefaultTimeout: catalog.Duration(cat.Router.DefaultTimeout, dispatch.DefaultTimeout),
	})

	var observer recorder.FailureObserver
	if b.Metrics != nil {
		observer = b.Metrics
	}
	rec := recorder.New(b.Store, logger, observer)

	eng, err := engine.New(engine.Options{
		Registry:    reg,
		Interpreter: interpreter,
		Resolver:    resolver.New(reg, cat.Router.AcceptThreshold, logger),
		Dispatcher:  dispatcher,
		Recorder:    rec,
		Renderer:    b.Templates,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Router built",
		"capabilities", reg.Len(),
		"rules", len(rules),
		"interpreter", providerName(interpOpts.Provider),
		"hypervisor", hv.Kind,
	)
	return &Router{Engine: eng, Registry: reg, Recorder: rec, Catalog: cat}, nil
}

func (b Builder) buildSearch(ctx context.Context, cfg catalog.SearchConfig) (*backend.Search, error) {
	key, err := secrets.Lookup(ctx, b.Secrets, cfg.APIKeyRef)
	if err != nil {
		return nil, fmt.Errorf("resolve search api key: %w", err)
	}
	return backend.NewSearch(backend.SearchOptions{
		URL:        cfg.URL,
		APIKey:     key,
		MaxResults: cfg.MaxResults,
		Timeout:    catalog.Duration(cfg.Timeout, 0),
	})
}

func buildExecutor(cfg catalog.BackendConfig, hv *backend.Hypervisor) (registry.Executor, error) {
	switch cfg.Type {
	case constants.BackendShell:
		return backend.Shell{
			Command: executil.Command{
				Path: cfg.Command,
				Args: cfg.Args,
				Env:  cfg.Env,
				Dir:  cfg.Dir,
			},
			Detach: cfg.Detach,
		}, nil
	case constants.BackendHypervisor:
		return hv.Action(cfg.Action)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

func buildSchema(args []catalog.ArgumentConfig) (registry.Schema, error) {
	schema := make(registry.Schema, 0, len(args))
	for _, arg := range args {
		spec := registry.ArgumentSpec{
			Name:        arg.Name,
			Type:        arg.Type,
			Required:    arg.Required,
			Default:     arg.Default,
			Description: arg.Description,
			Constraints: registry.Constraints{
				Min:       arg.Min,
				Max:       arg.Max,
				MinLength: arg.MinLength,
				MaxLength: arg.MaxLength,
				Enum:      arg.Enum,
			},
		}
		if arg.Pattern != "" {
			re, err := regexp.Compile(arg.Pattern)
			if err != nil {
				return nil, fmt.Errorf("argument %s pattern: %w", arg.Name, err)
			}
			spec.Constraints.Pattern = re
		}
		schema = append(schema, spec)
	}
	return schema, nil
}

func mergePaths(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

func hasCachedCapability(cat *catalog.Catalog) bool {
	for _, c := range cat.Capabilities {
		if c.ReadOnly && catalog.Duration(c.CacheTTL, 0) > time.Duration(0) {
			return true
		}
	}
	return false
}

func providerName(p string) string {
	if p == "" {
		return constants.ProviderRules
	}
	return p
}
