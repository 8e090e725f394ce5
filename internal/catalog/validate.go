package catalog

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/executil"
	"github.com/codex-k8s/command-router/internal/validate"
)

var capabilityName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate applies defaults and verifies the catalog.
func Validate(cat *Catalog) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}
	if err := validateServer(&cat.Server); err != nil {
		return err
	}
	if err := validateRouter(&cat.Router); err != nil {
		return err
	}
	if len(cat.Capabilities) == 0 {
		return fmt.Errorf("capabilities must not be empty")
	}

	names := map[string]struct{}{}
	for i := range cat.Capabilities {
		capability := &cat.Capabilities[i]
		if !capabilityName.MatchString(capability.Name) {
			return fmt.Errorf("capabilities[%d].name %q must match %s", i, capability.Name, capabilityName)
		}
		if _, exists := names[capability.Name]; exists {
			return fmt.Errorf("duplicate capability name: %s", capability.Name)
		}
		names[capability.Name] = struct{}{}
		if err := validateCapability(cat, capability); err != nil {
			return fmt.Errorf("capabilities[%d] (%s): %w", i, capability.Name, err)
		}
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Name == "" {
		s.Name = "command-router"
	}
	if s.Version == "" {
		s.Version = "0.1.0"
	}
	switch strings.ToLower(strings.TrimSpace(s.Transport)) {
	case "":
		s.Transport = "stdio"
	case "stdio", "http":
		s.Transport = strings.ToLower(strings.TrimSpace(s.Transport))
	default:
		return fmt.Errorf("server.transport must be stdio or http")
	}
	if s.HTTP.Listen == "" {
		s.HTTP.Listen = "127.0.0.1:8080"
	}
	if s.HTTP.Path == "" {
		s.HTTP.Path = "/mcp"
	}
	if !strings.HasPrefix(s.HTTP.Path, "/") {
		return fmt.Errorf("server.http.path must start with /")
	}
	for field, value := range map[string]string{
		"server.shutdown_timeout":   s.ShutdownTimeout,
		"server.http.read_timeout":  s.HTTP.ReadTimeout,
		"server.http.write_timeout": s.HTTP.WriteTimeout,
		"server.http.idle_timeout":  s.HTTP.IdleTimeout,
	} {
		if err := checkDuration(field, value); err != nil {
			return err
		}
	}
	return nil
}

func validateRouter(r *RouterConfig) error {
	if r.AcceptThreshold == 0 {
		r.AcceptThreshold = 0.6
	}
	if r.AcceptThreshold < 0 || r.AcceptThreshold > 1 {
		return fmt.Errorf("router.accept_threshold must be within [0, 1]")
	}
	if r.DefaultTimeout == "" {
		r.DefaultTimeout = "30s"
	}
	if err := checkDuration("router.default_timeout", r.DefaultTimeout); err != nil {
		return err
	}
	if r.CacheEntries < 0 {
		return fmt.Errorf("router.cache_entries must be >= 0")
	}
	switch r.Hypervisor.Kind {
	case "":
		r.Hypervisor.Kind = constants.HypervisorVirtualBox
	case constants.HypervisorVirtualBox, constants.HypervisorVMware:
	default:
		return fmt.Errorf("router.hypervisor.kind must be virtualbox or vmware")
	}
	if r.Search.MaxResults < 0 {
		return fmt.Errorf("router.search.max_results must be >= 0")
	}
	if err := checkDuration("router.search.timeout", r.Search.Timeout); err != nil {
		return err
	}
	for i, hook := range r.StartupHooks {
		if strings.TrimSpace(hook.Command) == "" {
			return fmt.Errorf("router.startup_hooks[%d].command is required", i)
		}
		if err := checkDuration(fmt.Sprintf("router.startup_hooks[%d].timeout", i), hook.Timeout); err != nil {
			return err
		}
	}
	return nil
}

func validateCapability(cat *Catalog, c *CapabilityConfig) error {
	if err := checkDuration("timeout", c.Timeout); err != nil {
		return err
	}
	if err := checkDuration("cache_ttl", c.CacheTTL); err != nil {
		return err
	}
	if c.CacheTTL != "" && !c.ReadOnly {
		return fmt.Errorf("cache_ttl requires read_only")
	}

	declared := make([]string, 0, len(c.Arguments))
	for j, arg := range c.Arguments {
		if strings.TrimSpace(arg.Name) == "" {
			return fmt.Errorf("arguments[%d].name is required", j)
		}
		if slices.Contains(declared, arg.Name) {
			return fmt.Errorf("duplicate argument %q", arg.Name)
		}
		declared = append(declared, arg.Name)
		switch arg.Type {
		case "":
			c.Arguments[j].Type = constants.ArgString
		case constants.ArgString, constants.ArgPath, constants.ArgInteger, constants.ArgNumber, constants.ArgBoolean:
		default:
			return fmt.Errorf("argument %q has unknown type %q", arg.Name, arg.Type)
		}
		if arg.Pattern != "" {
			if _, err := regexp.Compile(arg.Pattern); err != nil {
				return fmt.Errorf("argument %q pattern: %w", arg.Name, err)
			}
		}
		if arg.Required && arg.Default != nil {
			return fmt.Errorf("argument %q cannot be required and have a default", arg.Name)
		}
		if arg.Default != nil {
			if _, err := validate.Coerce(arg.Name, c.Arguments[j].Type, arg.Default); err != nil {
				return fmt.Errorf("argument %q default: %w", arg.Name, err)
			}
		}
	}

	if err := validateBackend(cat, c, declared); err != nil {
		return err
	}
	if c.Limits.RatePerMinute < 0 || c.Limits.MaxTotal < 0 {
		return fmt.Errorf("limits must be >= 0")
	}
	if c.Interpret.Confidence < 0 || c.Interpret.Confidence > 1 {
		return fmt.Errorf("interpret.confidence must be within [0, 1]")
	}
	for k, phrase := range c.Interpret.Phrases {
		re, err := regexp.Compile(phrase)
		if err != nil {
			return fmt.Errorf("interpret.phrases[%d]: %w", k, err)
		}
		for _, group := range re.SubexpNames() {
			if group != "" && !slices.Contains(declared, group) {
				return fmt.Errorf("interpret.phrases[%d] captures undeclared argument %q", k, group)
			}
		}
	}
	return nil
}

func validateBackend(cat *Catalog, c *CapabilityConfig, declared []string) error {
	b := &c.Backend
	switch b.Type {
	case constants.BackendShell:
		if strings.TrimSpace(b.Command) == "" {
			return fmt.Errorf("backend.command is required for shell backends")
		}
		values := append([]string{b.Command, b.Dir}, b.Args...)
		for _, v := range b.Env {
			values = append(values, v)
		}
		for _, name := range executil.Placeholders(values...) {
			if !slices.Contains(declared, name) {
				return fmt.Errorf("backend references undeclared argument %q", name)
			}
		}
	case constants.BackendHypervisor:
		switch b.Action {
		case constants.VMActionList, constants.VMActionStart, constants.VMActionStop:
		default:
			return fmt.Errorf("backend.action must be list, start or stop")
		}
		if b.Action != constants.VMActionList && !slices.Contains(declared, "name") {
			return fmt.Errorf("hypervisor %s requires a name argument", b.Action)
		}
	case constants.BackendSearch:
		if !slices.Contains(declared, "query") {
			return fmt.Errorf("search backends require a query argument")
		}
		if strings.TrimSpace(cat.Router.Search.URL) == "" {
			return fmt.Errorf("search backends require router.search.url")
		}
	case "":
		return fmt.Errorf("backend.type is required")
	default:
		return fmt.Errorf("unknown backend type %q", b.Type)
	}
	return nil
}

func checkDuration(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

// Duration parses a validated duration field, returning def when it is empty.
func Duration(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
