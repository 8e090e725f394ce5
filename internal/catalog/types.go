package catalog

// Catalog is the top-level YAML document describing the router.
type Catalog struct {
	// Server describes the MCP front end.
	Server ServerConfig `yaml:"server"`
	// Router holds engine-wide settings.
	Router RouterConfig `yaml:"router"`
	// Capabilities lists every capability in registration order.
	Capabilities []CapabilityConfig `yaml:"capabilities"`
}

// ServerConfig defines MCP server settings.
type ServerConfig struct {
	// Name is the MCP server name.
	Name string `yaml:"name"`
	// Version is the MCP server version.
	Version string `yaml:"version"`
	// Transport selects the server transport ("http" or "stdio").
	Transport string `yaml:"transport"`
	// ShutdownTimeout overrides graceful shutdown duration.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// HTTP configures HTTP transport.
	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// Path is the MCP HTTP endpoint path.
	Path string `yaml:"path"`
	// ReadTimeout limits request read time.
	ReadTimeout string `yaml:"read_timeout"`
	// WriteTimeout limits response write time. It must outlast the slowest capability.
	WriteTimeout string `yaml:"write_timeout"`
	// IdleTimeout controls idle connections.
	IdleTimeout string `yaml:"idle_timeout"`
	// Stateless disables MCP session tracking.
	Stateless bool `yaml:"stateless"`
}

// RouterConfig holds interpretation and dispatch settings.
type RouterConfig struct {
	// AcceptThreshold is the minimum interpretation confidence.
	AcceptThreshold float64 `yaml:"accept_threshold"`
	// DefaultTimeout applies to capabilities without their own timeout.
	DefaultTimeout string `yaml:"default_timeout"`
	// CacheEntries bounds the read-only result cache.
	CacheEntries int `yaml:"cache_entries"`
	// Hypervisor configures VM control.
	Hypervisor HypervisorConfig `yaml:"hypervisor"`
	// Search configures the web search backend.
	Search SearchConfig `yaml:"search"`
	// StartupHooks run once before the router starts serving.
	StartupHooks []HookConfig `yaml:"startup_hooks"`
}

// HypervisorConfig selects and configures the hypervisor controller.
type HypervisorConfig struct {
	// Kind is "virtualbox" or "vmware".
	Kind string `yaml:"kind"`
	// Binary overrides VBoxManage or vmrun.
	Binary string `yaml:"binary"`
	// VMPaths maps friendly names to VM handles.
	VMPaths map[string]string `yaml:"vm_paths"`
}

// SearchConfig configures the web search backend.
type SearchConfig struct {
	// URL is the SearXNG-compatible endpoint.
	URL string `yaml:"url"`
	// MaxResults caps returned results.
	MaxResults int `yaml:"max_results"`
	// Timeout bounds one request.
	Timeout string `yaml:"timeout"`
	// APIKeyRef names the api_keys entry used as bearer token.
	APIKeyRef string `yaml:"api_key_ref"`
}

// HookConfig defines a startup hook command.
type HookConfig struct {
	// Command is the executable to run.
	Command string `yaml:"command"`
	// Args are optional arguments.
	Args []string `yaml:"args"`
	// Env adds environment variables for the hook.
	Env map[string]string `yaml:"env"`
	// Timeout controls hook execution duration.
	Timeout string `yaml:"timeout"`
	// Optional hooks only log their failure.
	Optional bool `yaml:"optional"`
}

// CapabilityConfig declares a capability.
type CapabilityConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Timeout bounds one execution.
	Timeout string `yaml:"timeout"`
	// ReadOnly marks capabilities without side effects.
	ReadOnly bool `yaml:"read_only"`
	// CacheTTL caches results of read-only capabilities.
	CacheTTL  string           `yaml:"cache_ttl"`
	Arguments []ArgumentConfig `yaml:"arguments"`
	Backend   BackendConfig    `yaml:"backend"`
	Limits    LimitsConfig     `yaml:"limits"`
	Interpret InterpretConfig  `yaml:"interpret"`
}

// ArgumentConfig declares one argument and its constraints.
type ArgumentConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Required    bool     `yaml:"required"`
	Default     any      `yaml:"default"`
	Description string   `yaml:"description"`
	Pattern     string   `yaml:"pattern"`
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	MinLength   *int     `yaml:"min_length"`
	MaxLength   *int     `yaml:"max_length"`
	Enum        []string `yaml:"enum"`
}

// BackendConfig binds a capability to an execution backend.
type BackendConfig struct {
	// Type is shell, hypervisor or search.
	Type string `yaml:"type"`
	// Command is the executable for shell backends.
	Command string `yaml:"command"`
	// Args are argv entries with ${name} placeholders.
	Args []string `yaml:"args"`
	// Env adds environment variables.
	Env map[string]string `yaml:"env"`
	// Dir is the working directory.
	Dir string `yaml:"dir"`
	// Detach starts the process without waiting for it.
	Detach bool `yaml:"detach"`
	// Action is list, start or stop for hypervisor backends.
	Action string `yaml:"action"`
}

// LimitsConfig caps how often a capability may run.
type LimitsConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	MaxTotal      int `yaml:"max_total"`
}

// InterpretConfig feeds the rule interpreter.
type InterpretConfig struct {
	// Confidence reported when a phrase matches.
	Confidence float64 `yaml:"confidence"`
	// Phrases are regular expressions over lower-cased, accent-free text.
	Phrases []string `yaml:"phrases"`
}
