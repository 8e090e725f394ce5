package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/codex-k8s/command-router/internal/constants"
)

// Config stores environment-driven settings for the router.
type Config struct {
	// CatalogPath is the path to the capability catalog. Empty selects the embedded default.
	CatalogPath string `env:"ROUTER_CATALOG"`
	// LogLevel sets the logger level.
	LogLevel string `env:"ROUTER_LOG_LEVEL" envDefault:"info"`
	// LogFormat is json or text.
	LogFormat string `env:"ROUTER_LOG_FORMAT" envDefault:"json"`
	// LogFile additionally appends log lines to this file.
	LogFile string `env:"ROUTER_LOG_FILE"`
	// Lang selects message language for templates.
	Lang string `env:"ROUTER_LANG" envDefault:"pt"`

	// LLMProvider selects the interpreter: rules, openai or ollama.
	LLMProvider string `env:"ROUTER_LLM_PROVIDER" envDefault:"rules"`
	LLMModel    string `env:"ROUTER_LLM_MODEL"`
	LLMBaseURL  string `env:"ROUTER_LLM_BASE_URL"`
	// APIKeys maps a provider or backend name to its key, e.g. openai:sk-...
	APIKeys map[string]string `env:"ROUTER_API_KEYS"`
	// VMPaths maps VM names to hypervisor handles and wins over the catalog.
	VMPaths map[string]string `env:"ROUTER_VM_PATHS" envKeyValSeparator:"="`

	// Recorder selects the history store: memory, badger, postgres or redis.
	Recorder      string `env:"ROUTER_RECORDER" envDefault:"badger"`
	RecorderPath  string `env:"ROUTER_RECORDER_PATH" envDefault:"data/history"`
	RecorderDSN   string `env:"ROUTER_RECORDER_DSN"`
	RedisAddr     string `env:"ROUTER_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"ROUTER_REDIS_PASSWORD"`
	RedisDB       int    `env:"ROUTER_REDIS_DB" envDefault:"0"`

	VaultAddr  string `env:"ROUTER_VAULT_ADDR"`
	VaultToken string `env:"ROUTER_VAULT_TOKEN"`
	VaultMount string `env:"ROUTER_VAULT_MOUNT" envDefault:"secret"`
	VaultPath  string `env:"ROUTER_VAULT_PATH" envDefault:"command-router"`

	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"ROUTER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses environment variables into Config.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("ROUTER_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	switch c.LLMProvider {
	case constants.ProviderRules, constants.ProviderOpenAI, constants.ProviderOllama:
	default:
		return fmt.Errorf("ROUTER_LLM_PROVIDER must be rules, openai or ollama, got %q", c.LLMProvider)
	}
	switch c.Recorder {
	case constants.RecorderMemory, constants.RecorderBadger, constants.RecorderRedis:
	case constants.RecorderPostgres:
		if strings.TrimSpace(c.RecorderDSN) == "" {
			return fmt.Errorf("ROUTER_RECORDER_DSN is required for the postgres recorder")
		}
	default:
		return fmt.Errorf("ROUTER_RECORDER must be memory, badger, postgres or redis, got %q", c.Recorder)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ROUTER_SHUTDOWN_TIMEOUT must not be negative")
	}
	return nil
}
