package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "pt", cfg.Lang)
	assert.Equal(t, "rules", cfg.LLMProvider)
	assert.Equal(t, "badger", cfg.Recorder)
	assert.Equal(t, "secret", cfg.VaultMount)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.CatalogPath)
}

func TestLoadMaps(t *testing.T) {
	t.Setenv("ROUTER_API_KEYS", "openai:sk-test,search:abc")
	t.Setenv("ROUTER_VM_PATHS", `Ubuntu=C:\VMs\Ubuntu\Ubuntu.vmx,Dev=/vms/dev.vmx`)
	t.Setenv("ROUTER_LANG", "en")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"openai": "sk-test", "search": "abc"}, cfg.APIKeys)
	assert.Equal(t, `C:\VMs\Ubuntu\Ubuntu.vmx`, cfg.VMPaths["Ubuntu"])
	assert.Equal(t, "/vms/dev.vmx", cfg.VMPaths["Dev"])
	assert.Equal(t, "en", cfg.Lang)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	tests := map[string]string{
		"ROUTER_LOG_FORMAT":   "xml",
		"ROUTER_LLM_PROVIDER": "telepathy",
		"ROUTER_RECORDER":     "floppy",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("ROUTER_RECORDER", "postgres")
	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("ROUTER_RECORDER_DSN", "postgres://localhost/router")
	_, err = config.Load()
	require.NoError(t, err)
}
