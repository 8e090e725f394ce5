package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codex-k8s/command-router/internal/security"
)

func TestRedactArguments(t *testing.T) {
	in := map[string]any{"name": "ubuntu", "api_key": "k", "Password": "p"}
	out := security.RedactArguments(in)
	assert.Equal(t, map[string]any{"name": "ubuntu", "api_key": "***", "Password": "***"}, out)
	assert.Equal(t, "k", in["api_key"])
	assert.Nil(t, security.RedactArguments(nil))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t,
		"postgres://%2A%2A%2A@db:5432/router",
		security.RedactURL("postgres://router:hunter2@db:5432/router"))
	assert.Equal(t,
		"https://search.local/search?key=%2A%2A%2A&q=go",
		security.RedactURL("https://search.local/search?q=go&key=abc"))
	assert.Equal(t, "redis:6379", security.RedactURL("redis:6379"))
}
