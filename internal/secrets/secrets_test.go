package secrets_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/secrets"
)

func TestStatic(t *testing.T) {
	src := secrets.Static{"openai": "sk-1", "blank": " "}
	v, err := src.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-1", v)

	_, err = src.Get(context.Background(), "blank")
	require.ErrorIs(t, err, secrets.ErrNotFound)
}

type brokenSource struct{}

func (brokenSource) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestChain(t *testing.T) {
	chain := secrets.Chain{secrets.Static{}, nil, secrets.Static{"search": "abc"}}
	v, err := chain.Get(context.Background(), "search")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = chain.Get(context.Background(), "openai")
	require.ErrorIs(t, err, secrets.ErrNotFound)

	_, err = secrets.Chain{brokenSource{}, secrets.Static{"openai": "x"}}.Get(context.Background(), "openai")
	require.Error(t, err)
	assert.NotErrorIs(t, err, secrets.ErrNotFound)
}

func TestLookup(t *testing.T) {
	v, err := secrets.Lookup(context.Background(), secrets.Static{}, "openai")
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = secrets.Lookup(context.Background(), nil, "openai")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestVault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
		if r.URL.Path != "/v1/kv/data/router" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     map[string]any{"openai": "sk-vault"},
				"metadata": map[string]any{"version": 1},
			},
		})
	}))
	defer srv.Close()

	src, err := secrets.NewVault(secrets.VaultConfig{Address: srv.URL, Token: "root-token", Mount: "kv", Path: "router"})
	require.NoError(t, err)

	v, err := src.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-vault", v)

	_, err = src.Get(context.Background(), "search")
	require.ErrorIs(t, err, secrets.ErrNotFound)

	missing, err := secrets.NewVault(secrets.VaultConfig{Address: srv.URL, Token: "root-token", Mount: "kv", Path: "other"})
	require.NoError(t, err)
	_, err = missing.Get(context.Background(), "openai")
	require.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestNewVaultRequiresPath(t *testing.T) {
	_, err := secrets.NewVault(secrets.VaultConfig{Address: "http://127.0.0.1:8200"})
	require.Error(t, err)
}
