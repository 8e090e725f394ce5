package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig points at one KV v2 secret whose fields are the keys.
type VaultConfig struct {
	Address string
	Token   string
	// Mount is the KV v2 mount, "secret" by default.
	Mount string
	// Path is the secret path under the mount.
	Path string
}

// Vault reads secrets from a HashiCorp Vault KV v2 engine.
type Vault struct {
	client *vault.Client
	mount  string
	path   string
}

// NewVault creates a Vault source. It does not contact the server.
func NewVault(cfg VaultConfig) (*Vault, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("vault path is required")
	}
	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}
	return &Vault{client: client, mount: mount, path: strings.Trim(cfg.Path, "/")}, nil
}

// Get implements Source.
func (v *Vault) Get(ctx context.Context, key string) (string, error) {
	secretPath := fmt.Sprintf("%s/data/%s", v.mount, v.path)
	secret, err := v.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("read vault secret %s: %w", secretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	value, ok := data[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, nil
}
