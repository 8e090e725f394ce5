package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no source knows the key.
var ErrNotFound = errors.New("secret not found")

// Source resolves named secrets such as provider API keys.
type Source interface {
	Get(ctx context.Context, key string) (string, error)
}

// Static serves secrets from a fixed map, typically ROUTER_API_KEYS.
type Static map[string]string

// Get implements Source.
func (s Static) Get(_ context.Context, key string) (string, error) {
	if v, ok := s[key]; ok && strings.TrimSpace(v) != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Chain asks each source in order and returns the first hit.
type Chain []Source

// Get implements Source. Errors other than ErrNotFound stop the lookup.
func (c Chain) Get(ctx context.Context, key string) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		v, err := src.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Lookup returns the secret or an empty string when it is not configured.
func Lookup(ctx context.Context, src Source, key string) (string, error) {
	if src == nil || strings.TrimSpace(key) == "" {
		return "", nil
	}
	v, err := src.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
