package recorder

import (
	"context"
	"fmt"

	"github.com/codex-k8s/command-router/internal/constants"
)

// Options selects and configures a Store.
type Options struct {
	// Type is one of constants.Recorder*.
	Type string
	// Path is the badger directory.
	Path string
	// DSN is the postgres connection string.
	DSN string
	// RedisAddr, RedisPassword and RedisDB configure the redis store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the configured Store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Type {
	case constants.RecorderMemory:
		return NewMemory(), nil
	case "", constants.RecorderBadger:
		return OpenBadger(opts.Path)
	case constants.RecorderPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres recorder requires a dsn")
		}
		return OpenPostgres(ctx, opts.DSN)
	case constants.RecorderRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis recorder requires an address")
		}
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	default:
		return nil, fmt.Errorf("unknown recorder type %q", opts.Type)
	}
}
