package recorder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/codex-k8s/command-router/internal/protocol"
)

const (
	redisSeqKey     = "router:interaction:seq"
	redisHistoryKey = "router:interaction:history"
)

// Redis is a Store keeping records in a sorted set scored by sequence id.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Append implements Store.
func (r *Redis) Append(ctx context.Context, rec protocol.Record) (uint64, error) {
	seq, err := r.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	rec.Sequence = uint64(seq)
	raw, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	if err := r.client.ZAdd(ctx, redisHistoryKey, redis.Z{Score: float64(seq), Member: raw}).Err(); err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}
	return rec.Sequence, nil
}

// History implements Store.
func (r *Redis) History(ctx context.Context, limit int) ([]protocol.Record, error) {
	members, err := r.client.ZRevRange(ctx, redisHistoryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]protocol.Record, 0, len(members))
	for _, member := range members {
		var rec protocol.Record
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}
