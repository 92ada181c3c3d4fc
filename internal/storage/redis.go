package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a blob backend backed by a shared Redis instance, with a
// companion pub/sub channel published on every write. That channel is
// the most literal analogue of the browser's cross-tab storage-change
// event this repository has: multiple processes sharing one Redis
// instance observe each other's writes the way two tabs observe one
// localStorage. Always a "custom"-capability provider.
type Redis struct {
	rdb        *redis.Client
	key        string
	changesKey string
}

var _ Backend = (*Redis)(nil)
var _ Prober = (*Redis)(nil)

// NewRedis creates a Redis backend storing the token blob at key and
// publishing change notifications on key+":changes".
func NewRedis(rdb *redis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key, changesKey: key + ":changes"}
}

func (r *Redis) Name() string { return "custom:redis" }
func (r *Redis) Keyed() bool  { return false }

func (r *Redis) Probe(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("storage: redis backend unavailable: %w", err)
	}
	return nil
}

func (r *Redis) GetItem(ctx context.Context, _ string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: redis read: %w", err)
	}
	return v, true, nil
}

func (r *Redis) SetItem(ctx context.Context, _ string, value string) error {
	if err := r.rdb.Set(ctx, r.key, value, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis write: %w", err)
	}
	return r.publishChange(ctx, value)
}

func (r *Redis) RemoveItem(ctx context.Context, subkey string) error {
	return r.Clear(ctx)
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("storage: redis clear: %w", err)
	}
	return r.publishChange(ctx, "")
}

func (r *Redis) publishChange(ctx context.Context, newValue string) error {
	if err := r.rdb.Publish(ctx, r.changesKey, newValue).Err(); err != nil {
		return fmt.Errorf("storage: redis publish change: %w", err)
	}
	return nil
}

// Subscribe returns a Redis pub/sub subscription to this backend's
// change channel, consumed by crosstab.RedisSource.
func (r *Redis) Subscribe(ctx context.Context) *redis.PubSub {
	return r.rdb.Subscribe(ctx, r.changesKey)
}
