package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultSeenPrefix = "scholarships:seen:"

// RedisSeenSet stores seen keys with SET NX EX so expiry is handled by redis.
type RedisSeenSet struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSeenSet wraps an existing client.
func NewRedisSeenSet(client *redis.Client, prefix string, ttl time.Duration) *RedisSeenSet {
	if prefix == "" {
		prefix = defaultSeenPrefix
	}
	if ttl <= 0 {
		ttl = defaultSeenTTL
	}
	return &RedisSeenSet{client: client, prefix: prefix, ttl: ttl}
}

// MarkSeen returns true when the key was not present.
func (r *RedisSeenSet) MarkSeen(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, domain.NewStorageError("mark seen", err)
	}
	return ok, nil
}

// Close closes the underlying client.
func (r *RedisSeenSet) Close() error { return r.client.Close() }

// SeenOptions selects and configures the seen-set backend.
type SeenOptions struct {
	Type          string
	TTL           time.Duration
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewSeenSet builds the configured seen-set. When the primary store is bbolt
// it doubles as the seen-set; otherwise a separate bbolt file is opened.
func NewSeenSet(ctx context.Context, primary Store, opts SeenOptions) (SeenSet, func() error, error) {
	noop := func() error { return nil }

	switch opts.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, domain.NewStorageError("redis ping", err)
		}
		set := NewRedisSeenSet(client, "", opts.TTL)
		return set, set.Close, nil
	case "", "bbolt":
		if s, ok := primary.(SeenSet); ok {
			return s, noop, nil
		}
		return OpenBoltSeenSet(opts.BoltPath, Options{SeenTTL: opts.TTL})
	default:
		return nil, nil, fmt.Errorf("unsupported seen store %q", opts.Type)
	}
}
