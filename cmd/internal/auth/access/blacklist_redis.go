package access

import (
	"context"
	"time"

	"warden/cmd/internal/clock"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "warden:blacklist:"

// RedisClient is the subset of *redis.Client used by RedisBlacklist.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisBlacklist stores one key per revoked token id with a TTL equal to the token's remaining
// lifetime, so Redis purges entries on its own.
type RedisBlacklist struct {
	client RedisClient
	clock  clock.Clock
}

// NewRedisBlacklist returns a Redis-backed Blacklist.
func NewRedisBlacklist(client RedisClient, clk clock.Clock) *RedisBlacklist {
	return &RedisBlacklist{client: client, clock: clock.OrSystem(clk)}
}

// Add implements Blacklist. Entries already past expiry are not written.
func (b *RedisBlacklist) Add(ctx context.Context, e BlacklistEntry) error {
	ttl := e.ExpiresAt.Sub(b.clock.Now())
	if ttl <= 0 {
		return nil
	}
	// Round up to whole seconds; the key may outlive the token but never expires first.
	ttl = ttl.Truncate(time.Second) + time.Second
	return b.client.Set(ctx, redisKeyPrefix+e.TokenID, 1, ttl).Err()
}

// Contains implements Blacklist.
func (b *RedisBlacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.client.Exists(ctx, redisKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Purge implements Blacklist. Keys expire by TTL, so there is nothing to do.
func (b *RedisBlacklist) Purge(context.Context, time.Time) (int, error) { return 0, nil }
