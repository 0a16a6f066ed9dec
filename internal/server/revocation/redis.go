package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gophauth:revoked:"

// minRedisTTL keeps a key alive briefly even when the token is about to
// expire, so two racing redeemers still see each other.
const minRedisTTL = time.Second

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis keeps one key per revoked jti. Keys expire with the token, so
// PurgeExpired has nothing to do.
type Redis struct {
	client redisClient
	now    func() time.Time
}

func NewRedis(client redisClient, now func() time.Time) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, now: now}, nil
}

// NewRedisFromURL parses a redis:// or rediss:// URL and builds a store
// over a fresh client. The client is returned so the caller can close it.
func NewRedisFromURL(rawURL string) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	store, err := NewRedis(client, nil)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client, nil
}

func (r *Redis) Revoke(ctx context.Context, jti string, reason auth.Reason, until time.Time) (bool, error) {
	ttl := until.Sub(r.now())
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}

	created, err := r.client.SetNX(ctx, redisKeyPrefix+jti, string(reason), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return created, nil
}

func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
