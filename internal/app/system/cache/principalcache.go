// Package cache holds short-lived lookups that are expensive to repeat,
// backed by Redis when one is configured.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "assistanthub:principal:"

// DefaultTTL bounds how long a revoked credential can keep working.
const DefaultTTL = time.Minute

// PrincipalCache maps bearer credentials to resolved principals. Credentials
// are hashed before use as keys. A nil *PrincipalCache is a valid no-op cache.
type PrincipalCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis connects to addr and verifies the connection with a ping.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, log *zap.Logger) (*PrincipalCache, error) {
	if addr == "" {
		return nil, errors.New("cache: redis address is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect to redis at %s: %w", addr, err)
	}
	return &PrincipalCache{client: client, ttl: ttl, log: log}, nil
}

// Key returns the Redis key for token.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached principal for token. Cache errors are logged and
// reported as a miss.
func (c *PrincipalCache) Get(ctx context.Context, token string) (models.Principal, bool) {
	if c == nil {
		return models.Principal{}, false
	}
	raw, err := c.client.Get(ctx, Key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Principal{}, false
	}
	if err != nil {
		c.log.Warn("principal cache read failed", zap.Error(err))
		return models.Principal{}, false
	}
	var p models.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		c.log.Warn("principal cache entry unreadable", zap.Error(err))
		return models.Principal{}, false
	}
	return p, true
}

// Set stores p for token until the TTL expires.
func (c *PrincipalCache) Set(ctx context.Context, token string, p models.Principal) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, Key(token), raw, c.ttl).Err(); err != nil {
		c.log.Warn("principal cache write failed", zap.Error(err))
	}
}

// Close releases the Redis connection pool.
func (c *PrincipalCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Ping checks the Redis connection. A nil cache is always healthy.
func (c *PrincipalCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
