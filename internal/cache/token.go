package cache

import (
	"context"
	"encoding/json"
	"time"

	"watchtower/internal/domain"

	"github.com/redis/go-redis/v9"
)

const tokenCacheKey = "watchtower:zoho:access_token"

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// TokenCache stores the Zoho access token in Redis with a TTL bound to the
// token's own expiry, so a later run can never read a token that has
// outlived its declared lifetime.
type TokenCache struct {
	client RedisClient
	now    func() time.Time
}

func NewTokenCache(client RedisClient) *TokenCache {
	return &TokenCache{client: client, now: time.Now}
}

func (c *TokenCache) Get(ctx context.Context) (*domain.Credential, error) {
	raw, err := c.client.Get(ctx, tokenCacheKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cred domain.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (c *TokenCache) Put(ctx context.Context, cred *domain.Credential) error {
	ttl := cred.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tokenCacheKey, raw, ttl).Err()
}
