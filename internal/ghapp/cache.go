package ghapp

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// refreshWindow is how long before expiry a cached token stops being served.
const refreshWindow = 5 * time.Minute

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenCache stores short-lived installation tokens. With REDIS_URL set the
// cache is shared across server and worker processes; without it each process
// falls back to an in-memory map.
type TokenCache struct {
	rdb *redis.Client

	mu  sync.Mutex
	mem map[string]cachedToken
}

func NewTokenCache(redisURL string) (*TokenCache, error) {
	c := &TokenCache{mem: make(map[string]cachedToken)}
	if redisURL == "" {
		return c, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c.rdb = redis.NewClient(opt)
	return c, nil
}

func (c *TokenCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	if c.rdb != nil {
		v, err := c.rdb.Get(ctx, key).Result()
		if err == nil && v != "" {
			return v, true
		}
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mem[key]
	if !ok || time.Until(e.expiresAt) < refreshWindow {
		delete(c.mem, key)
		return "", false
	}
	return e.token, true
}

func (c *TokenCache) Set(ctx context.Context, key, token string, expiresAt time.Time) {
	if c == nil || token == "" {
		return
	}
	ttl := time.Until(expiresAt) - refreshWindow
	if ttl <= 0 {
		return
	}
	if c.rdb != nil {
		_ = c.rdb.Set(ctx, key, token, ttl).Err()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[key] = cachedToken{token: token, expiresAt: expiresAt}
}
