package payway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is a bearer token issued by the provider handshake
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// usable reports whether the token is still valid lead before it expires
func (t Token) usable(now time.Time, lead time.Duration) bool {
	return t.AccessToken != "" && now.Add(lead).Before(t.ExpiresAt)
}

// TokenCache stores tokens between calls
type TokenCache interface {
	Get(ctx context.Context, key string) (Token, bool)
	Set(ctx context.Context, key string, token Token) error
	Delete(ctx context.Context, key string) error
}

// MemoryTokenCache keeps tokens in the owning client's memory
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryTokenCache creates an empty cache
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: map[string]Token{}}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[key]
	return t, ok
}

func (c *MemoryTokenCache) Set(_ context.Context, key string, token Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
	return nil
}

func (c *MemoryTokenCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, key)
	return nil
}

// RedisTokenCache shares tokens between processes through redis
type RedisTokenCache struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenCache connects to the redis URL, e.g. redis://:pass@host:6379/0
func NewRedisTokenCache(ctx context.Context, url string) (*RedisTokenCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisTokenCache{client: client, prefix: "cuotificador:payway:token:"}, nil
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (Token, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return Token{}, false
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, false
	}
	return t, true
}

func (c *RedisTokenCache) Set(ctx context.Context, key string, token Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisTokenCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Close closes the redis connection
func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}
