package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prolearn/prolearn/internal/model"
)

// Cache key prefixes and TTLs.
const (
	userKeyPrefix     = "user:"
	negCacheKeySuffix = ":neg"

	// DefaultUserTTL is the TTL for cached user data.
	DefaultUserTTL = time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

func userKey(code string) string {
	return userKeyPrefix + code
}

func negativeUserKey(code string) string {
	return userKeyPrefix + code + negCacheKeySuffix
}

// GetUser retrieves a user by code. Returns ErrCacheMiss if not found.
func (c *Cache) GetUser(ctx context.Context, code string) (*model.User, error) {
	res := c.client.HGetAll(ctx, userKey(code))
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedUser
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached user: %w", err)
	}

	return cached.ToUser(code), nil
}

// SetUser stores the public projection of user and clears any negative
// entry for its code.
func (c *Cache) SetUser(ctx context.Context, user *model.User) error {
	key := userKey(user.Code)

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, user.ToCachedUser())
	pipe.Expire(ctx, key, DefaultUserTTL)
	pipe.Del(ctx, negativeUserKey(user.Code))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache user: %w", err)
	}

	return nil
}

// DeleteUser removes a user and its negative entry from cache.
func (c *Cache) DeleteUser(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, userKey(code), negativeUserKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete user from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if a code is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, code string) (bool, error) {
	exists, err := c.client.Exists(ctx, negativeUserKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a code as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, code string) error {
	if err := c.client.SetEx(ctx, negativeUserKey(code), "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
