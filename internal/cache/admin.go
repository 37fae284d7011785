package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	adminTokenPrefix = "admin:token:"
	// adminTokenTTL bounds how long a verified token skips Argon2id.
	adminTokenTTL = 5 * time.Minute
)

// IsAdminTokenVerified reports whether the token fingerprint was verified
// against hashVersion recently. hashVersion ties entries to the configured
// hash, so rotating ADMIN_TOKEN_HASH invalidates them.
func (c *Cache) IsAdminTokenVerified(ctx context.Context, fingerprint, hashVersion string) (bool, error) {
	got, err := c.client.Get(ctx, adminTokenPrefix+fingerprint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read admin token cache: %w", err)
	}
	return got == hashVersion, nil
}

// MarkAdminTokenVerified records a successful verification.
func (c *Cache) MarkAdminTokenVerified(ctx context.Context, fingerprint, hashVersion string) error {
	if err := c.client.Set(ctx, adminTokenPrefix+fingerprint, hashVersion, adminTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache admin token: %w", err)
	}
	return nil
}
