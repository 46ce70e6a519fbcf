package repository

import (
	"context"
	"strconv"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry. UserService
// uses it to serve user lookups without a database round trip.
type Cache interface {
	// Get returns ErrCacheMiss for absent or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero keeps it until deleted or evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	DeleteMulti(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// UserCacheKey is where the encoded user with the given id is cached.
func UserCacheKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

// UserFenceKey marks a recent write to the user with the given id. While it
// exists, freshly read records must not stay cached.
func UserFenceKey(id int64) string {
	return "user-fence:" + strconv.FormatInt(id, 10)
}
