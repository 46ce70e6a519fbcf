// Package lock serializes work that must not run twice at once, such as
// rehashing one user's password. MemoryLocker covers a single process;
// RedisLocker covers every instance sharing a Redis.
package lock

import (
	"context"
	"strconv"
	"time"
)

// Locker hands out expiring, non-blocking locks by key.
type Locker interface {
	// Acquire takes key for ttl. It returns false without error when the key
	// is already taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives up a key this Locker acquired. It returns false when the
	// key was not held, for instance because it expired.
	Release(ctx context.Context, key string) (bool, error)

	// IsHeld reports whether anyone holds key.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Held is a lock obtained through Try.
type Held struct {
	locker Locker
	key    string
}

// Try acquires key on locker. A nil *Held with a nil error means someone else
// holds it.
func Try(ctx context.Context, locker Locker, key string, ttl time.Duration) (*Held, error) {
	ok, err := locker.Acquire(ctx, key, ttl)
	if err != nil || !ok {
		return nil, err
	}
	return &Held{locker: locker, key: key}, nil
}

// Key is the name the lock was taken under.
func (h *Held) Key() string { return h.key }

// Release frees the lock. Later calls do nothing.
func (h *Held) Release(ctx context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	locker := h.locker
	h.locker = nil
	_, err := locker.Release(ctx, h.key)
	return err
}

// CredentialUpgradeKey names the lock taken while a user's password is rehashed.
func CredentialUpgradeKey(userID int64) string {
	return "credential-upgrade:" + strconv.FormatInt(userID, 10)
}
