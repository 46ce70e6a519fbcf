package lock

import (
	"context"
	"time"
)

// NoOpLocker grants every request. UserService falls back to it when no
// Locker is configured.
type NoOpLocker struct{}

func NewNoOpLocker() *NoOpLocker { return &NoOpLocker{} }

func (*NoOpLocker) Acquire(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	return ctx.Err() == nil, ctx.Err()
}

func (*NoOpLocker) Release(ctx context.Context, _ string) (bool, error) {
	return ctx.Err() == nil, ctx.Err()
}

// IsHeld is always false since nothing is recorded.
func (*NoOpLocker) IsHeld(ctx context.Context, _ string) (bool, error) {
	return false, ctx.Err()
}

var _ Locker = (*NoOpLocker)(nil)
