package lock

import (
	"context"
	"sync"
	"time"
)

const memorySweepInterval = 30 * time.Second

// MemoryLocker keeps lock deadlines in a map. Locks are visible only inside
// this process.
type MemoryLocker struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
	now       func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryLocker starts a locker and the goroutine that forgets expired keys.
// Call Stop when done.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{
		deadlines: make(map[string]time.Time),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *MemoryLocker) sweepLoop() {
	t := time.NewTicker(memorySweepInterval)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-t.C:
			m.cleanup()
		}
	}
}

func (m *MemoryLocker) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, deadline := range m.deadlines {
		if !now.Before(deadline) {
			delete(m.deadlines, key)
		}
	}
}

// Stop ends the sweeper. Repeated calls are fine.
func (m *MemoryLocker) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// liveLocked reports whether key has an unexpired deadline, dropping it otherwise.
// Requires m.mu.
func (m *MemoryLocker) liveLocked(key string) bool {
	deadline, ok := m.deadlines[key]
	if !ok {
		return false
	}
	if m.now().Before(deadline) {
		return true
	}
	delete(m.deadlines, key)
	return false
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveLocked(key) {
		return false, nil
	}
	m.deadlines[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.liveLocked(key)
	delete(m.deadlines, key)
	return held, nil
}

func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked(key), nil
}

var _ Locker = (*MemoryLocker)(nil)
