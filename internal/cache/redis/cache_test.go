package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/hermes/internal/repository"
)

// newTestClient connects to HERMES_TEST_REDIS_ADDR or skips the test.
func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	addr := os.Getenv("HERMES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HERMES_TEST_REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCache_RoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	c := NewCache(client, "hermes-test:"+uuid.NewString()+":")

	_, err := c.Get(ctx, "user:1")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "user:1", []byte(`{"id":1}`), time.Minute))
	got, err := c.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(got))

	exists, err := c.Exists(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Set(ctx, "user:2", []byte("x"), time.Minute))
	require.NoError(t, c.DeleteMulti(ctx, "user:1", "user:2"))
	exists, err = c.Exists(ctx, "user:2")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.DeleteMulti(ctx))
}

func TestCache_TTL(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	c := NewCache(client, "hermes-test:"+uuid.NewString()+":")

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestCache_Unavailable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	c := NewCache(client, "hermes-test:")

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, repository.ErrCacheUnavailable)
	assert.ErrorIs(t, c.Set(context.Background(), "k", []byte("v"), 0), repository.ErrCacheUnavailable)
}
