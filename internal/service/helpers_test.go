package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/hermes/internal/cache/memory"
	"github.com/prn-tf/hermes/internal/credential"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/lock"
	"github.com/prn-tf/hermes/internal/metrics"
	"github.com/prn-tf/hermes/internal/repository"
	"github.com/prn-tf/hermes/internal/repository/sqlite"
)

// =============================================================================
// SQLite-backed environment
// =============================================================================

type testEnv struct {
	repos         *repository.Repositories
	cache         *memory.Cache
	metrics       *metrics.Metrics
	creds         *credential.Store
	users         *UserService
	relationships *RelationshipService
	feed          *FeedService
	microposts    *MicropostService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "hermes.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	cache := memory.NewCache()
	locker := lock.NewMemoryLocker()
	t.Cleanup(cache.Stop)
	t.Cleanup(locker.Stop)

	repos := sqlite.NewRepositories(db)
	m := metrics.New()
	creds := credential.NewStore(4)
	logger := zerolog.Nop()

	return &testEnv{
		repos:         repos,
		cache:         cache,
		metrics:       m,
		creds:         creds,
		users:         NewUserService(repos, creds, locker, cache, m, logger, DefaultUserConfig()),
		relationships: NewRelationshipService(repos, m, logger),
		feed:          NewFeedService(repos.Micropost, m, logger, DefaultFeedConfig()),
		microposts:    NewMicropostService(repos, m, logger, DefaultFeedConfig()),
	}
}

func strPtr(s string) *string { return &s }

func (e *testEnv) register(t *testing.T, name, email string) *domain.User {
	t.Helper()
	out, err := e.users.Create(context.Background(), CreateUserInput{
		Name:                 name,
		Email:                email,
		Password:             "foobar",
		PasswordConfirmation: strPtr("foobar"),
	})
	require.NoError(t, err)
	return out.User
}

// interleavingCache runs before once, just ahead of the first write to key.
// It lets a test slot a concurrent change between a read and its cache fill.
type interleavingCache struct {
	*memory.Cache
	key    string
	before func()
	once   sync.Once
}

func (c *interleavingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == c.key {
		c.once.Do(c.before)
	}
	return c.Cache.Set(ctx, key, value, ttl)
}

// =============================================================================
// Mocks
// =============================================================================

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) UpdateCredential(ctx context.Context, id int64, c domain.Credential) error {
	return m.Called(ctx, id, c).Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.User]), args.Error(1)
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	args := m.Called(ctx, email, excludeID)
	return args.Bool(0), args.Error(1)
}

type mockMicropostRepository struct {
	mock.Mock
}

func (m *mockMicropostRepository) Create(ctx context.Context, post *domain.Micropost) error {
	return m.Called(ctx, post).Error(0)
}

func (m *mockMicropostRepository) GetByID(ctx context.Context, id int64) (*domain.Micropost, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Micropost), args.Error(1)
}

func (m *mockMicropostRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMicropostRepository) ListByUser(ctx context.Context, userID int64, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Micropost), args.Error(1)
}

func (m *mockMicropostRepository) Feed(ctx context.Context, userID int64, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Micropost), args.Error(1)
}

func (m *mockMicropostRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// passthroughTx runs fn directly, without a transaction.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthroughTx) WithTxOptions(ctx context.Context, _ repository.TxOptions, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
