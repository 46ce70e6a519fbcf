package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/repository"
)

func openTestDB(t *testing.T) (*DB, *repository.Repositories) {
	t.Helper()

	ctx := context.Background()
	db, err := NewDB(ctx, DefaultConfig(filepath.Join(t.TempDir(), "hermes.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db, NewRepositories(db)
}

func adaptive(hash string) domain.Credential {
	return domain.Credential{Scheme: domain.SchemeAdaptive, Hash: hash}
}

func createUser(t *testing.T, repos *repository.Repositories, name, email string) *domain.User {
	t.Helper()
	u := domain.NewUser(name, email, adaptive("$2a$04$hash-"+email))
	require.NoError(t, repos.User.Create(context.Background(), u))
	return u
}

func TestDB_Health(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	var store repository.Database = db
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Health(ctx))
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	states, err := db.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	for _, s := range states {
		assert.True(t, s.Applied, "migration %d not applied", s.Version)
	}
	assert.Equal(t, "00001_create_users.sql", states[0].Name)

	require.NoError(t, db.Rollback(ctx))
	states, err = db.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.False(t, states[2].Applied)

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate must be idempotent")
	require.NoError(t, db.Health(ctx))
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	u := createUser(t, repos, "Dweeby Funk", "df@example.com")
	assert.NotZero(t, u.ID)

	got, err := repos.User.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dweeby Funk", got.Name)
	assert.Equal(t, "df@example.com", got.Email)
	assert.Equal(t, domain.SchemeAdaptive, got.Credential.Scheme)
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt))

	got, err = repos.User.GetByEmail(ctx, "DF@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repos.User.GetByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repos.User.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepository_EmailUniqueIgnoringCase(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	createUser(t, repos, "Dweeby Funk", "df@example.com")

	// Bypass normalization to exercise the index itself.
	dup := &domain.User{Name: "Other", Email: "DF@Example.com", Credential: adaptive("x"), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	err := repos.User.Create(ctx, dup)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("email", domain.CodeTaken))

	exists, err := repos.User.ExistsByEmail(ctx, "DF@example.COM", 0)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserRepository_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		taken   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := domain.NewUser(fmt.Sprintf("Racer %d", i), "race@example.com", adaptive("x"))
			err := repos.User.Create(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrValidation):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, taken)
}

func TestUserRepository_RejectsMissingCredential(t *testing.T) {
	_, repos := openTestDB(t)

	u := domain.NewUser("No Password", "none@example.com", domain.Credential{})
	err := repos.User.Create(context.Background(), u)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrValidation)
}

func TestUserRepository_UpdateAndCredential(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	legacy := domain.Credential{Scheme: domain.SchemeLegacySalted, Salt: "salt", Digest: "digest"}
	u := domain.NewUser("Old Timer", "old@example.com", legacy)
	require.NoError(t, repos.User.Create(ctx, u))

	got, err := repos.User.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, legacy, got.Credential)

	require.NoError(t, repos.User.UpdateCredential(ctx, u.ID, adaptive("$2a$04$new")))
	got, err = repos.User.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, adaptive("$2a$04$new"), got.Credential)

	other := createUser(t, repos, "Other", "other@example.com")
	got.Email = other.Email
	got.UpdatedAt = time.Now()
	var verr *domain.ValidationError
	require.ErrorAs(t, repos.User.Update(ctx, got), &verr)

	got.Email = "renamed@example.com"
	got.Name = "New Timer"
	got.IsAdmin = true
	require.NoError(t, repos.User.Update(ctx, got))

	again, err := repos.User.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Timer", again.Name)
	assert.Equal(t, "renamed@example.com", again.Email)
	assert.True(t, again.IsAdmin)

	assert.ErrorIs(t, repos.User.UpdateCredential(ctx, 999, adaptive("x")), domain.ErrUserNotFound)
	assert.ErrorIs(t, repos.User.Delete(ctx, 999), domain.ErrUserNotFound)
}

func TestUserRepository_List(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	for i := 0; i < 5; i++ {
		createUser(t, repos, fmt.Sprintf("Person %d", i), fmt.Sprintf("person-%d@example.com", i))
	}

	page, err := repos.User.List(ctx, repository.ListOptions{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "person-2@example.com", page.Items[0].Email)
	assert.Equal(t, "person-3@example.com", page.Items[1].Email)
}

func TestRelationshipRepository(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	alice := createUser(t, repos, "Alice", "alice@example.com")
	bob := createUser(t, repos, "Bob", "bob@example.com")
	carol := createUser(t, repos, "Carol", "carol@example.com")

	rel := domain.NewRelationship(alice.ID, bob.ID)
	require.NoError(t, repos.Relationship.Create(ctx, rel))
	assert.NotZero(t, rel.ID)
	require.NoError(t, repos.Relationship.Create(ctx, domain.NewRelationship(carol.ID, bob.ID)))

	assert.ErrorIs(t, repos.Relationship.Create(ctx, domain.NewRelationship(alice.ID, bob.ID)), domain.ErrAlreadyFollowing)
	assert.ErrorIs(t, repos.Relationship.Create(ctx, domain.NewRelationship(alice.ID, 999)), domain.ErrUserNotFound)

	ok, err := repos.Relationship.Exists(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repos.Relationship.Exists(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok, "edges are directed")

	followers, err := repos.Relationship.ListFollowers(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, "Alice", followers[0].Name)
	assert.Equal(t, "Carol", followers[1].Name)

	following, err := repos.Relationship.ListFollowing(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, bob.ID, following[0].ID)

	n, err := repos.Relationship.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = repos.Relationship.CountFollowing(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repos.Relationship.Delete(ctx, alice.ID, bob.ID))
	assert.ErrorIs(t, repos.Relationship.Delete(ctx, alice.ID, bob.ID), domain.ErrRelationshipNotFound)

	removed, err := repos.Relationship.DeleteByUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func createPost(t *testing.T, repos *repository.Repositories, userID int64, content string, at time.Time) *domain.Micropost {
	t.Helper()
	p := &domain.Micropost{UserID: userID, Content: content, CreatedAt: at}
	require.NoError(t, repos.Micropost.Create(context.Background(), p))
	return p
}

func ids(posts []*domain.Micropost) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestMicropostRepository_Feed(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	u1 := createUser(t, repos, "U1", "u1@example.com")
	u2 := createUser(t, repos, "U2", "u2@example.com")
	u3 := createUser(t, repos, "U3", "u3@example.com")
	require.NoError(t, repos.Relationship.Create(ctx, domain.NewRelationship(u1.ID, u2.ID)))

	now := time.Now().UTC().Truncate(time.Microsecond)
	m1 := createPost(t, repos, u1.ID, "M1", now.Add(-2*time.Hour))
	m2 := createPost(t, repos, u2.ID, "M2", now.Add(-time.Hour))
	createPost(t, repos, u3.ID, "M3", now)

	feed, err := repos.Micropost.Feed(ctx, u1.ID, repository.FeedOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{m2.ID, m1.ID}, ids(feed))
	assert.True(t, feed[0].CreatedAt.Equal(m2.CreatedAt))

	// Only one's own posts without follows.
	feed, err = repos.Micropost.Feed(ctx, u3.ID, repository.FeedOptions{})
	require.NoError(t, err)
	assert.Len(t, feed, 1)

	// Unfollow removes the followed user's posts from the next evaluation.
	require.NoError(t, repos.Relationship.Delete(ctx, u1.ID, u2.ID))
	feed, err = repos.Micropost.Feed(ctx, u1.ID, repository.FeedOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{m1.ID}, ids(feed))
}

func TestMicropostRepository_KeysetPaging(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	u := createUser(t, repos, "Writer", "writer@example.com")
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var want []int64
	// Two posts share every timestamp so ties are broken by id.
	for i := 0; i < 5; i++ {
		a := createPost(t, repos, u.ID, fmt.Sprintf("a%d", i), at.Add(time.Duration(i)*time.Second))
		b := createPost(t, repos, u.ID, fmt.Sprintf("b%d", i), at.Add(time.Duration(i)*time.Second))
		want = append([]int64{b.ID, a.ID}, want...)
	}

	var (
		got    []int64
		cursor *domain.FeedCursor
	)
	for {
		page, err := repos.Micropost.ListByUser(ctx, u.ID, repository.FeedOptions{Before: cursor, Limit: 3})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		got = append(got, ids(page)...)
		c := page[len(page)-1].Cursor()
		cursor = &c
	}

	assert.Equal(t, want, got)
}

func TestMicropostRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	u := createUser(t, repos, "Writer", "writer@example.com")
	p := createPost(t, repos, u.ID, "Lorem ipsum", time.Now())

	got, err := repos.Micropost.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lorem ipsum", got.Content)

	assert.ErrorIs(t, repos.Micropost.Create(ctx, &domain.Micropost{UserID: 999, Content: "x", CreatedAt: time.Now()}), domain.ErrUserNotFound)

	require.NoError(t, repos.Micropost.Delete(ctx, p.ID))
	assert.ErrorIs(t, repos.Micropost.Delete(ctx, p.ID), domain.ErrMicropostNotFound)
	_, err = repos.Micropost.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrMicropostNotFound)
}

func TestWithTx_RollbackAndCascade(t *testing.T) {
	ctx := context.Background()
	db, repos := openTestDB(t)

	a := createUser(t, repos, "A", "a@example.com")
	b := createUser(t, repos, "B", "b@example.com")
	require.NoError(t, repos.Relationship.Create(ctx, domain.NewRelationship(a.ID, b.ID)))
	require.NoError(t, repos.Relationship.Create(ctx, domain.NewRelationship(b.ID, a.ID)))
	createPost(t, repos, a.ID, "hello", time.Now())

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := repos.Relationship.DeleteByUser(ctx, a.ID); err != nil {
			return err
		}
		if _, err := repos.Micropost.DeleteByUser(ctx, a.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := repos.Relationship.CountFollowers(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "rolled back")

	// The foreign keys cascade even when a row is deleted directly.
	require.NoError(t, repos.User.Delete(ctx, a.ID))
	n, err = repos.Relationship.CountFollowing(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	posts, err := repos.Micropost.ListByUser(ctx, a.ID, repository.FeedOptions{})
	require.NoError(t, err)
	assert.Empty(t, posts)
}
