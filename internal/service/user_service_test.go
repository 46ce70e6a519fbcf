package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/hermes/internal/credential"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/pkg/crypto"
	"github.com/prn-tf/hermes/internal/repository"
)

func TestUserService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.users.Create(ctx, CreateUserInput{
		Name:                 "  Dweeby Funk ",
		Email:                "DF@Example.com",
		Password:             "foobar",
		PasswordConfirmation: strPtr("foobar"),
	})
	require.NoError(t, err)

	user := out.User
	assert.NotZero(t, user.ID)
	assert.Equal(t, "Dweeby Funk", user.Name)
	assert.Equal(t, "df@example.com", user.Email)
	assert.False(t, user.IsAdmin)
	assert.Equal(t, domain.SchemeAdaptive, user.Credential.Scheme)
	assert.True(t, env.creds.Verify(user.Credential, "foobar"))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UsersRegistered))
}

func TestUserService_Create_ReportsEveryViolation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.users.Create(context.Background(), CreateUserInput{
		Name:                 "",
		Email:                "df@example",
		Password:             "foo",
		PasswordConfirmation: strPtr("bar"),
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, []string{"name", "email", "password", "password_confirmation"}, verr.Fields())
	assert.True(t, verr.Has("name", domain.CodeBlank))
	assert.True(t, verr.Has("email", domain.CodeInvalid))
	assert.True(t, verr.Has("password", domain.CodeTooShort))
	assert.True(t, verr.Has("password_confirmation", domain.CodeConfirmation))

	page, err := env.users.List(context.Background(), ListUsersInput{})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "nothing may be persisted")
}

func TestUserService_Create_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateUserInput
		field string
		code  string
	}{
		{
			name:  "name too long",
			input: CreateUserInput{Name: fmt.Sprintf("%051d", 0), Email: "a@b.com", Password: "foobar"},
			field: "name", code: domain.CodeTooLong,
		},
		{
			name:  "blank email",
			input: CreateUserInput{Name: "A", Email: "  ", Password: "foobar"},
			field: "email", code: domain.CodeBlank,
		},
		{
			name:  "email with comma",
			input: CreateUserInput{Name: "A", Email: "user@example,com", Password: "foobar"},
			field: "email", code: domain.CodeInvalid,
		},
		{
			name:  "password too long",
			input: CreateUserInput{Name: "A", Email: "a@b.com", Password: fmt.Sprintf("%041d", 0)},
			field: "password", code: domain.CodeTooLong,
		},
		{
			name:  "blank password",
			input: CreateUserInput{Name: "A", Email: "a@b.com"},
			field: "password", code: domain.CodeBlank,
		},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.users.Create(context.Background(), tt.input)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.Has(tt.field, tt.code), "got %v", verr)
		})
	}
}

func TestUserService_Create_EmailTakenIgnoringCase(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Dweeby Funk", "df@example.com")

	_, err := env.users.Create(context.Background(), CreateUserInput{
		Name:     "Copycat",
		Email:    "DF@EXAMPLE.COM",
		Password: "foobar",
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("email", domain.CodeTaken))
}

func TestUserService_Create_ConcurrentRegistrationsOneWins(t *testing.T) {
	env := newTestEnv(t)

	const n = 6
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.users.Create(context.Background(), CreateUserInput{
				Name:     fmt.Sprintf("Racer %d", i),
				Email:    "race@example.com",
				Password: "foobar",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.True(t, verr.Has("email", domain.CodeTaken))
	}
	assert.Equal(t, 1, wins)
}

func TestUserService_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.register(t, "Dweeby Funk", "df@example.com")

	user, err := env.users.Authenticate(ctx, "df@example.com", "foobar")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	user, err = env.users.Authenticate(ctx, " DF@example.COM", "foobar")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, wrongPassword := env.users.Authenticate(ctx, "df@example.com", "wrong!")
	_, unknownEmail := env.users.Authenticate(ctx, "nobody@example.com", "foobar")
	assert.Equal(t, ErrInvalidCredentials, wrongPassword)
	assert.Equal(t, ErrInvalidCredentials, unknownEmail, "no existence oracle")

	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Authentications.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Authentications.WithLabelValues("failure")))
}

func TestUserService_Authenticate_UpgradesLegacyCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	legacy, err := env.users.ImportLegacy(ctx, ImportLegacyInput{
		Name:     "Old Timer",
		Email:    "old@example.com",
		Password: "secret",
	})
	require.NoError(t, err)
	require.Equal(t, domain.SchemeLegacySalted, legacy.Credential.Scheme)

	_, err = env.users.Authenticate(ctx, "old@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := env.users.Authenticate(ctx, "old@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, domain.SchemeAdaptive, user.Credential.Scheme)

	stored, err := env.repos.User.GetByID(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SchemeAdaptive, stored.Credential.Scheme)
	assert.True(t, env.creds.Verify(stored.Credential, "secret"))

	_, err = env.users.Authenticate(ctx, "old@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CredentialUpgrades))
}

func TestUserService_Authenticate_ConcurrentLegacyLogins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.ImportLegacy(ctx, ImportLegacyInput{
		Name:   "Old Timer",
		Email:  "old@example.com",
		Salt:   "pepper",
		Digest: crypto.SaltedDigest("pepper", "secret"),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.users.Authenticate(ctx, "old@example.com", "secret")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CredentialUpgrades), "exactly one login rehashes")

	stored, err := env.repos.User.GetByEmail(ctx, "old@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SchemeAdaptive, stored.Credential.Scheme)
}

func TestUserService_Authenticate_UpgradeFailureIsNotSurfaced(t *testing.T) {
	users := new(mockUserRepository)
	repos := &repository.Repositories{User: users, Tx: passthroughTx{}}
	svc := NewUserService(repos, credential.NewStore(4), nil, nil, nil, zerolog.Nop(), DefaultUserConfig())

	legacy := domain.Credential{Scheme: domain.SchemeLegacySalted, Salt: "s", Digest: crypto.SaltedDigest("s", "secret")}
	user := &domain.User{ID: 7, Email: "old@example.com", Credential: legacy}

	users.On("GetByEmail", mock.Anything, "old@example.com").Return(user, nil)
	users.On("GetByID", mock.Anything, int64(7)).Return(&domain.User{ID: 7, Credential: legacy}, nil)
	users.On("UpdateCredential", mock.Anything, int64(7), mock.Anything).Return(errors.New("disk full"))

	got, err := svc.Authenticate(context.Background(), "old@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, domain.SchemeLegacySalted, got.Credential.Scheme)
	users.AssertExpectations(t)
}

func TestUserService_InfrastructureErrorsAreWrapped(t *testing.T) {
	users := new(mockUserRepository)
	repos := &repository.Repositories{User: users, Tx: passthroughTx{}}
	svc := NewUserService(repos, credential.NewStore(4), nil, nil, nil, zerolog.Nop(), DefaultUserConfig())

	boom := errors.New("connection reset")
	users.On("GetByEmail", mock.Anything, "df@example.com").Return(nil, boom)
	users.On("ExistsByEmail", mock.Anything, "df@example.com", int64(0)).Return(false, boom)
	users.On("GetByID", mock.Anything, int64(1)).Return(nil, boom)

	_, err := svc.Authenticate(context.Background(), "df@example.com", "foobar")
	assert.ErrorIs(t, err, ErrInternalError)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Create(context.Background(), CreateUserInput{Name: "DF", Email: "df@example.com", Password: "foobar"})
	assert.ErrorIs(t, err, ErrInternalError)

	_, err = svc.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInternalError)
}

func TestUserService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Dweeby Funk", "df@example.com")

	updated, err := env.users.Update(ctx, user.ID, UpdateUserInput{Name: strPtr("Funky Dweeb")})
	require.NoError(t, err)
	assert.Equal(t, "Funky Dweeb", updated.Name)
	assert.Equal(t, "df@example.com", updated.Email)

	_, err = env.users.Authenticate(ctx, "df@example.com", "foobar")
	require.NoError(t, err, "password unchanged when omitted")

	_, err = env.users.Update(ctx, user.ID, UpdateUserInput{
		Email:                strPtr("NEW@example.com"),
		Password:             strPtr("barbaz"),
		PasswordConfirmation: strPtr("barbaz"),
	})
	require.NoError(t, err)

	_, err = env.users.Authenticate(ctx, "new@example.com", "barbaz")
	require.NoError(t, err)
	_, err = env.users.Authenticate(ctx, "new@example.com", "foobar")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Keeping one's own email is not a conflict.
	_, err = env.users.Update(ctx, user.ID, UpdateUserInput{Email: strPtr("New@Example.com")})
	require.NoError(t, err)
}

func TestUserService_Update_IsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Dweeby Funk", "df@example.com")
	env.register(t, "Other", "other@example.com")

	_, err := env.users.Update(ctx, user.ID, UpdateUserInput{
		Name:     strPtr("Renamed"),
		Email:    strPtr("OTHER@example.com"),
		Password: strPtr("abc"),
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("email", domain.CodeTaken))
	assert.True(t, verr.Has("password", domain.CodeTooShort))

	stored, err := env.repos.User.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dweeby Funk", stored.Name)
	assert.Equal(t, "df@example.com", stored.Email)

	_, err = env.users.Update(ctx, 999, UpdateUserInput{Name: strPtr("Ghost")})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserService_Destroy_Cascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	df := env.register(t, "Dweeby Funk", "df@example.com")
	other := env.register(t, "Other", "other@example.com")

	_, err := env.relationships.Follow(ctx, df.ID, other.ID)
	require.NoError(t, err)
	_, err = env.relationships.Follow(ctx, other.ID, df.ID)
	require.NoError(t, err)
	_, err = env.microposts.Create(ctx, df.ID, "Lorem ipsum")
	require.NoError(t, err)
	own, err := env.microposts.Create(ctx, other.ID, "Still here")
	require.NoError(t, err)

	before, err := env.feed.Page(ctx, other.ID, FeedPageInput{})
	require.NoError(t, err)
	require.Len(t, before.Items, 2)

	require.NoError(t, env.users.Destroy(ctx, df.ID))

	feed, err := env.feed.Page(ctx, other.ID, FeedPageInput{})
	require.NoError(t, err)
	require.Len(t, feed.Items, 1, "the destroyed user's posts leave the survivor's feed")
	assert.Equal(t, own.ID, feed.Items[0].ID)

	followers, err := env.relationships.Followers(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, followers)

	following, err := env.relationships.Following(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, following)

	_, err = env.users.GetByID(ctx, df.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	stats, err := env.relationships.Stats(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, &RelationshipStats{}, stats)

	posts, err := env.repos.Micropost.ListByUser(ctx, df.ID, repository.FeedOptions{})
	require.NoError(t, err)
	assert.Empty(t, posts)

	assert.ErrorIs(t, env.users.Destroy(ctx, df.ID), domain.ErrUserNotFound)
}

func TestUserService_GetByID_CacheInvalidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Dweeby Funk", "df@example.com")

	first, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dweeby Funk", first.Name)

	cached, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dweeby Funk", cached.Name)
	assert.True(t, cached.Credential.IsZero(), "credentials are never cached")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CacheLookups.WithLabelValues("hit")))

	_, err = env.users.Update(ctx, user.ID, UpdateUserInput{Name: strPtr("Renamed")})
	require.NoError(t, err)

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fresh.Name)

	_, err = env.users.SetAdmin(ctx, user.ID, true)
	require.NoError(t, err)
	fresh, err = env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.IsAdmin)
}

func TestUserService_GetByID_WriteDuringCacheFill(t *testing.T) {
	tests := []struct {
		name   string
		change func(ctx context.Context, users *UserService, id int64) error
		check  func(t *testing.T, user *domain.User, err error)
	}{
		{
			name: "destroy",
			change: func(ctx context.Context, users *UserService, id int64) error {
				return users.Destroy(ctx, id)
			},
			check: func(t *testing.T, _ *domain.User, err error) {
				assert.ErrorIs(t, err, domain.ErrUserNotFound)
			},
		},
		{
			name: "update",
			change: func(ctx context.Context, users *UserService, id int64) error {
				_, err := users.Update(ctx, id, UpdateUserInput{Name: strPtr("Renamed")})
				return err
			},
			check: func(t *testing.T, user *domain.User, err error) {
				require.NoError(t, err)
				assert.Equal(t, "Renamed", user.Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			user := env.register(t, "Dweeby Funk", "df@example.com")

			cache := &interleavingCache{Cache: env.cache, key: repository.UserCacheKey(user.ID)}
			users := NewUserService(env.repos, env.creds, nil, cache, env.metrics, zerolog.Nop(), DefaultUserConfig())
			cache.before = func() { require.NoError(t, tt.change(ctx, users, user.ID)) }

			stale, err := users.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, "Dweeby Funk", stale.Name, "the read was served before the change")

			exists, err := env.cache.Exists(ctx, repository.UserCacheKey(user.ID))
			require.NoError(t, err)
			assert.False(t, exists, "a record read before the change must not stay cached")

			after, err := users.GetByID(ctx, user.ID)
			tt.check(t, after, err)
		})
	}
}

func TestUserService_List(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.register(t, fmt.Sprintf("User %d", i), fmt.Sprintf("user-%d@example.com", i))
	}

	page, err := env.users.List(context.Background(), ListUsersInput{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "user-1@example.com", page.Items[0].Email)
}

func TestUserService_ImportLegacy_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.users.ImportLegacy(context.Background(), ImportLegacyInput{
		Name:   "Old",
		Email:  "old@example.com",
		Salt:   "s",
		Digest: "not-a-digest",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("digest", domain.CodeInvalid))

	_, err = env.users.ImportLegacy(context.Background(), ImportLegacyInput{Name: "Old", Email: "old@example.com"})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("salt", domain.CodeBlank))

	_, err = env.users.ImportLegacy(context.Background(), ImportLegacyInput{Name: "Old", Email: "old@example.com", Password: "x"})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("password", domain.CodeTooShort))

	_, err = env.repos.User.GetByEmail(context.Background(), "old@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound, "nothing is stored when validation fails")
}
