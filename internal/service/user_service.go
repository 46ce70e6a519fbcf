package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/credential"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/lock"
	"github.com/prn-tf/hermes/internal/metrics"
	"github.com/prn-tf/hermes/internal/pkg/crypto"
	"github.com/prn-tf/hermes/internal/repository"
)

// Paging limits for user listings.
const (
	DefaultUserPageSize = 30
	MaxUserPageSize     = 100
)

// UserConfig contains user registry settings.
type UserConfig struct {
	// CacheTTL bounds how long GetByID may serve a cached record.
	// Zero disables caching even when a cache is supplied.
	CacheTTL time.Duration

	// UpgradeLegacy rehashes legacy or under-cost credentials after a successful login.
	UpgradeLegacy bool

	// UpgradeLockTTL bounds how long one login may hold the rehash lock.
	UpgradeLockTTL time.Duration
}

// DefaultUserConfig returns sensible defaults.
func DefaultUserConfig() UserConfig {
	return UserConfig{
		CacheTTL:       time.Minute,
		UpgradeLegacy:  true,
		UpgradeLockTTL: 10 * time.Second,
	}
}

// UserService is the user registry. It owns user records and the identity
// invariants on them, and delegates password material to the credential store.
type UserService struct {
	repos   *repository.Repositories
	creds   *credential.Store
	locker  lock.Locker
	cache   repository.Cache
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  UserConfig
}

// NewUserService creates a new UserService.
// cache may be nil; a nil locker disables cross-process upgrade locking.
func NewUserService(
	repos *repository.Repositories,
	creds *credential.Store,
	locker lock.Locker,
	cache repository.Cache,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config UserConfig,
) *UserService {
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	return &UserService{
		repos:   repos,
		creds:   creds,
		locker:  locker,
		cache:   cache,
		metrics: m,
		logger:  logger.With().Str("service", "user").Logger(),
		config:  config,
	}
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string

	// PasswordConfirmation must equal Password when set.
	PasswordConfirmation *string

	IsAdmin bool
}

// CreateUserOutput contains the result of creating a user.
type CreateUserOutput struct {
	User *domain.User
}

// Create registers a new user. Every violated constraint is reported in a
// single *domain.ValidationError.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*CreateUserOutput, error) {
	errs := domain.ValidateProfile(input.Name, input.Email)
	errs = append(errs, credential.Validate(input.Password, input.PasswordConfirmation)...)

	email := domain.NormalizeEmail(input.Email)
	if domain.IsValidEmail(email) {
		taken, err := s.repos.User.ExistsByEmail(ctx, email, 0)
		if err != nil {
			s.logger.Error().Err(err).Str("email", email).Msg("failed to check email existence")
			return nil, internal(err)
		}
		if taken {
			errs = append(errs, domain.EmailTakenError().Errors...)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	// bcrypt runs outside the transaction so the write lock is held briefly.
	material, err := s.creds.Register(input.Password, input.PasswordConfirmation)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, internal(err)
	}

	user := domain.NewUser(input.Name, email, material)
	user.IsAdmin = input.IsAdmin

	err = s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		taken, err := s.repos.User.ExistsByEmail(ctx, user.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return domain.EmailTakenError()
		}
		return s.repos.User.Create(ctx, user)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Str("email", user.Email).Msg("failed to create user")
		}
		return nil, internal(err)
	}

	s.metrics.RecordRegistration()
	s.logger.Info().
		Int64("user_id", user.ID).
		Str("email", user.Email).
		Bool("is_admin", user.IsAdmin).
		Msg("user created")

	return &CreateUserOutput{User: user}, nil
}

// Authenticate verifies an email and password pair and returns the user.
// An unknown email and a wrong password both yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)

	user, err := s.repos.User.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.creds.Dummy(password)
			s.metrics.RecordAuthentication(false)
			s.logger.Debug().Str("email", email).Msg("unknown email during authentication")
			return nil, ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Str("email", email).Msg("failed to look up user")
		return nil, internal(err)
	}

	if !s.creds.Verify(user.Credential, password) {
		s.metrics.RecordAuthentication(false)
		s.logger.Debug().Int64("user_id", user.ID).Msg("invalid password during authentication")
		return nil, ErrInvalidCredentials
	}

	s.metrics.RecordAuthentication(true)

	if s.config.UpgradeLegacy && s.creds.NeedsUpgrade(user.Credential) {
		s.upgradeCredential(ctx, user, password)
	}

	return user, nil
}

// upgradeCredential replaces user's material with adaptive material derived
// from the password that was just verified. Failures are logged only.
func (s *UserService) upgradeCredential(ctx context.Context, user *domain.User, password string) {
	logger := s.logger.With().Int64("user_id", user.ID).Str("scheme", string(user.Credential.Scheme)).Logger()

	held, err := lock.Try(ctx, s.locker, lock.CredentialUpgradeKey(user.ID), s.config.UpgradeLockTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to acquire credential upgrade lock")
		return
	}
	if held == nil {
		logger.Debug().Msg("credential upgrade already in progress")
		return
	}
	defer func() {
		if err := held.Release(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to release credential upgrade lock")
		}
	}()

	material, err := s.creds.Upgrade(password)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to derive upgraded credential")
		return
	}

	upgraded := false
	err = s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repos.User.GetByID(ctx, user.ID)
		if err != nil {
			return err
		}
		// Another login may have upgraded it, or the password may have changed.
		if !s.creds.NeedsUpgrade(current.Credential) || !s.creds.Verify(current.Credential, password) {
			return nil
		}
		if err := s.repos.User.UpdateCredential(ctx, user.ID, material); err != nil {
			return err
		}
		upgraded = true
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to store upgraded credential")
		return
	}
	if !upgraded {
		return
	}

	user.Credential = material
	s.invalidate(ctx, user.ID)
	s.metrics.RecordCredentialUpgrade()
	logger.Info().Msg("credential upgraded")
}

// UpdateUserInput contains the attributes to change. Nil fields keep their
// current value; Password is optional on update.
type UpdateUserInput struct {
	Name                 *string
	Email                *string
	Password             *string
	PasswordConfirmation *string
}

// Update changes a user's profile and, optionally, password. The merged
// attributes are validated with the full rule set and applied all at once.
func (s *UserService) Update(ctx context.Context, userID int64, input UpdateUserInput) (*domain.User, error) {
	existing, err := s.repos.User.GetByID(ctx, userID)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to get user")
		}
		return nil, internal(err)
	}

	name, email := existing.Name, existing.Email
	if input.Name != nil {
		name = *input.Name
	}
	if input.Email != nil {
		email = *input.Email
	}

	errs := domain.ValidateProfile(name, email)
	if input.Password != nil {
		errs = append(errs, credential.Validate(*input.Password, input.PasswordConfirmation)...)
	}

	email = domain.NormalizeEmail(email)
	if domain.IsValidEmail(email) {
		taken, err := s.repos.User.ExistsByEmail(ctx, email, userID)
		if err != nil {
			s.logger.Error().Err(err).Str("email", email).Msg("failed to check email existence")
			return nil, internal(err)
		}
		if taken {
			errs = append(errs, domain.EmailTakenError().Errors...)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var material *domain.Credential
	if input.Password != nil {
		m, err := s.creds.Register(*input.Password, input.PasswordConfirmation)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to hash password")
			return nil, internal(err)
		}
		material = &m
	}

	var updated *domain.User
	err = s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		user, err := s.repos.User.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		taken, err := s.repos.User.ExistsByEmail(ctx, email, userID)
		if err != nil {
			return err
		}
		if taken {
			return domain.EmailTakenError()
		}

		user.Name = strings.TrimSpace(name)
		user.Email = email
		if material != nil {
			user.Credential = *material
		}
		user.UpdatedAt = time.Now().UTC()

		if err := s.repos.User.Update(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to update user")
		}
		return nil, internal(err)
	}

	s.invalidate(ctx, userID)
	s.logger.Info().
		Int64("user_id", userID).
		Bool("password_changed", material != nil).
		Msg("user updated")

	return updated, nil
}

// Destroy deletes a user together with every relationship they take part in
// and every micropost they own, in one transaction.
func (s *UserService) Destroy(ctx context.Context, userID int64) error {
	var edges, posts int64
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repos.User.GetByID(ctx, userID); err != nil {
			return err
		}

		var err error
		if edges, err = s.repos.Relationship.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		if posts, err = s.repos.Micropost.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		return s.repos.User.Delete(ctx, userID)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to destroy user")
		}
		return internal(err)
	}

	s.invalidate(ctx, userID)
	s.metrics.RecordDestroy()
	s.logger.Info().
		Int64("user_id", userID).
		Int64("relationships", edges).
		Int64("microposts", posts).
		Msg("user destroyed")

	return nil
}

// GetByID retrieves a user by ID, reading through the user cache.
// Cached records carry no credential material.
func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if user, ok := s.cached(ctx, id); ok {
		return user, nil
	}

	user, err := s.repos.User.GetByID(ctx, id)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		}
		return nil, internal(err)
	}

	s.store(ctx, user)
	return user, nil
}

// ListUsersInput contains pagination for user listings.
type ListUsersInput struct {
	Limit  int
	Offset int
}

// List returns users ordered by ID.
func (s *UserService) List(ctx context.Context, input ListUsersInput) (*repository.ListResult[domain.User], error) {
	if input.Limit <= 0 {
		input.Limit = DefaultUserPageSize
	}
	if input.Limit > MaxUserPageSize {
		input.Limit = MaxUserPageSize
	}
	if input.Offset < 0 {
		input.Offset = 0
	}

	result, err := s.repos.User.List(ctx, repository.ListOptions{Offset: input.Offset, Limit: input.Limit})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, internal(err)
	}
	return result, nil
}

// SetAdmin grants or revokes administrator rights.
func (s *UserService) SetAdmin(ctx context.Context, userID int64, isAdmin bool) (*domain.User, error) {
	var updated *domain.User
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		user, err := s.repos.User.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		user.IsAdmin = isAdmin
		user.UpdatedAt = time.Now().UTC()
		if err := s.repos.User.Update(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to set admin flag")
		}
		return nil, internal(err)
	}

	s.invalidate(ctx, userID)
	s.logger.Info().Int64("user_id", userID).Bool("is_admin", isAdmin).Msg("admin flag changed")
	return updated, nil
}

// ImportLegacyInput describes a user carried over from the legacy system.
// Either Salt and Digest or Password must be set. A Password is held to the
// same length rules as a new registration.
type ImportLegacyInput struct {
	Name     string
	Email    string
	Salt     string
	Digest   string
	Password string
	IsAdmin  bool
}

// ImportLegacy creates a user holding legacy salted-digest material. The
// material is upgraded on the user's first successful login.
func (s *UserService) ImportLegacy(ctx context.Context, input ImportLegacyInput) (*domain.User, error) {
	errs := domain.ValidateProfile(input.Name, input.Email)

	var material domain.Credential
	switch {
	case input.Password != "":
		errs = append(errs, credential.Validate(input.Password, nil)...)
		material = credential.NewLegacy(input.Password, time.Now())
	case input.Salt == "":
		errs.Add("salt", domain.CodeBlank, "can't be blank")
	case !crypto.ValidateSHA256(input.Digest):
		errs.Add("digest", domain.CodeInvalid, "is not a SHA-256 hex digest")
	default:
		material = domain.Credential{Scheme: domain.SchemeLegacySalted, Salt: input.Salt, Digest: input.Digest}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	user := domain.NewUser(input.Name, input.Email, material)
	user.IsAdmin = input.IsAdmin

	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		taken, err := s.repos.User.ExistsByEmail(ctx, user.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return domain.EmailTakenError()
		}
		return s.repos.User.Create(ctx, user)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Str("email", user.Email).Msg("failed to import user")
		}
		return nil, internal(err)
	}

	s.metrics.RecordRegistration()
	s.logger.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("legacy user imported")
	return user, nil
}

// cached returns the cached record for id, if any.
func (s *UserService) cached(ctx context.Context, id int64) (*domain.User, bool) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return nil, false
	}

	data, err := s.cache.Get(ctx, repository.UserCacheKey(id))
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn().Err(err).Int64("user_id", id).Msg("user cache read failed")
		}
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", id).Msg("discarding undecodable cache entry")
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}

	s.metrics.RecordCacheLookup(true)
	return &user, true
}

// userCacheFence is how long a write keeps reads from repopulating the cache.
// It must outlast a GetByID round trip.
const userCacheFence = 5 * time.Second

// store writes user to the cache. The credential is never cached.
// A fence set by a concurrent write means the record may predate that write,
// so the entry is dropped again.
func (s *UserService) store(ctx context.Context, user *domain.User) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	key := repository.UserCacheKey(user.ID)
	if err := s.cache.Set(ctx, key, data, s.config.CacheTTL); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("user cache write failed")
		return
	}

	fenced, err := s.cache.Exists(ctx, repository.UserFenceKey(user.ID))
	if err != nil || fenced {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("user cache write rollback failed")
		}
	}
}

// invalidate drops the cached record for id after a committed change. The
// fence goes up before the delete so a read that started before the commit
// cannot leave its copy behind.
func (s *UserService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, repository.UserFenceKey(id), []byte{1}, userCacheFence); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", id).Msg("user cache fence failed")
	}
	if err := s.cache.Delete(ctx, repository.UserCacheKey(id)); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", id).Msg("user cache invalidation failed")
	}
}
