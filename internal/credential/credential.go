// Package credential owns password material: it validates new passwords,
// derives stored material from them, and verifies identity claims against
// whichever generation of material a user record holds.
package credential

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/pkg/crypto"
)

// Password constraints.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 40

	// maxPasswordBytes is the bcrypt input limit.
	maxPasswordBytes = 72
)

// Store derives and verifies password material.
// It holds no persistent state; the bcrypt cost is its only setting.
type Store struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
	dummyRuns atomic.Int64
}

// NewStore creates a Store hashing with the given bcrypt cost.
// Costs outside bcrypt's accepted range fall back to bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{cost: cost}
}

// Cost returns the bcrypt cost used for new material.
func (s *Store) Cost() int {
	return s.cost
}

// Validate checks password and, when supplied, its confirmation.
func Validate(password string, confirmation *string) domain.FieldErrors {
	var errs domain.FieldErrors

	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		errs.Add("password", domain.CodeBlank, "can't be blank")
	case n < MinPasswordLength:
		errs.Add("password", domain.CodeTooShort, "is too short (minimum is 6 characters)")
	case n > MaxPasswordLength:
		errs.Add("password", domain.CodeTooLong, "is too long (maximum is 40 characters)")
	case len(password) > maxPasswordBytes:
		errs.Add("password", domain.CodeTooLong, "is too long (maximum is 72 bytes)")
	}

	if confirmation != nil && *confirmation != password {
		errs.Add("password_confirmation", domain.CodeConfirmation, "doesn't match password")
	}

	return errs
}

// Register validates password and returns adaptive material for it.
// Violations are returned as *domain.ValidationError.
func (s *Store) Register(password string, confirmation *string) (domain.Credential, error) {
	if err := Validate(password, confirmation).Err(); err != nil {
		return domain.Credential{}, err
	}
	return s.hash(password)
}

func (s *Store) hash(password string) (domain.Credential, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to hash password: %w", err)
	}
	return domain.Credential{Scheme: domain.SchemeAdaptive, Hash: string(hash)}, nil
}

// Verify reports whether candidate matches the stored material.
// Every path costs one bcrypt comparison at the store's cost, so a legacy
// or malformed record answers no faster than an unknown email.
func (s *Store) Verify(material domain.Credential, candidate string) bool {
	switch material.Scheme {
	case domain.SchemeLegacySalted:
		ok := material.Salt != "" && material.Digest != "" &&
			crypto.EqualDigests(crypto.SaltedDigest(material.Salt, candidate), material.Digest)
		s.Dummy(candidate)
		return ok
	case domain.SchemeAdaptive:
		if material.Hash == "" {
			return s.Dummy(candidate)
		}
		return bcrypt.CompareHashAndPassword([]byte(material.Hash), []byte(candidate)) == nil
	default:
		return s.Dummy(candidate)
	}
}

// NeedsUpgrade reports whether material should be replaced after a successful login:
// legacy material always, adaptive material hashed below the current cost.
func (s *Store) NeedsUpgrade(material domain.Credential) bool {
	switch material.Scheme {
	case domain.SchemeLegacySalted:
		return true
	case domain.SchemeAdaptive:
		cost, err := bcrypt.Cost([]byte(material.Hash))
		if err != nil {
			return true
		}
		return cost < s.cost
	default:
		return false
	}
}

// Upgrade derives adaptive material from a password that has just been verified.
// No length validation is applied: legacy passwords are carried over as they are.
func (s *Store) Upgrade(password string) (domain.Credential, error) {
	return s.hash(password)
}

// Dummy compares candidate against throwaway bcrypt material so that a
// lookup miss costs as much as a failed comparison. It always returns false.
func (s *Store) Dummy(candidate string) bool {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("hermes-dummy-password"), s.cost)
	})
	s.dummyRuns.Add(1)
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(candidate))
	return false
}

// NewLegacy builds first-generation material for password.
// The salt is the SHA-256 of the UTC time and the password, as legacy records stored it.
func NewLegacy(password string, now time.Time) domain.Credential {
	salt := crypto.SaltedDigest(now.UTC().String(), password)
	return domain.Credential{
		Scheme: domain.SchemeLegacySalted,
		Salt:   salt,
		Digest: crypto.SaltedDigest(salt, password),
	}
}
