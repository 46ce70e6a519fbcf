// Package domain contains the core business entities for Hermes.
// These are plain Go structs with no storage or transport dependencies,
// representing users, their credentials, the follow graph and microposts.
package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxNameLength is the maximum number of characters in a user's name.
	MaxNameLength = 50
)

// emailPattern is the accepted email shape, matched case-insensitively.
var emailPattern = regexp.MustCompile(`(?i)\A[\w+\-.]+@[a-z\d\-.]+\.[a-z]+\z`)

// User represents a registered member of the network.
type User struct {
	// ID is the unique identifier for the user (auto-generated).
	ID int64 `json:"id"`

	// Name is the display name.
	// Constraints: non-blank, at most 50 characters.
	Name string `json:"name"`

	// Email is the login identifier, stored lower-cased.
	// Unique across all users regardless of case.
	Email string `json:"email"`

	// IsAdmin indicates whether the user may delete other accounts.
	IsAdmin bool `json:"is_admin"`

	// Credential is the stored password material.
	// This must never be exposed in API responses.
	Credential Credential `json:"-"`

	// CreatedAt is the timestamp when the user registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the user was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new User with default values.
// Name and email are normalized the same way ValidateProfile expects them.
func NewUser(name, email string, credential Credential) *User {
	now := time.Now().UTC()
	return &User{
		Name:       strings.TrimSpace(name),
		Email:      NormalizeEmail(email),
		IsAdmin:    false,
		Credential: credential,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Is reports whether u is the user identified by id.
func (u *User) Is(id int64) bool {
	return u != nil && u.ID == id
}

// CanEdit reports whether u may change the profile of the user identified by targetID.
// Only the user themselves may edit a profile.
func (u *User) CanEdit(targetID int64) bool {
	return u.Is(targetID)
}

// CanDestroy reports whether u may delete the user identified by targetID.
// Administrators may delete anyone except themselves.
func (u *User) CanDestroy(targetID int64) error {
	if u == nil || !u.IsAdmin {
		return ErrAccessDenied
	}
	if u.Is(targetID) {
		return ErrCannotDestroySelf
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether email has an acceptable shape.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidateProfile checks the name and email attributes and returns every violation.
// Email uniqueness is a storage concern and is checked by the registry.
func ValidateProfile(name, email string) FieldErrors {
	var errs FieldErrors

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		errs.Add("name", CodeBlank, "can't be blank")
	case utf8.RuneCountInString(name) > MaxNameLength:
		errs.Add("name", CodeTooLong, "is too long (maximum is 50 characters)")
	}

	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs.Add("email", CodeBlank, "can't be blank")
	case !IsValidEmail(email):
		errs.Add("email", CodeInvalid, "is invalid")
	}

	return errs
}
