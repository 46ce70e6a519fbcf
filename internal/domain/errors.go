// Package domain contains the core business entities for Hermes.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrValidation is the target for errors.Is on every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ===========================================
	// Relationship Errors
	// ===========================================

	// ErrRelationshipNotFound indicates there is no follow edge between the two users.
	ErrRelationshipNotFound = errors.New("relationship not found")

	// ErrAlreadyFollowing indicates the follow edge already exists.
	ErrAlreadyFollowing = errors.New("already following user")

	// ErrCannotFollowSelf indicates a user tried to follow themselves.
	ErrCannotFollowSelf = errors.New("cannot follow oneself")

	// ===========================================
	// Micropost Errors
	// ===========================================

	// ErrMicropostNotFound indicates the requested micropost does not exist.
	ErrMicropostNotFound = errors.New("micropost not found")

	// ===========================================
	// Authorization Errors
	// ===========================================

	// ErrAccessDenied indicates the acting user does not have permission.
	ErrAccessDenied = errors.New("access denied")

	// ErrCannotDestroySelf indicates an administrator tried to delete their own account.
	ErrCannotDestroySelf = errors.New("cannot delete oneself")
)

// Validation codes carried by FieldError.
const (
	CodeBlank        = "blank"
	CodeTooShort     = "too_short"
	CodeTooLong      = "too_long"
	CodeInvalid      = "invalid"
	CodeTaken        = "taken"
	CodeConfirmation = "confirmation"
)

// FieldError is a single violated constraint on one attribute.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Field + " " + f.Message
}

// FieldErrors is an ordered list of violations collected by validators.
type FieldErrors []FieldError

// Add appends a violation.
func (fe *FieldErrors) Add(field, code, message string) {
	*fe = append(*fe, FieldError{Field: field, Code: code, Message: message})
}

// Err returns a *ValidationError when any violation was collected, nil otherwise.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return &ValidationError{Errors: fe}
}

// ValidationError reports every constraint an attribute set violates.
type ValidationError struct {
	Errors FieldErrors `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Has reports whether the given field failed with the given code.
func (e *ValidationError) Has(field, code string) bool {
	for _, f := range e.Errors {
		if f.Field == field && f.Code == code {
			return true
		}
	}
	return false
}

// Fields returns the distinct field names in violation order.
func (e *ValidationError) Fields() []string {
	seen := make(map[string]struct{}, len(e.Errors))
	fields := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		if _, ok := seen[f.Field]; ok {
			continue
		}
		seen[f.Field] = struct{}{}
		fields = append(fields, f.Field)
	}
	return fields
}

// NewValidationError builds a ValidationError holding a single violation.
func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Errors: FieldErrors{{Field: field, Code: code, Message: message}}}
}

// EmailTakenError reports that another user already holds the email.
func EmailTakenError() *ValidationError {
	return NewValidationError("email", CodeTaken, "has already been taken")
}

// DomainError wraps a domain error with additional context.
type DomainError struct {
	Err      error
	Message  string
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
