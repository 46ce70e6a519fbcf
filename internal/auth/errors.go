package auth

import (
	"errors"
	"net/http"
)

// Authentication errors.
var (
	// ErrInvalidAuthorizationHeader indicates the Authorization header is malformed.
	ErrInvalidAuthorizationHeader = errors.New("invalid authorization header")

	// ErrUnsupportedScheme indicates an Authorization scheme other than Basic.
	ErrUnsupportedScheme = errors.New("unsupported authorization scheme")

	// ErrMissingCredentials indicates an anonymous request to a protected route.
	ErrMissingCredentials = errors.New("authentication required")

	// ErrBadCredentials indicates the email and password did not match.
	// Authenticators must return it (or wrap it) for every rejected claim.
	ErrBadCredentials = errors.New("invalid email or password")
)

// Error codes written in auth error bodies.
const (
	CodeMalformedAuthorization = "malformed_authorization"
	CodeUnauthenticated        = "unauthenticated"
	CodeInvalidCredentials     = "invalid_credentials"
	CodeInternal               = "internal_error"
)

// AuthError represents an authentication failure and the response it maps to.
type AuthError struct {
	// Code is the machine-readable error code.
	Code string

	// Message is the error message.
	Message string

	// HTTPStatus is the HTTP status code.
	HTTPStatus int
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Message
}

// NewAuthError creates a new AuthError from a standard error.
// Anything unrecognised is treated as an internal failure and its text is not exposed.
func NewAuthError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrInvalidAuthorizationHeader), errors.Is(err, ErrUnsupportedScheme):
		return &AuthError{
			Code:       CodeMalformedAuthorization,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadRequest,
		}

	case errors.Is(err, ErrMissingCredentials):
		return &AuthError{
			Code:       CodeUnauthenticated,
			Message:    err.Error(),
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrBadCredentials):
		return &AuthError{
			Code:       CodeInvalidCredentials,
			Message:    ErrBadCredentials.Error(),
			HTTPStatus: http.StatusUnauthorized,
		}

	default:
		return &AuthError{
			Code:       CodeInternal,
			Message:    "internal server error",
			HTTPStatus: http.StatusInternalServerError,
		}
	}
}
