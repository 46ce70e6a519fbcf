package auth

import (
	"context"

	"github.com/prn-tf/hermes/internal/domain"
)

// AuthType describes how a request presented its identity.
type AuthType int

const (
	// AuthTypeAnonymous indicates no Authorization header.
	AuthTypeAnonymous AuthType = iota

	// AuthTypeBasic indicates HTTP Basic credentials.
	AuthTypeBasic

	// AuthTypeUnknown indicates an Authorization header with another scheme.
	AuthTypeUnknown
)

// String returns the string representation of the auth type.
func (t AuthType) String() string {
	switch t {
	case AuthTypeAnonymous:
		return "anonymous"
	case AuthTypeBasic:
		return "basic"
	default:
		return "unknown"
	}
}

// AuthContext describes the authenticated caller of a request.
type AuthContext struct {
	// User is the acting user.
	User *domain.User

	// AuthType is how the caller authenticated.
	AuthType AuthType
}

type contextKey string

// AuthContextKey is the context key under which the AuthContext is stored.
const AuthContextKey contextKey = "auth"

// WithAuthContext returns a copy of ctx carrying authCtx.
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, authCtx)
}

// GetAuthContext retrieves the AuthContext from a request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

// Actor returns the authenticated user, or nil for anonymous requests.
func Actor(ctx context.Context) *domain.User {
	if authCtx := GetAuthContext(ctx); authCtx != nil {
		return authCtx.User
	}
	return nil
}

// RequireAuth returns the authenticated user or ErrMissingCredentials.
func RequireAuth(ctx context.Context) (*domain.User, error) {
	if user := Actor(ctx); user != nil {
		return user, nil
	}
	return nil, ErrMissingCredentials
}
