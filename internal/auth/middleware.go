package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/domain"
)

// Authenticator verifies an email and password pair.
// Rejected claims must be reported as ErrBadCredentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
}

// Config contains configuration for the auth middleware.
type Config struct {
	// Realm is sent in the WWW-Authenticate challenge.
	Realm string

	// Logger receives authentication failures.
	Logger zerolog.Logger
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		Realm:  DefaultRealm,
		Logger: zerolog.Nop(),
	}
}

// Middleware authenticates requests that carry Basic credentials and stores
// the caller in the request context. Anonymous requests pass through
// untouched; use RequireActor on routes that need a caller. Credentials
// that are present but wrong are always rejected.
func Middleware(authn Authenticator, config Config) func(http.Handler) http.Handler {
	if config.Realm == "" {
		config.Realm = DefaultRealm
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch GetAuthType(r) {
			case AuthTypeAnonymous:
				next.ServeHTTP(w, r)
				return

			case AuthTypeBasic:
				email, password, err := ParseBasic(r.Header.Get(AuthorizationHeader))
				if err != nil {
					writeAuthError(w, config, err)
					return
				}

				user, err := authn.Authenticate(r.Context(), email, password)
				if err != nil {
					config.Logger.Debug().Err(err).Str("path", r.URL.Path).Msg("basic authentication failed")
					writeAuthError(w, config, err)
					return
				}

				r = r.WithContext(WithAuthContext(r.Context(), &AuthContext{
					User:     user,
					AuthType: AuthTypeBasic,
				}))

			default:
				writeAuthError(w, config, ErrUnsupportedScheme)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireActor rejects requests that Middleware did not authenticate.
func RequireActor(config Config) func(http.Handler) http.Handler {
	if config.Realm == "" {
		config.Realm = DefaultRealm
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Actor(r.Context()) == nil {
				writeAuthError(w, config, ErrMissingCredentials)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeAuthError writes a JSON error response, with a challenge on 401.
func writeAuthError(w http.ResponseWriter, config Config, err error) {
	authErr := NewAuthError(err)

	if authErr.HTTPStatus == http.StatusUnauthorized {
		w.Header().Set(WWWAuthenticateHeader, `Basic realm="`+config.Realm+`", charset="UTF-8"`)
	}
	if authErr.HTTPStatus == http.StatusInternalServerError {
		config.Logger.Error().Err(err).Msg("authentication backend failed")
	}

	var body errorBody
	body.Error.Code = authErr.Code
	body.Error.Message = authErr.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(body)
}
