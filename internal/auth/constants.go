// Package auth provides HTTP Basic authentication for the Hermes API.
// Credentials are checked against the user registry on every request;
// there are no sessions and no cookies.
package auth

// =============================================================================
// Header Constants
// =============================================================================

const (
	// AuthorizationHeader is the HTTP header for authorization.
	AuthorizationHeader = "Authorization"

	// WWWAuthenticateHeader carries the challenge on 401 responses.
	WWWAuthenticateHeader = "WWW-Authenticate"

	// BasicScheme is the only accepted authorization scheme.
	BasicScheme = "Basic"

	// DefaultRealm is the challenge realm when none is configured.
	DefaultRealm = "hermes"
)
