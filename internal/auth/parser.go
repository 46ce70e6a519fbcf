package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// GetAuthType determines the authentication type from a request.
func GetAuthType(r *http.Request) AuthType {
	header := r.Header.Get(AuthorizationHeader)
	if header == "" {
		return AuthTypeAnonymous
	}
	scheme, _, _ := strings.Cut(header, " ")
	if strings.EqualFold(scheme, BasicScheme) {
		return AuthTypeBasic
	}
	return AuthTypeUnknown
}

// ParseBasic decodes a "Basic <base64(email:password)>" header value.
// The password may contain colons; the email may not.
func ParseBasic(header string) (email, password string, err error) {
	scheme, encoded, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return "", "", ErrInvalidAuthorizationHeader
	}
	if !strings.EqualFold(scheme, BasicScheme) {
		return "", "", ErrUnsupportedScheme
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", ErrInvalidAuthorizationHeader
	}

	email, password, ok = strings.Cut(string(decoded), ":")
	if !ok || email == "" {
		return "", "", ErrInvalidAuthorizationHeader
	}
	return email, password, nil
}

// BasicHeader encodes email and password as a Basic Authorization header value.
func BasicHeader(email, password string) string {
	return BasicScheme + " " + base64.StdEncoding.EncodeToString([]byte(email+":"+password))
}
