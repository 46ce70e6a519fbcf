package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/service"
)

// Request errors raised by the handlers themselves.
var (
	// ErrMalformedBody indicates a request body that is not valid JSON.
	ErrMalformedBody = errors.New("malformed request body")

	// ErrInvalidParameter indicates a path or query parameter that could not be parsed.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// APIError is a JSON error body.
type APIError struct {
	// Code is the machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Fields lists every violated constraint on validation failures.
	Fields domain.FieldErrors `json:"fields,omitempty"`

	// HTTPStatusCode is the response status.
	HTTPStatusCode int `json:"-"`
}

type errorEnvelope struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

// ToAPIError maps an error returned by a service to its API representation.
// Infrastructure failures never leak their text.
func ToAPIError(err error) APIError {
	var verr *domain.ValidationError

	switch {
	case errors.As(err, &verr):
		return APIError{
			Code:           "validation_failed",
			Message:        domain.ErrValidation.Error(),
			Fields:         verr.Errors,
			HTTPStatusCode: http.StatusUnprocessableEntity,
		}
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRelationshipNotFound),
		errors.Is(err, domain.ErrMicropostNotFound):
		return APIError{Code: "not_found", Message: rootMessage(err), HTTPStatusCode: http.StatusNotFound}
	case errors.Is(err, domain.ErrAlreadyFollowing):
		return APIError{Code: "already_following", Message: rootMessage(err), HTTPStatusCode: http.StatusConflict}
	case errors.Is(err, domain.ErrCannotFollowSelf):
		return APIError{Code: "cannot_follow_self", Message: rootMessage(err), HTTPStatusCode: http.StatusUnprocessableEntity}
	case errors.Is(err, service.ErrInvalidCredentials):
		return APIError{Code: "invalid_credentials", Message: rootMessage(err), HTTPStatusCode: http.StatusUnauthorized}
	case errors.Is(err, domain.ErrAccessDenied):
		return APIError{Code: "access_denied", Message: domain.ErrAccessDenied.Error(), HTTPStatusCode: http.StatusForbidden}
	case errors.Is(err, domain.ErrCannotDestroySelf):
		return APIError{Code: "cannot_destroy_self", Message: rootMessage(err), HTTPStatusCode: http.StatusForbidden}
	case errors.Is(err, service.ErrInvalidCursor):
		return APIError{Code: "invalid_cursor", Message: service.ErrInvalidCursor.Error(), HTTPStatusCode: http.StatusBadRequest}
	case errors.Is(err, ErrMalformedBody), errors.Is(err, ErrInvalidParameter):
		return APIError{Code: "bad_request", Message: err.Error(), HTTPStatusCode: http.StatusBadRequest}
	default:
		return APIError{Code: "internal_error", Message: service.ErrInternalError.Error(), HTTPStatusCode: http.StatusInternalServerError}
	}
}

// rootMessage returns the text of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// writeError writes err as a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := ToAPIError(err)

	if apiErr.HTTPStatusCode >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}

	writeJSON(w, apiErr.HTTPStatusCode, errorEnvelope{
		Error:     apiErr,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
