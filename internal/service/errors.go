// Package service provides the business logic of Hermes: the user registry,
// the follow graph, the feed aggregator and the micropost store.
package service

import (
	"errors"
	"fmt"

	"github.com/prn-tf/hermes/internal/domain"
)

// Common service errors.
var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidCursor indicates a feed cursor that could not be decoded.
	ErrInvalidCursor = errors.New("invalid feed cursor")

	// ErrInternalError wraps every infrastructure failure.
	ErrInternalError = errors.New("internal server error")
)

// passthrough lists the errors services return to callers unchanged.
var passthrough = []error{
	domain.ErrValidation,
	domain.ErrUserNotFound,
	domain.ErrRelationshipNotFound,
	domain.ErrAlreadyFollowing,
	domain.ErrCannotFollowSelf,
	domain.ErrMicropostNotFound,
	domain.ErrAccessDenied,
	domain.ErrCannotDestroySelf,
}

// isDomainError reports whether err is a business rule violation rather than
// an infrastructure failure.
func isDomainError(err error) bool {
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// internal wraps err as ErrInternalError unless it is a domain error.
func internal(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}
