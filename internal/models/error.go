package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account and session state errors
	ErrAccountLocked   = errors.New("account is temporarily locked")
	ErrSessionNotFound = errors.New("session not found")

	// Rule construction errors
	ErrUnknownRuleType          = errors.New("unknown rule type")
	ErrInvalidRuleConfiguration = errors.New("invalid rule configuration")
)

// RateLimitError is returned when a rate limit window is exhausted.
// RetryAfter tells the caller how long to back off before the window resets.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}
