package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/econoflow/econoflow/internal/httpx"
)

// NotAvailableError means the provider has no data for the request: the
// resource does not exist, came back empty, or failed in a non-retryable way.
// The orchestrator reacts by walking the fallback chain; if that is exhausted
// the error surfaces to the caller with its suggestions intact.
type NotAvailableError struct {
	Provider    Name
	Indicator   string
	Reason      string
	Suggestions []string
}

func (e *NotAvailableError) Error() string {
	if e.Indicator != "" {
		return fmt.Sprintf("%s: no data for %q: %s", e.Provider, e.Indicator, e.Reason)
	}
	return fmt.Sprintf("%s: no data: %s", e.Provider, e.Reason)
}

// NotAvailable builds a NotAvailableError with a formatted reason.
func NotAvailable(p Name, indicator, format string, args ...any) *NotAvailableError {
	return &NotAvailableError{Provider: p, Indicator: indicator, Reason: fmt.Sprintf(format, args...)}
}

// RateLimitedError reports a 429 or an open circuit breaker. RetryAfter is
// zero when the upstream gave no hint.
type RateLimitedError struct {
	Provider   Name
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// InvalidInputError reports a caller-side validation failure: unknown
// country, unmapped region, incompatible parameters. Clarifications are
// questions the caller can relay to the user.
type InvalidInputError struct {
	Field          string
	Reason         string
	Clarifications []string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidInput builds an InvalidInputError with a formatted reason.
func InvalidInput(field, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DecodeError reports an adapter decoding failure: the upstream answered but
// in a shape the adapter does not understand. Logged with diagnostics and
// treated as data-not-available at the orchestrator boundary.
type DecodeError struct {
	Provider Name
	Detail   string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: decode %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: decode %s", e.Provider, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FromHTTP maps a transport error onto the provider taxonomy: 429 becomes
// RateLimitedError carrying the upstream's Retry-After hint, and the
// never-retryable client statuses (400/403/404/422) become NotAvailableError.
// Everything else passes through untouched for the retry layer to judge.
func FromHTTP(p Name, indicator string, err error) error {
	if err == nil {
		return nil
	}
	switch httpx.StatusCode(err) {
	case http.StatusTooManyRequests:
		return &RateLimitedError{Provider: p, RetryAfter: httpx.RetryAfter(err)}
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity:
		return &NotAvailableError{Provider: p, Indicator: indicator, Reason: err.Error()}
	}
	return err
}

// IsNotAvailable reports whether err is (or wraps) a NotAvailableError.
func IsNotAvailable(err error) bool {
	var na *NotAvailableError
	return errors.As(err, &na)
}

// IsRateLimited reports whether err is (or wraps) a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsInvalidInput reports whether err is (or wraps) an InvalidInputError.
func IsInvalidInput(err error) bool {
	var ii *InvalidInputError
	return errors.As(err, &ii)
}
