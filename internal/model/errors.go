package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors, one per failure class.
// Use errors.Is() to check against these.
var (
	ErrAuth            = errors.New("auth error")
	ErrValidation      = errors.New("validation error")
	ErrRemoteOperation = errors.New("remote operation failed")
	ErrStorage         = errors.New("storage error")
	ErrCheckout        = errors.New("checkout failed")
	ErrNotFound        = errors.New("not found")
)

// CheckoutFailure classifies checkout errors for user messaging.
type CheckoutFailure string

const (
	CheckoutTimeout     CheckoutFailure = "timeout"
	CheckoutUnavailable CheckoutFailure = "unavailable"
	CheckoutGeneric     CheckoutFailure = "generic"
)

// Error is the structured error surfaced to callers of the sync subsystem.
// Implements error interface and supports unwrapping to its class sentinel.
type Error struct {
	Code    string
	Message string

	// Retryable hints that the caller may retry the same operation unchanged.
	Retryable bool

	// RetryAfter is set when the remote side announced a backoff window.
	RetryAfter time.Duration

	// Failure is set on checkout errors only.
	Failure CheckoutFailure

	// StatusCode is the upstream HTTP status when one was involved.
	StatusCode int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewAuthError creates an error for credential rejection, invalid refresh tokens
// or a misconfigured auth backend.
func NewAuthError(code, reason string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: reason,
		Err:     wrap(ErrAuth, cause),
	}
}

// NewSignInRequiredError reports an operation that needs an authenticated session.
func NewSignInRequiredError(action string) *Error {
	return &Error{
		Code:    "SIGN_IN_REQUIRED",
		Message: fmt.Sprintf("sign in to %s", action),
		Err:     ErrAuth,
	}
}

// NewValidationError creates an error for invalid input. It never partially applies.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
		Err:     ErrValidation,
	}
}

// NewPreconditionError creates a validation error with a specific code,
// e.g. CART_EMPTY or VARIANT_REQUIRED.
func NewPreconditionError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     ErrValidation,
	}
}

// NewNotFoundError creates an error for a missing item or record.
func NewNotFoundError(resource string) *Error {
	return &Error{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Err:     ErrNotFound,
	}
}

// NewRemoteError wraps a failed collection or backend call.
// The in-memory state is left unchanged by the failing operation; callers may retry.
func NewRemoteError(operation string, err error) *Error {
	return &Error{
		Code:      "REMOTE_ERROR",
		Message:   fmt.Sprintf("%s failed", operation),
		Retryable: true,
		Err:       wrap(ErrRemoteOperation, err),
	}
}

// NewUpstreamError reports a failed call to the hosted backend. statusCode is
// zero for transport failures. Rate limiting and server errors are retryable.
func NewUpstreamError(service string, statusCode int, err error) *Error {
	msg := fmt.Sprintf("%s request failed", service)
	if statusCode > 0 {
		msg = fmt.Sprintf("%s returned status %d", service, statusCode)
	}
	return &Error{
		Code:       "UPSTREAM_ERROR",
		Message:    msg,
		Retryable:  statusCode == 0 || statusCode == 429 || statusCode >= 500,
		StatusCode: statusCode,
		Err:        wrap(ErrRemoteOperation, err),
	}
}

// NewStorageError wraps a local persistence failure.
func NewStorageError(key string, err error) *Error {
	return &Error{
		Code:    "STORAGE_ERROR",
		Message: fmt.Sprintf("local storage %s", key),
		Err:     wrap(ErrStorage, err),
	}
}

// NewCheckoutError creates a classified checkout error carrying the user-facing message.
func NewCheckoutError(failure CheckoutFailure, err error) *Error {
	return &Error{
		Code:    "CHECKOUT_" + strings.ToUpper(string(failure)),
		Message: CheckoutMessage(failure),
		Failure: failure,
		Err:     wrap(ErrCheckout, err),
	}
}

// CheckoutMessage returns the user-facing text for a checkout failure class.
func CheckoutMessage(failure CheckoutFailure) string {
	switch failure {
	case CheckoutTimeout:
		return "Checkout is taking too long to respond. Please try again."
	case CheckoutUnavailable:
		return "Checkout is temporarily unavailable. Please try again in a few minutes."
	default:
		return "We couldn't start checkout. Please try again."
	}
}

// wrap joins a class sentinel with an optional cause so both match errors.Is.
func wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
