// Package errs holds the error taxonomy shared by the billing services. Every
// error maps to a stable machine code that the HTTP layer exposes verbatim.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeAuthentication = "authentication_error"
	CodePermission     = "permission_denied"
	CodeValidation     = "validation_error"
	CodeNotFound       = "not_found"
	CodeUpstream       = "upstream_error"
	CodeConflict       = "conflict"
	CodeRateLimited    = "rate_limited"
)

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limited")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

// Invalid builds a ValidationError with code invalid_<field>.
func Invalid(field, message string) error {
	field = strings.TrimSpace(field)
	return &ValidationError{
		Field:   field,
		Code:    "invalid_" + field,
		Message: message,
	}
}

// Required builds a ValidationError for a missing field.
func Required(field string) error {
	field = strings.TrimSpace(field)
	return &ValidationError{
		Field:   field,
		Code:    "required",
		Message: field + " is required",
	}
}

// UpstreamError wraps a failed call to the gateway or the store.
type UpstreamError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s upstream failure", e.Op, kind)
	}
	return fmt.Sprintf("%s: %s upstream failure: %v", e.Op, kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func Upstream(op string, transient bool, err error) error {
	return &UpstreamError{Op: op, Transient: transient, Err: err}
}

// AsValidation returns the ValidationError in err's chain, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr != nil {
		return vErr, true
	}
	return nil, false
}

// AsUpstream returns the UpstreamError in err's chain, if any.
func AsUpstream(err error) (*UpstreamError, bool) {
	var uErr *UpstreamError
	if errors.As(err, &uErr) && uErr != nil {
		return uErr, true
	}
	return nil, false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	uErr, ok := AsUpstream(err)
	return ok && uErr.Transient
}

// Code returns the stable machine code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return CodeAuthentication
	case errors.Is(err, ErrPermissionDenied):
		return CodePermission
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	}
	if _, ok := AsValidation(err); ok {
		return CodeValidation
	}
	if _, ok := AsUpstream(err); ok {
		return CodeUpstream
	}
	return "internal_error"
}
