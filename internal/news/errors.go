package news

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the orchestrator and API can decide how
// to react without string matching.
type ErrorKind string

// Error kinds surfaced by adapters, stores, and the registry.
const (
	KindValidation        ErrorKind = "validation"
	KindAuth              ErrorKind = "auth"
	KindRateLimited       ErrorKind = "rate_limited"
	KindUpstream          ErrorKind = "upstream"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindStorage           ErrorKind = "storage"
	KindNoResults         ErrorKind = "no_results"
	KindNotFound          ErrorKind = "not_found"
)

// Error carries a kind alongside a human-readable detail.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error wrapping an optional cause.
func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err. Unclassified errors are treated as
// upstream failures; nil returns the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Detail returns the human-readable message of err, falling back to
// err.Error() for unclassified errors.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return err.Error()
}
