package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for routing and reporting. Kinds are stable
// strings so they survive serialization into DLQ entries and audit rows.
type Kind string

const (
	KindConfiguration Kind = "configuration_error"
	KindAdapter       Kind = "adapter_unavailable"
	KindValidation    Kind = "validation_rule_error"
	KindTranslation   Kind = "translation_rule_error"
	KindPersistence   Kind = "persistence_error"
	KindPublish       Kind = "publish_error"
	KindDuplicate     Kind = "duplicate_signal"
	KindCircuitOpen   Kind = "circuit_open"
	KindInput         Kind = "input_validation_error"
	KindAuth          Kind = "authentication_error"
)

// Error wraps an underlying failure with its kind. API surfaces render the
// kind; the wrapped error stays in logs only.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with the given kind. A nil err yields a bare kind error.
func E(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Ef wraps a formatted message with the given kind
func Ef(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind of err, or empty if it carries none
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
