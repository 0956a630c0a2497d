// Package apperr defines the domain error taxonomy shared by every service.
// Handlers translate an error's kind into an HTTP status at the operation
// boundary; services never return raw persistence errors to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error.
type Kind int

const (
	// Validation marks malformed input: negative amounts, out-of-range
	// discounts, overpayment attempts. Always recoverable locally.
	Validation Kind = iota + 1
	// InvalidState marks an action against an entity whose state forbids it,
	// e.g. editing an approved budget.
	InvalidState
	// InvalidTransition marks a forbidden state-machine move, e.g. starting
	// an already-started treatment.
	InvalidTransition
	// NotFound marks a missing referenced entity.
	NotFound
	// Conflict marks a violated resource singleton, e.g. a second open
	// cash-register session.
	Conflict
	// Persistence marks a transient storage failure. Cascades wrap these so
	// callers can retry the whole unit.
	Persistence
	// Locked is the financial lock: not a defect, a business rule. Carries
	// the overdue amount in Details.
	Locked
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case InvalidState:
		return "invalid_state"
	case InvalidTransition:
		return "invalid_transition"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Persistence:
		return "persistence"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Error is a classified domain error. Details carries structured context for
// the client (e.g. the overdue amount behind a Locked error).
type Error struct {
	Kind    Kind
	Msg     string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, preserving it for errors.Is/As chains.
func Wrap(k Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails attaches structured context and returns the same error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// KindOf returns the kind of err, or 0 when err carries no classification.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// Status maps a classified error to its HTTP status code. Unclassified
// errors are treated as internal failures.
func Status(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case InvalidState, InvalidTransition, Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Locked:
		return http.StatusLocked
	case Persistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
