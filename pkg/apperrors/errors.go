package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a workflow error so callers can react without parsing messages.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindValidation   Kind = "validation_error"
	KindSlotExceeded Kind = "slot_exceeded"
	KindCooldown     Kind = "cooldown"
	KindConflict     Kind = "conflict"
	KindNotRequired  Kind = "not_required"
)

// Error is a recoverable, caller-facing workflow error. None of these are
// fatal to the process.
type Error struct {
	Kind    Kind
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

// HTTPStatus maps the error kind to a response status for the Gin layer.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindCooldown:
		return http.StatusTooManyRequests
	case KindInvalidState, KindSlotExceeded, KindConflict, KindNotRequired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidState names the actual current status so the caller can see what
// the record looked like when the action was refused.
func InvalidState(action, currentStatus string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("action %q is not allowed from status %q", action, currentStatus),
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func SlotExceeded(targetType string, limit int) *Error {
	return &Error{
		Kind:    KindSlotExceeded,
		Message: fmt.Sprintf("sponsor already has %d open requests for target type %q", limit, targetType),
	}
}

func CooldownActive(until time.Time) *Error {
	return &Error{
		Kind:    KindCooldown,
		Message: fmt.Sprintf("target declined a previous request; retry after %s", until.UTC().Format(time.RFC3339)),
	}
}

// Conflict reports a concurrent-modification race: the conditional update
// matched zero rows because the status changed underneath the caller.
func Conflict(entity string, id any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf("%s %v was modified concurrently", entity, id)}
}

func NotRequired(format string, args ...any) *Error {
	return &Error{Kind: KindNotRequired, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus returns the status for any error, falling back to 500 for
// errors outside the workflow taxonomy.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
