// Package apperr defines the error kinds surfaced by services and how they
// map onto HTTP responses.
//
// Stores return sentinel errors and found flags; services translate those
// into *Error values; handlers call HTTPStatus to pick a response code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for callers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuthorization
	KindExternalRetryable
	KindExternalTerminal
	KindInconsistentState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindExternalRetryable:
		return "external_retryable"
	case KindExternalTerminal:
		return "external_terminal"
	case KindInconsistentState:
		return "inconsistent_state"
	default:
		return "internal"
	}
}

// Error is a classified error with a user-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(msg string, err error) error {
	return &Error{Kind: KindConflict, Msg: msg, Err: err}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindAuthorization, Msg: msg}
}

// External wraps a failure of a collaborating system.
func External(retryable bool, msg string, err error) error {
	k := KindExternalTerminal
	if retryable {
		k = KindExternalRetryable
	}
	return &Error{Kind: k, Msg: msg, Err: err}
}

// InconsistentStateError reports a multi-step operation that stopped part way.
// Steps in Completed already took effect and were not undone.
type InconsistentStateError struct {
	AssistantID string
	FailedStep  string
	Completed   []string
	Retryable   bool
	ResumeToken string
	Err         error
}

func (e *InconsistentStateError) Error() string {
	done := "none"
	if len(e.Completed) > 0 {
		done = strings.Join(e.Completed, ",")
	}
	return fmt.Sprintf("assistant %s: step %q failed (completed: %s): %v", e.AssistantID, e.FailedStep, done, e.Err)
}

func (e *InconsistentStateError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ise *InconsistentStateError
	if errors.As(err, &ise) {
		return KindInconsistentState
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsRetryable reports whether repeating the operation may succeed.
func IsRetryable(err error) bool {
	var ise *InconsistentStateError
	if errors.As(err, &ise) {
		return ise.Retryable
	}
	return KindOf(err) == KindExternalRetryable
}

// Message returns a message safe to show to API callers.
func Message(err error) string {
	var ise *InconsistentStateError
	if errors.As(err, &ise) {
		if KindOf(ise.Err) == KindConflict {
			return Message(ise.Err) + "; publication incomplete at step " + ise.FailedStep
		}
		return "publication incomplete at step " + ise.FailedStep
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal error"
}

// HTTPStatus maps err onto a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindExternalRetryable:
		return http.StatusServiceUnavailable
	case KindExternalTerminal:
		return http.StatusBadGateway
	case KindInconsistentState:
		// A conflicting cause (the routing key was claimed mid-run) needs a
		// rename, not a retry.
		var ise *InconsistentStateError
		if errors.As(err, &ise) && KindOf(ise.Err) == KindConflict {
			return http.StatusConflict
		}
		if IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
