package booking

import (
	"errors"
	"net/http"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("booking: not found")

// Kind is the machine-readable error class surfaced to clients.
type Kind string

const (
	KindRateLimited      Kind = "RateLimited"
	KindInvalidRequest   Kind = "InvalidRequest"
	KindInvalidToken     Kind = "InvalidToken"
	KindScheduleNotFound Kind = "ScheduleNotFound"
	KindInvalidTimeRange Kind = "InvalidTimeRange"
	KindNotFound         Kind = "NotFound"
	KindConflict         Kind = "Conflict"
	KindInternal         Kind = "InternalError"
)

func (k Kind) HTTPStatus() int {
	switch k {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidRequest, KindInvalidTimeRange:
		return http.StatusBadRequest
	case KindInvalidToken, KindScheduleNotFound, KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	wrapped error
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches the underlying cause.
func (e *Error) Wrap(err error) *Error {
	if err != nil {
		e.wrapped = err
	}
	return e
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.wrapped.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// KindOf classifies err; anything that is not an *Error is an internal error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func internal(err error) *Error {
	return NewError(KindInternal, "internal server error").Wrap(err)
}
