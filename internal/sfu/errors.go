package sfu

import (
	"errors"
	"fmt"

	"github.com/classmesh/sfu/internal/session"
	"github.com/classmesh/sfu/internal/worker"
)

// Code is the error class surfaced at the transport boundary.
type Code string

const (
	CodeValidation   Code = "validation"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeAuthMissing  Code = "auth_missing"
	CodeAuthExpired  Code = "auth_expired"
	CodeAuthMismatch Code = "auth_mismatch"
	CodeInternal     Code = "internal"
)

// Error carries a transport code together with a descriptive message. The
// connection stays open for everything except the auth codes, which the
// adapter maps to a close.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// CodeOf classifies any error into a transport code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, session.ErrTrackNotFound),
		errors.Is(err, session.ErrConsumerNotFound),
		errors.Is(err, session.ErrClientNotFound):
		return CodeNotFound
	case errors.Is(err, session.ErrSelfConsume),
		errors.Is(err, session.ErrDuplicateClient),
		errors.Is(err, session.ErrNoCapabilities),
		errors.Is(err, session.ErrNoTransport):
		return CodeValidation
	case errors.Is(err, worker.ErrNoProducerWorker),
		errors.Is(err, worker.ErrNoConsumerWorker):
		return CodeInternal
	}
	return CodeInternal
}
