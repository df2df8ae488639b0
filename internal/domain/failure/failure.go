// Package failure classifies errors raised while acquiring data, training and
// persisting results, so callers can decide between retrying, degrading and
// aborting a training cycle.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the failure class.
type Kind string

const (
	// Network covers non-success statuses, transport errors and timeouts. Retryable.
	Network Kind = "network_failure"
	// Malformed is an unexpected payload shape. Never retried.
	Malformed Kind = "malformed_response"
	// Persistence is a state-store read or write error.
	Persistence Kind = "persistence_failure"
	// Model is a fit/predict/serialize error from the sequence model.
	Model Kind = "model_failure"
)

// Error carries a Kind, the failing operation and the cause.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Timeout bool
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Timeout {
		msg += " (timeout)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind so errors.Is(err, failure.ErrNetwork) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNetwork     = &Error{Kind: Network}
	ErrMalformed   = &Error{Kind: Malformed}
	ErrPersistence = &Error{Kind: Persistence}
	ErrModel       = &Error{Kind: Model}
)

func NetworkError(op string, err error) error {
	return &Error{Kind: Network, Op: op, Err: err}
}

// TimeoutError is a network failure caused by the per-request deadline.
func TimeoutError(op string, err error) error {
	return &Error{Kind: Network, Op: op, Err: err, Timeout: true}
}

func MalformedError(op string, err error) error {
	return &Error{Kind: Malformed, Op: op, Err: err}
}

func MalformedErrorf(op, format string, a ...interface{}) error {
	return MalformedError(op, fmt.Errorf(format, a...))
}

func PersistenceError(op string, err error) error {
	return &Error{Kind: Persistence, Op: op, Err: err}
}

func ModelError(op string, err error) error {
	return &Error{Kind: Model, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == Network
}

// IsTimeout reports whether err came from a request deadline.
func IsTimeout(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Timeout
}
