package batch

import (
	"errors"
)

// ErrorKind classifies per-query failures.
type ErrorKind string

const (
	// KindValidation marks a query with missing required fields. Never retried.
	KindValidation ErrorKind = "validation"
	// KindRemoteRejection marks a negative answer reported by the portal.
	KindRemoteRejection ErrorKind = "remote_rejection"
	// KindTransient marks navigation faults, step timeouts and unexpected panics.
	KindTransient ErrorKind = "transient"
	// KindCapture marks a failed evidence snapshot. It never reaches a Result.
	KindCapture ErrorKind = "capture"
	// KindEngine marks a shared engine that could not be started.
	KindEngine ErrorKind = "engine"
)

// Error is the error type produced by the batch core.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, defaulting to KindTransient for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransient
}

// IsRetryable reports whether another attempt may change the outcome.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRemoteRejection, KindTransient:
		return true
	default:
		return false
	}
}

func transient(step string, err error) error {
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Kind: KindTransient, Message: step, Err: err}
}
