package faults

import (
	"errors"
	"fmt"
)

// Kind buckets an error for status mapping and caller policy.
// Validation errors are never retried; infrastructure errors may be
// resubmitted by the caller; domain errors are terminal.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDomain
	KindInfrastructure
	KindNotFound
	KindTimeout
)

// ErrNotFound marks an unknown or expired job id.
var ErrNotFound = &Error{kind: KindNotFound, msg: "not found"}

// ErrAwaitTimeout marks a blocking wait that hit its ceiling. The job
// itself may still be running.
var ErrAwaitTimeout = &Error{kind: KindTimeout, msg: "await timed out"}

// Error is a kinded error with optional wrapped cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is treats two faults with the same kind as equivalent, so
// errors.Is(err, faults.ErrNotFound) works on wrapped instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

func Validation(format string, args ...any) error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func Domain(format string, args ...any) error {
	return &Error{kind: KindDomain, msg: fmt.Sprintf(format, args...)}
}

func Infrastructure(err error, format string, args ...any) error {
	return &Error{kind: KindInfrastructure, msg: fmt.Sprintf(format, args...), err: err}
}

func NotFound(format string, args ...any) error {
	return &Error{kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the fault kind from anywhere in the chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindUnknown
}

func IsValidation(err error) bool     { return KindOf(err) == KindValidation }
func IsInfrastructure(err error) bool { return KindOf(err) == KindInfrastructure }
