// Package xerrors classifies failures of the settlement and transfer flows.
//
// A ValidationError is detected locally and never reaches the network. A
// RecoverableError leaves the flow resumable. A FatalError aborts the flow; the
// caller routes the user to a safe screen and offers no retry.
package xerrors

import (
	"errors"
	"fmt"
)

// ValidationError describes a client-side rule violation.
type ValidationError struct {
	Field       string
	Description string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Description
	}
	return fmt.Sprintf("validation [%s]: %s", e.Field, e.Description)
}

// RecoverableError wraps a failure after which the same operation may be
// retried (service FAILURE answers, transport errors).
type RecoverableError struct {
	Op  string
	Msg string
	Err error
}

func (e *RecoverableError) Error() string {
	return describe(e.Op, e.Msg, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// FatalError wraps a failure that ends the flow (service TERMINATED answers,
// PIN lockout, session end).
type FatalError struct {
	Op  string
	Msg string
	Err error
}

func (e *FatalError) Error() string {
	return describe(e.Op, e.Msg, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func describe(op, msg string, err error) string {
	switch {
	case msg != "" && err != nil:
		return fmt.Sprintf("%s: %s: %v", op, msg, err)
	case err != nil:
		return fmt.Sprintf("%s: %v", op, err)
	default:
		return fmt.Sprintf("%s: %s", op, msg)
	}
}

// Recoverable returns a RecoverableError for op.
func Recoverable(op, msg string, err error) error {
	return &RecoverableError{Op: op, Msg: msg, Err: err}
}

// Fatal returns a FatalError for op.
func Fatal(op, msg string, err error) error {
	return &FatalError{Op: op, Msg: msg, Err: err}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var ves ValidationErrors
	return errors.As(err, &ves)
}

// IsRecoverable reports whether err is or wraps a RecoverableError.
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return errors.As(err, &re)
}

// IsFatal reports whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ValidationErrors groups several violations found in one payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "validation failed"
	case 1:
		return v[0].Error()
	}
	msg := fmt.Sprintf("validation failed (%d problems): %s", len(v), v[0].Error())
	for _, e := range v[1:] {
		msg += "; " + e.Error()
	}
	return msg
}
