package errs

import (
	"errors"
)

// Code is a verification error code.
type Code string

const (
	InvalidArgument    Code = "invalid_argument"
	Timeout            Code = "timeout"
	Mismatch           Code = "mismatch"
	Navigation         Code = "navigation"
	FailedPrecondition Code = "failed_precondition"
	Canceled           Code = "canceled"
	Unavailable        Code = "unavailable"
	Internal           Code = "internal"
)

// Error is a coded verification error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// MessageOf returns the short message of the outermost coded error.
// Untyped errors fall back to their own text.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}

// ExitCode maps an error code to a process exit status.
func ExitCode(code Code) int {
	switch code {
	case InvalidArgument:
		return 2
	case Timeout:
		return 3
	case Mismatch:
		return 4
	case Navigation:
		return 5
	default:
		return 1
	}
}

// ExitCodeOf returns the exit status for err; nil maps to 0.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	return ExitCode(CodeOf(err))
}
