package expr

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes evaluator failures.
type ErrorCode string

const (
	// ErrCodeParse indicates the expression text could not be parsed.
	ErrCodeParse ErrorCode = "PARSE_ERROR"

	// ErrCodeUndefinedReference indicates a referenced variable does not exist.
	ErrCodeUndefinedReference ErrorCode = "UNDEFINED_REFERENCE"

	// ErrCodeType indicates an operation was applied to incompatible operands.
	ErrCodeType ErrorCode = "TYPE_ERROR"

	// ErrCodeArity indicates a builtin was called with the wrong argument count.
	ErrCodeArity ErrorCode = "BAD_ARITY"

	// ErrCodeDivZero indicates integer division or modulo by zero.
	ErrCodeDivZero ErrorCode = "DIV_ZERO"

	// ErrCodeUnknownFunction indicates a call to a function that is not a builtin.
	ErrCodeUnknownFunction ErrorCode = "UNKNOWN_FUNCTION"
)

// EvalError is the error value returned by parsing and evaluation.
// It carries a code for dispatch and the offending position when known.
type EvalError struct {
	Code    ErrorCode
	Message string
	Pos     int // byte offset into the expression source, -1 if unknown
}

func (e *EvalError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s at offset %d: %s", e.Code, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func evalErrf(code ErrorCode, pos int, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// CodeOf extracts the ErrorCode from an error, or "" if it is not an
// EvalError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
