package engine

import (
	"errors"
	"fmt"
)

// CoreError represents an error returned by environment operations.
//
// Every failure mode is a value returned to the caller. Propagation
// failures are the one exception: they are aggregated into the
// PropagationReport instead of aborting the pass, so one broken
// dependent cannot block unrelated branches.
type CoreError struct {
	// Code identifies the error category.
	Code CoreErrorCode

	// Message is a human-readable description.
	Message string

	// Name identifies the affected variable or transaction, when known.
	Name string

	// Err holds the underlying cause (graph, evaluator or type error).
	Err error
}

// CoreErrorCode categorizes environment errors.
type CoreErrorCode string

const (
	// ErrCodeCycleDetected rejects a definition that would create a
	// circular dependency. The graph is left unchanged.
	ErrCodeCycleDetected CoreErrorCode = "CYCLE_DETECTED"

	// ErrCodeTypeMismatch rejects a value incompatible with a variable's
	// declared type. The variable is left unchanged.
	ErrCodeTypeMismatch CoreErrorCode = "TYPE_MISMATCH"

	// ErrCodeConstantViolation rejects mutation of a frozen variable.
	ErrCodeConstantViolation CoreErrorCode = "CONSTANT_VIOLATION"

	// ErrCodeEval indicates the expression evaluator failed.
	ErrCodeEval CoreErrorCode = "EVAL_ERROR"

	// ErrCodeTxnState indicates a transaction verb called in the wrong
	// state, including opening a second transaction while one is active.
	ErrCodeTxnState CoreErrorCode = "TXN_STATE"

	// ErrCodeUnknownVariable indicates an operation on an undefined name.
	ErrCodeUnknownVariable CoreErrorCode = "UNKNOWN_VARIABLE"

	// ErrCodeInvalidName rejects a malformed variable name.
	ErrCodeInvalidName CoreErrorCode = "INVALID_NAME"

	// ErrCodeQuotaExceeded indicates a propagation cascade exceeded the
	// environment's step quota. Already-applied recomputations are kept.
	ErrCodeQuotaExceeded CoreErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (var=%s)", e.Code, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.As chains.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code, or "" for non-core errors.
func CodeOf(err error) CoreErrorCode {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsConstantViolation returns true for frozen-variable rejections.
func IsConstantViolation(err error) bool {
	return CodeOf(err) == ErrCodeConstantViolation
}

// IsTxnState returns true for transaction state machine violations.
func IsTxnState(err error) bool {
	return CodeOf(err) == ErrCodeTxnState
}

func coreErrf(code CoreErrorCode, name, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Name: name, Message: fmt.Sprintf(format, args...)}
}
