// Package execution drives a trade signal from intake through risk gating,
// bracket construction, fills and position lifecycle.
package execution

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure class. Codes survive message
// rewording, so API clients and the task queue branch on them.
type ErrorCode string

const (
	CodeValidation     ErrorCode = "VALIDATION"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeConflict       ErrorCode = "CONFLICT"
	CodeRiskRejected   ErrorCode = "RISK_REJECTED"
	CodeCircuitBreaker ErrorCode = "CIRCUIT_BREAKER"
	CodeBroker         ErrorCode = "BROKER"
	CodeInternal       ErrorCode = "INTERNAL"
)

// Error carries a code alongside the message. Wrapped causes stay reachable
// through errors.Is/As.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the error code, or CodeInternal for uncoded errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
