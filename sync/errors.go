package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCode classifies a failure. Codes are strings so they read well in logs
// and in serialised reports.
type ErrorCode string

const (
	// CodeInvalidConfig indicates a missing or malformed configuration file.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeEnvironment indicates required credentials are missing from the environment.
	CodeEnvironment ErrorCode = "ENVIRONMENT"

	// CodeNetwork indicates a network failure or a non-success status code.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates a request exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeDecode indicates a response body was not valid JSON.
	CodeDecode ErrorCode = "DECODE_ERROR"

	// CodeUnauthorized indicates a token could not be acquired.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeNotImplemented indicates the requested mode exists but is not implemented.
	CodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// CodeDataLoad indicates the batches for a run could not be loaded.
	CodeDataLoad ErrorCode = "DATA_LOAD_FAILED"

	// CodePartialSync indicates a sync run stopped after its first failed batch.
	CodePartialSync ErrorCode = "PARTIAL_SYNC"

	// CodeUnknown is returned by CodeOf for errors raised outside this package.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Error is the error type returned by this package.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsFatal reports whether err must stop the process before any batch runs.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidConfig, CodeEnvironment:
		return true
	}
	return false
}

// transportError classifies an error returned by a requests.Builder fetch.
func transportError(op string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(CodeTimeout, op, err)
	}
	return newError(CodeNetwork, op, err)
}
