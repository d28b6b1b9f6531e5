package routeshot

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeBrowserInit       = "BROWSER_INIT_FAILED"
	CodeServerStart       = "SERVER_START_FAILED"
	CodeServerTimeout     = "SERVER_START_TIMEOUT"
	CodeServerUnreachable = "SERVER_UNREACHABLE"
	CodeLayoutMissing     = "LAYOUT_MISSING"
	CodeOutputDir         = "OUTPUT_DIR_FAILED"
	CodeInvalidOptions    = "INVALID_OPTIONS"
	CodeNavigation        = "NAVIGATION_FAILED"
	CodeCapture           = "CAPTURE_FAILED"
	CodeInterrupted       = "INTERRUPTED"
)

// ErrAborted matches every error that stops a run before anything is captured.
var ErrAborted = errors.New("run aborted")

// Error carries a code alongside the wrapped cause.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAborted) true for pre-capture failures.
func (e *Error) Is(target error) bool {
	if target != ErrAborted {
		return false
	}
	switch e.Code {
	case CodeBrowserInit, CodeServerStart, CodeServerTimeout, CodeServerUnreachable,
		CodeLayoutMissing, CodeOutputDir, CodeInvalidOptions:
		return true
	}
	return false
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err wraps an *Error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
