package cli

import (
	"errors"
	"fmt"
)

// Conventional exit codes. Skipped steps and vetoed triggers are successes;
// only executed-and-failed work exits with CodeFailure.
const (
	CodeOK      = 0
	CodeFailure = 1
	CodeUsage   = 2
)

// ExitError carries a specific process exit code across the command tree.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Errorf builds an ExitError with a formatted message.
func Errorf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code maps an error to the process exit code: nil is CodeOK, an ExitError
// carries its own code, anything else is CodeFailure.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return CodeFailure
}
