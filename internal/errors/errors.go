// Package errors provides structured CLI error types for Vertico.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all binaries.
// The constructors below implement the error taxonomy: only argument
// parsing failures and shared-memory/TCP bind failures are allowed to
// propagate all the way to a daemon's process exit; everything else is
// handled at its point of origin and never reaches main.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes for CLI errors.
const (
	ExitSuccess = 0  // Successful execution
	ExitGeneral = 1  // General error (also used for daemon init failures)
	ExitInit    = 1  // Alias: shared-memory/bind failure, the only non-usage exit a daemon ever returns
	ExitNetwork = 3  // verticoctl-only: diagnostic network failure
	ExitConfig  = 4  // verticoctl-only: configuration error
	ExitUsage   = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- error taxonomy constructors ---

// BadArgs returns an error for a binary invoked with the wrong number or
// form of arguments. Its Code is ExitUsage, which the binary's
// handleError returns as the process exit code.
func BadArgs(usage string) *CLIError {
	return &CLIError{
		Message: "invalid arguments",
		Hint:    "usage: " + usage,
		Code:    ExitUsage,
	}
}

// SharedRegionUnavailable returns an error for a failure to create, open,
// or map a car's shared state region. Fatal to the process that hits it.
func SharedRegionUnavailable(name string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("shared region /car%s unavailable", name),
		Hint:    "check permissions on /dev/shm and that no stale region is left from a crashed process",
		Cause:   cause,
		Code:    ExitInit,
	}
}

// BindFailed returns an error for the dispatcher's inability to bind its
// listen address.
func BindFailed(addr string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("failed to bind %s", addr),
		Hint:    "check that no other process is already listening on this address",
		Cause:   cause,
		Code:    ExitInit,
	}
}

// ProtocolViolation describes a malformed wire message. Never reaches
// process exit: callers log it and close the offending connection.
func ProtocolViolation(detail string) *CLIError {
	return &CLIError{
		Message: "protocol violation",
		Hint:    detail,
		Code:    ExitGeneral,
	}
}

// PoolExhausted describes a full car or connection pool. Never reaches
// process exit: callers reject the new connection or reply UNAVAILABLE.
func PoolExhausted(kind string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("%s pool exhausted", kind),
		Hint:    "increase the pool capacity or reduce concurrent connections",
		Code:    ExitGeneral,
	}
}

// SyncPrimitiveFailed describes a mutex/condition-variable failure in
// the safety monitor. Callers escalate to emergency and back off; it
// never reaches process exit either.
func SyncPrimitiveFailed(op string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("sync primitive failed: %s", op),
		Hint:    "forcing emergency mode and retrying",
		Cause:   cause,
		Code:    ExitGeneral,
	}
}

// --- verticoctl-only diagnostic constructors (operator tool, not a daemon) ---

// DispatcherUnreachable returns an error for verticoctl doctor's
// connectivity check.
func DispatcherUnreachable(addr string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("cannot reach dispatcher at %s", addr),
		Hint:    "confirm dispatcherd is running and the address/port are correct",
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// ConfigInvalid returns an error for a malformed configuration value or
// file.
func ConfigInvalid(detail string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("invalid configuration: %s", detail),
		Hint:    "check the config file and VERTICO_ environment variables",
		Cause:   cause,
		Code:    ExitConfig,
	}
}
