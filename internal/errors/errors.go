package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrorTypeUnknown represents an unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeValidation represents argument/flag validation errors
	ErrorTypeValidation
	// ErrorTypeAuth represents a missing or rejected user credential
	ErrorTypeAuth
	// ErrorTypeAPI represents an HTTP-level failure from a remote endpoint
	ErrorTypeAPI
	// ErrorTypeNetwork represents network connectivity errors
	ErrorTypeNetwork
	// ErrorTypeRuntime represents general runtime errors
	ErrorTypeRuntime
	// ErrorTypeConfig represents a required setting that is absent
	ErrorTypeConfig
)

// String returns the name used in logs and tool results
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeAuth:
		return "authentication"
	case ErrorTypeAPI:
		return "remote_call"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRuntime:
		return "runtime"
	case ErrorTypeConfig:
		return "configuration"
	default:
		return "unknown"
	}
}

// CLIError wraps errors with type information and context for better UX
type CLIError struct {
	Type    ErrorType
	Err     error
	Context string // Additional context or help text for the user

	// StatusCode is the HTTP status of a failed remote call, zero otherwise
	StatusCode int
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%v\n%s", e.Err, e.Context)
	}
	return e.Err.Error()
}

// Unwrap implements error unwrapping for Go 1.13+ error chains
func (e *CLIError) Unwrap() error {
	return e.Err
}

// ValidationError creates a validation error (shows usage hints)
func ValidationError(err error, context string) *CLIError {
	return &CLIError{
		Type:    ErrorTypeValidation,
		Err:     err,
		Context: context,
	}
}

// AuthError creates an authentication error
func AuthError(err error) *CLIError {
	return &CLIError{
		Type: ErrorTypeAuth,
		Err:  err,
	}
}

// AuthErrorWithContext creates an authentication error with context
func AuthErrorWithContext(err error, context string) *CLIError {
	return &CLIError{
		Type:    ErrorTypeAuth,
		Err:     err,
		Context: context,
	}
}

// RemoteCallError creates an error for a non-2xx response from a remote endpoint
func RemoteCallError(statusCode int, err error) *CLIError {
	return &CLIError{
		Type:       ErrorTypeAPI,
		Err:        err,
		StatusCode: statusCode,
	}
}

// NetworkError creates a network error
func NetworkError(err error) *CLIError {
	return &CLIError{
		Type: ErrorTypeNetwork,
		Err:  err,
	}
}

// NetworkErrorWithContext creates a network error with context
func NetworkErrorWithContext(err error, context string) *CLIError {
	return &CLIError{
		Type:    ErrorTypeNetwork,
		Err:     err,
		Context: context,
	}
}

// RuntimeError creates a runtime error
func RuntimeError(err error) *CLIError {
	return &CLIError{
		Type: ErrorTypeRuntime,
		Err:  err,
	}
}

// ConfigError creates a configuration error
func ConfigError(err error) *CLIError {
	return &CLIError{
		Type: ErrorTypeConfig,
		Err:  err,
	}
}

// ConfigErrorWithContext creates a configuration error with context
func ConfigErrorWithContext(err error, context string) *CLIError {
	return &CLIError{
		Type:    ErrorTypeConfig,
		Err:     err,
		Context: context,
	}
}

// TypeOf returns the type of the first CLIError in err's chain
func TypeOf(err error) ErrorType {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err's chain contains a CLIError of type t
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// StatusCode returns the HTTP status carried by a remote call error, or zero
func StatusCode(err error) int {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr.StatusCode
	}
	return 0
}
