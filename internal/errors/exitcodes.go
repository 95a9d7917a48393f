package errors

import "net/http"

const (
	// ExitCodeSuccess indicates successful execution
	ExitCodeSuccess = 0

	// ExitCodeRuntime indicates a general runtime error
	ExitCodeRuntime = 1

	// ExitCodeValidation indicates a usage/validation error (follows bash convention)
	ExitCodeValidation = 2

	// ExitCodeAuth indicates an authentication failure
	ExitCodeAuth = 3

	// ExitCodeAPI indicates a remote endpoint rejected the call
	ExitCodeAPI = 4

	// ExitCodeNetwork indicates a network connectivity error
	ExitCodeNetwork = 5

	// ExitCodeConfig indicates a configuration error
	ExitCodeConfig = 6

	// ExitCodeNotFound indicates the serving endpoint does not exist or is
	// not visible to the caller
	ExitCodeNotFound = 7
)

// ExitCode returns the appropriate exit code for an error type
func ExitCode(t ErrorType) int {
	switch t {
	case ErrorTypeValidation:
		return ExitCodeValidation
	case ErrorTypeAuth:
		return ExitCodeAuth
	case ErrorTypeAPI:
		return ExitCodeAPI
	case ErrorTypeNetwork:
		return ExitCodeNetwork
	case ErrorTypeConfig:
		return ExitCodeConfig
	default:
		return ExitCodeRuntime
	}
}

// ExitCodeFromError extracts the exit code from an error. Remote call
// errors are refined by status: a rejected token exits like an auth
// failure and a missing endpoint gets ExitCodeNotFound.
// Returns ExitCodeRuntime for non-CLIError types
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	t := TypeOf(err)
	if t == ErrorTypeAPI {
		switch StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ExitCodeAuth
		case http.StatusNotFound:
			return ExitCodeNotFound
		}
	}
	return ExitCode(t)
}
