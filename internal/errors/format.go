package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FormatError formats a CLIError for display to the user
// Returns a user-friendly error message with context
func FormatError(err *CLIError) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	switch err.Type {
	case ErrorTypeValidation:
		sb.WriteString("✗ Validation Error: ")
	case ErrorTypeAuth:
		sb.WriteString("✗ Authentication Error: ")
	case ErrorTypeAPI:
		if err.StatusCode != 0 {
			fmt.Fprintf(&sb, "✗ Remote Call Error (HTTP %d): ", err.StatusCode)
		} else {
			sb.WriteString("✗ Remote Call Error: ")
		}
	case ErrorTypeNetwork:
		sb.WriteString("✗ Network Error: ")
	case ErrorTypeConfig:
		sb.WriteString("✗ Configuration Error: ")
	default:
		sb.WriteString("✗ Error: ")
	}

	sb.WriteString(err.Err.Error())

	if err.Context != "" {
		sb.WriteString("\n\n")
		sb.WriteString(err.Context)
	}

	return sb.String()
}

// FormatSimple formats an error without type prefix
// Useful for wrapping non-CLIError types
func FormatSimple(err error) string {
	if err == nil {
		return ""
	}

	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return FormatError(cliErr)
	}

	return fmt.Sprintf("✗ Error: %v", err)
}
