package pterm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// Logger prints the human-readable traces of the CLI harnesses. With plain
// set it writes unstyled lines, which keeps CI logs and tests readable.
type Logger struct {
	debugEnabled bool
	plain        bool
	out          io.Writer
}

// NewLogger creates a logger writing to stdout
func NewLogger(debug, plain bool) *Logger {
	return NewLoggerTo(os.Stdout, debug, plain)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, debug, plain bool) *Logger {
	return &Logger{
		debugEnabled: debug,
		plain:        plain,
		out:          w,
	}
}

func (l *Logger) print(printer pterm.PrefixPrinter, label, message string) {
	if l.plain {
		fmt.Fprintf(l.out, "[%s] %s\n", label, message)
		return
	}
	fmt.Fprint(l.out, printer.Sprintln(message))
}

// Debug logs a debug message (only with debug enabled)
func (l *Logger) Debug(message string, args ...interface{}) {
	if !l.debugEnabled {
		return
	}
	l.print(pterm.Description, "DEBUG", formatMessage(message, args...))
}

// Info logs an informational message
func (l *Logger) Info(message string, args ...interface{}) {
	l.print(pterm.Info, "INFO", formatMessage(message, args...))
}

// Success logs a success message
func (l *Logger) Success(message string, args ...interface{}) {
	l.print(pterm.Success, "SUCCESS", formatMessage(message, args...))
}

// Warning logs a warning message
func (l *Logger) Warning(message string, args ...interface{}) {
	l.print(pterm.Warning, "WARNING", formatMessage(message, args...))
}

// Error logs an error message
func (l *Logger) Error(message string, args ...interface{}) {
	l.print(pterm.Error, "ERROR", formatMessage(message, args...))
}

// Infof logs a formatted informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Section prints a heading that separates the steps of a harness run
func (l *Logger) Section(title string) {
	if l.plain {
		fmt.Fprintf(l.out, "\n== %s ==\n", title)
		return
	}
	fmt.Fprint(l.out, pterm.DefaultSection.Sprintln(title))
}

// Block prints preformatted text such as a JSON document or agent reply
func (l *Logger) Block(text string) {
	if l.plain {
		fmt.Fprintln(l.out, text)
		return
	}
	fmt.Fprint(l.out, pterm.DefaultBox.Sprintln(text))
}

// formatMessage appends key-value pairs to a message
func formatMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}

	var pairs []string
	for i := 0; i+1 < len(args); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}

	if len(pairs) > 0 {
		return fmt.Sprintf("%s (%s)", message, strings.Join(pairs, ", "))
	}

	return message
}

// IsDebugEnabled returns whether debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.debugEnabled
}
