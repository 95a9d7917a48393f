package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
)

// Spinner shows that a remote call is in flight. In CI mode it prints a
// single line instead of animating.
type Spinner struct {
	spinner *spinner.Spinner
	mode    OutputMode
	message string
	writer  io.Writer
	started time.Time
}

// NewSpinner creates a spinner writing to stderr
func NewSpinner(message string, mode OutputMode) *Spinner {
	s := &Spinner{
		mode:    mode,
		message: message,
		writer:  os.Stderr,
	}

	if mode == OutputModeInteractive {
		s.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.writer))
		s.spinner.Suffix = " " + message
		s.spinner.Color("cyan", "bold")
	}

	return s
}

// Start starts the spinner
func (s *Spinner) Start() {
	s.started = time.Now()
	if s.spinner != nil {
		s.spinner.Start()
		return
	}
	fmt.Fprintf(s.writer, "⏳ %s...\n", s.message)
}

// Stop stops the spinner
func (s *Spinner) Stop() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// Elapsed returns the time since Start
func (s *Spinner) Elapsed() time.Duration {
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.writer, "✓ %s\n", message)
}

// Fail stops the spinner and shows a failure message
func (s *Spinner) Fail(message string) {
	s.Stop()
	fmt.Fprintf(s.writer, "✗ %s\n", message)
}
