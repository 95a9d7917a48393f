package output

import (
	"os"

	"github.com/mattn/go-isatty"
)

// OutputMode represents the output style
type OutputMode int

const (
	// OutputModeInteractive shows spinners and colours
	OutputModeInteractive OutputMode = iota
	// OutputModeCI shows plain lines only
	OutputModeCI
)

var ciEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"JENKINS_URL",
	"BUILDKITE",
	"TF_BUILD",
	"DATABRICKS_RUNTIME_VERSION",
}

// IsCI detects if the CLI is running unattended: a known CI environment,
// a Databricks job or notebook, or stdout that is not a terminal.
func IsCI() bool {
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// DetectMode returns the output mode for the current process
func DetectMode() OutputMode {
	if IsCI() {
		return OutputModeCI
	}
	return OutputModeInteractive
}
