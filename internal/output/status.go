package output

import (
	"strings"

	"github.com/fatih/color"
)

var (
	okColor      = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnColor    = color.New(color.FgYellow, color.Bold).SprintFunc()
	errColor     = color.New(color.FgRed, color.Bold).SprintFunc()
	skippedColor = color.New(color.FgWhite, color.Faint).SprintFunc()
)

// StatusLabel colours a health status for terminal output. Unknown values
// are returned unchanged.
func StatusLabel(status string) string {
	label := strings.ToUpper(status)
	switch status {
	case "ok", "healthy":
		return okColor(label)
	case "warning", "degraded":
		return warnColor(label)
	case "error", "unhealthy":
		return errColor(label)
	case "skipped":
		return skippedColor(label)
	default:
		return status
	}
}

// DisableColor turns off colours for the rest of the process
func DisableColor() {
	color.NoColor = true
}
