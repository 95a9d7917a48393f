package pterm

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
)

// Configure sets up pterm for the current terminal and reports whether the
// harness output must be plain. Styling is disabled when forced, when
// NO_COLOR is set, or when stdout is not a terminal.
func Configure(forcePlain bool) bool {
	if forcePlain || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		pterm.DisableColor()
		pterm.DisableStyling()
		return true
	}

	applyTheme()
	return false
}

func applyTheme() {
	pterm.Success = *pterm.Success.WithMessageStyle(pterm.NewStyle(pterm.FgLightGreen))
	pterm.Error = *pterm.Error.WithMessageStyle(pterm.NewStyle(pterm.FgLightRed))
	pterm.Info = *pterm.Info.WithMessageStyle(pterm.NewStyle(pterm.FgLightCyan))
	pterm.Warning = *pterm.Warning.WithMessageStyle(pterm.NewStyle(pterm.FgYellow))
}
