package ui

import (
	"os"

	"github.com/fatih/color"
)

var noColorFlag bool

// InitUI initializes the UI with color settings. Plain output also disables
// progress bars.
func InitUI(noColor bool) {
	noColorFlag = noColor

	if noColor {
		color.NoColor = true
	}
}

// IsTerminal reports whether stdout is an interactive terminal. Progress bars
// are only drawn when it is.
func IsTerminal() bool {
	if noColorFlag {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
