package output

import (
	"os"

	"golang.org/x/term"
)

// terminalInfo holds terminal capability information: TTY-ness, NO_COLOR
// opt-out, and dimensions. It exists only to drive Writer's color and
// spinner decisions, so it lives here rather than as its own package —
// output.Writer is its sole consumer.
type terminalInfo struct {
	IsTTY     bool
	NoColor   bool
	Width     int
	Height    int
	ForceFlag bool // Set when --no-color flag is used
}

// detectTerminal returns terminal information for the current environment.
func detectTerminal() *terminalInfo {
	fd := int(os.Stdout.Fd())
	isTTY := term.IsTerminal(fd)

	width, height := 80, 24 // sensible defaults
	if isTTY {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}

	// Check NO_COLOR environment variable (https://no-color.org/)
	_, noColor := os.LookupEnv("NO_COLOR")

	return &terminalInfo{
		IsTTY:   isTTY,
		NoColor: noColor,
		Width:   width,
		Height:  height,
	}
}

// ColorEnabled returns true if colored output should be used.
func (t *terminalInfo) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}
	return t.IsTTY && !t.NoColor
}

// InteractiveEnabled returns true if interactive prompts are allowed.
func (t *terminalInfo) InteractiveEnabled() bool {
	return t.IsTTY
}

// SpinnersEnabled returns true if spinners should be used.
func (t *terminalInfo) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}
