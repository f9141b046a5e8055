package output

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/aryankumar/shardrun/internal/executor"
)

// ColorScheme provides color functions for different output elements
type ColorScheme struct {
	// Worker colors worker identities
	Worker func(format string, a ...interface{}) string

	// Test colors test names
	Test func(format string, a ...interface{}) string

	// Success colors passing statuses
	Success func(format string, a ...interface{}) string

	// Error colors failing statuses and error messages
	Error func(format string, a ...interface{}) string

	// Warning colors skipped and retried entries
	Warning func(format string, a ...interface{}) string

	// Header colors table headers
	Header func(format string, a ...interface{}) string

	// Duration colors duration values
	Duration func(format string, a ...interface{}) string

	// Disabled indicates if colors are disabled
	Disabled bool
}

// NewColorScheme creates a new color scheme.
// Colors are disabled for non-TTY outputs or when noColor is true.
func NewColorScheme(w io.Writer, noColor bool) *ColorScheme {
	if noColor || !isTTY(w) {
		plain := color.New()
		plain.DisableColor()
		return &ColorScheme{
			Worker:   plain.Sprintf,
			Test:     plain.Sprintf,
			Success:  plain.Sprintf,
			Error:    plain.Sprintf,
			Warning:  plain.Sprintf,
			Header:   plain.Sprintf,
			Duration: plain.Sprintf,
			Disabled: true,
		}
	}

	return &ColorScheme{
		Worker:   color.New(color.FgCyan, color.Bold).Sprintf,
		Test:     color.New(color.Bold).Sprintf,
		Success:  color.New(color.FgGreen).Sprintf,
		Error:    color.New(color.FgRed, color.Bold).Sprintf,
		Warning:  color.New(color.FgYellow).Sprintf,
		Header:   color.New(color.FgWhite, color.Bold).Sprintf,
		Duration: color.New(color.FgBlue).Sprintf,
	}
}

// isTTY checks if the writer is a terminal
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// StatusColor returns the color function for a case status
func (cs *ColorScheme) StatusColor(status executor.Status) func(format string, a ...interface{}) string {
	switch {
	case status == executor.StatusPass:
		return cs.Success
	case status == executor.StatusSkip:
		return cs.Warning
	default:
		return cs.Error
	}
}

// HealthColor returns the color function for a liveness result
func (cs *ColorScheme) HealthColor(alive bool) func(format string, a ...interface{}) string {
	if alive {
		return cs.Success
	}
	return cs.Error
}
