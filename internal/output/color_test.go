package output

import (
	"bytes"
	"os"
	"testing"

	"github.com/aryankumar/shardrun/internal/executor"
)

func TestNewColorScheme(t *testing.T) {
	tests := []struct {
		name    string
		noColor bool
	}{
		{"colors disabled with noColor flag", true},
		{"colors disabled for non-TTY", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := NewColorScheme(&bytes.Buffer{}, tt.noColor)

			if !cs.Disabled {
				t.Error("expected colors to be disabled")
			}
			for name, fn := range map[string]func(string, ...interface{}) string{
				"Worker": cs.Worker, "Test": cs.Test, "Success": cs.Success, "Error": cs.Error,
				"Warning": cs.Warning, "Header": cs.Header, "Duration": cs.Duration,
			} {
				if fn == nil {
					t.Errorf("%s function is nil", name)
					continue
				}
				if got := fn("dut-%d", 1); got != "dut-1" {
					t.Errorf("%s(\"dut-%%d\", 1) = %q, want plain text", name, got)
				}
			}
		})
	}
}

func TestColorScheme_StatusColor(t *testing.T) {
	// Distinguish the functions by giving each scheme slot a marker.
	cs := &ColorScheme{
		Success: func(string, ...interface{}) string { return "success" },
		Warning: func(string, ...interface{}) string { return "warning" },
		Error:   func(string, ...interface{}) string { return "error" },
	}

	tests := []struct {
		status executor.Status
		want   string
	}{
		{executor.StatusPass, "success"},
		{executor.StatusSkip, "warning"},
		{executor.StatusFail, "error"},
		{executor.StatusCrash, "error"},
		{executor.StatusTimeout, "error"},
		{executor.StatusUnknown, "error"},
	}

	for _, tt := range tests {
		if got := cs.StatusColor(tt.status)(""); got != tt.want {
			t.Errorf("StatusColor(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}

	if cs.HealthColor(true)("") != "success" || cs.HealthColor(false)("") != "error" {
		t.Error("unexpected HealthColor mapping")
	}
}

func TestIsTTY(t *testing.T) {
	if isTTY(&bytes.Buffer{}) {
		t.Error("bytes.Buffer should not be a TTY")
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if isTTY(f) {
		t.Error("a regular file should not be a TTY")
	}
}
