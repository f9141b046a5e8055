package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/aryankumar/shardrun/internal/executor"
)

// sampleResults is a run where net_unittests passed on its second try
func sampleResults() []executor.Result {
	return []executor.Result{
		{
			Test: "base_unittests", Worker: "emulator-5554", Try: 1, Duration: 1200 * time.Millisecond,
			Cases: []executor.CaseResult{
				{Name: "Strings.Split", Status: executor.StatusPass, Duration: 3 * time.Millisecond},
				{Name: "Files.Lock", Status: executor.StatusSkip},
			},
		},
		{
			Test: "net_unittests", Worker: "emulator-5556", Try: 1, Retried: true, Duration: 2 * time.Second,
			Cases: []executor.CaseResult{
				{Name: "HttpCache.Basic", Status: executor.StatusPass},
			},
		},
		{
			Test: "net_unittests", Worker: "emulator-5554", Try: 2, Duration: 800 * time.Millisecond,
			Cases: []executor.CaseResult{
				{Name: "HttpCache.Range", Status: executor.StatusPass},
			},
		},
	}
}

// failingResults is a run whose only test crashed on every try
func failingResults() []executor.Result {
	return []executor.Result{
		{
			Test: "ui_tests", Worker: "dut-1", Try: 1, Duration: time.Second,
			Cases: []executor.CaseResult{
				{Name: "Omnibox.Focus", Status: executor.StatusCrash, Log: "SIGSEGV in gpu thread\nbacktrace follows"},
			},
		},
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatTable, "*output.TableFormatter"},
		{FormatJSON, "*output.JSONFormatter"},
		{FormatYAML, "*output.YAMLFormatter"},
		{Format("xml"), "*output.TableFormatter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f := NewFormatter(tt.format)
			if got := typeName(f); got != tt.want {
				t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, got, tt.want)
			}
		})
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *TableFormatter:
		return "*output.TableFormatter"
	case *JSONFormatter:
		return "*output.JSONFormatter"
	case *YAMLFormatter:
		return "*output.YAMLFormatter"
	}
	return "unknown"
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestOptions(t *testing.T) {
	f := NewFormatter(FormatTable, WithNoColor(true), WithNoHeaders(true), WithWide(true)).(*TableFormatter)

	if !f.options.NoColor || !f.options.NoHeaders || !f.options.Wide {
		t.Errorf("options not applied: %+v", f.options)
	}
}

func TestNewReportView(t *testing.T) {
	view := NewReportView(sampleResults())

	if !view.Passed {
		t.Error("expected the run to pass")
	}
	if view.Summary.Entries != 3 || view.Summary.Cases != 4 || view.Summary.Passed != 3 || view.Summary.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", view.Summary)
	}
	if view.Summary.Retried != 1 || view.Summary.Workers != 2 {
		t.Errorf("unexpected summary: %+v", view.Summary)
	}
	if got := view.Final["net_unittests/HttpCache.Range"]; got != executor.StatusPass {
		t.Errorf("final status = %s", got)
	}

	first := view.Results[0]
	if first.Status != executor.StatusPass || first.Duration != "1.2s" || first.Cases[0].Duration != "3ms" || first.Cases[1].Duration != "" {
		t.Errorf("unexpected first result: %+v", first)
	}
	if !view.Results[1].Retried {
		t.Error("expected the placeholder to be marked retried")
	}

	failing := NewReportView(failingResults())
	if failing.Passed || failing.Summary.Failed != 1 || failing.Results[0].Status != executor.StatusCrash {
		t.Errorf("unexpected failing view: %+v", failing)
	}
}

func TestFormatters_EmptyResults(t *testing.T) {
	for _, format := range []Format{FormatTable, FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		if err := NewFormatter(format, WithNoColor(true)).FormatResults(&buf, nil); err != nil {
			t.Errorf("%s: unexpected error: %v", format, err)
		}
		if buf.Len() == 0 {
			t.Errorf("%s: expected some output for an empty run", format)
		}
	}
}
