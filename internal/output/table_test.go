package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestTableFormatter_Format(t *testing.T) {
	tests := []struct {
		name     string
		data     interface{}
		opts     *Options
		contains []string
		excludes []string
	}{
		{
			name:     "map data sorted by key",
			data:     map[string]interface{}{"worker": "dut-1", "alive": true},
			contains: []string{"KEY", "VALUE", "alive", "dut-1"},
		},
		{
			name: "slice of maps",
			data: []map[string]interface{}{
				{"name": "dut-1", "count": 10},
				{"name": "dut-2", "count": 20},
			},
			contains: []string{"COUNT", "NAME", "dut-1", "20"},
		},
		{
			name: "tabular",
			data: Table{
				Columns: []string{"WORKER", "ALIVE"},
				Data:    [][]string{{"emulator-5554", "true"}, {"emulator-5556", "false"}},
			},
			contains: []string{"WORKER", "ALIVE", "emulator-5556", "false"},
		},
		{
			name:     "tabular without headers",
			data:     Table{Columns: []string{"WORKER"}, Data: [][]string{{"dut-1"}}},
			opts:     &Options{NoHeaders: true},
			contains: []string{"dut-1"},
			excludes: []string{"WORKER"},
		},
		{
			name:     "empty tabular",
			data:     Table{Columns: []string{"WORKER"}},
			contains: []string{"No resources found"},
		},
		{
			name:     "string",
			data:     "simple string",
			contains: []string{"simple string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if opts == nil {
				opts = &Options{}
			}
			opts.NoColor = true

			var buf bytes.Buffer
			if err := NewTableFormatter(opts).Format(&buf, tt.data); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("expected %q in output:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(out, unwanted) {
					t.Errorf("unexpected %q in output:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestTableFormatter_MapOrderIsStable(t *testing.T) {
	data := map[string]interface{}{"c": 3, "a": 1, "b": 2}

	var first bytes.Buffer
	if err := NewTableFormatter(nil).Format(&first, data); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		var again bytes.Buffer
		_ = NewTableFormatter(nil).Format(&again, data)
		if again.String() != first.String() {
			t.Fatalf("map output changed between calls:\n%s\n%s", first.String(), again.String())
		}
	}
	if strings.Index(first.String(), "a") > strings.Index(first.String(), "c") {
		t.Errorf("expected keys in sorted order:\n%s", first.String())
	}
}

func TestTableFormatter_FormatResults(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTableFormatter(&Options{NoColor: true}).FormatResults(&buf, sampleResults()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"TEST", "WORKER", "TRY", "STATUS", "CASES", "DURATION",
		"base_unittests", "emulator-5556", "RETRIED", "PASS", "2/2", "1.2s",
		"Summary: 3 passed, 0 failed, 1 skipped, 1 retried, 2 workers",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "LOG") {
		t.Error("log column should only appear in wide mode")
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("unexpected color codes with NoColor")
	}
}

func TestTableFormatter_FormatResults_Wide(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTableFormatter(&Options{NoColor: true, Wide: true}).FormatResults(&buf, failingResults()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"FAILED", "LOG", "Omnibox.Focus", "SIGSEGV in gpu thread", "CRASH", "0/1", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "backtrace follows") {
		t.Error("expected only the first log line")
	}
}

func TestTableFormatter_FormatResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTableFormatter(nil).FormatResults(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "No results" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is far too long", 10, "this is..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
