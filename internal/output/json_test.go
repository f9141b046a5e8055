package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormatter_Format(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{"map", map[string]interface{}{"worker": "dut-1", "alive": true}, `"worker": "dut-1"`},
		{"slice", []string{"a", "b"}, `"a"`},
		{"table", Table{Columns: []string{"NAME"}, Data: [][]string{{"dut-1"}}}, `"columns"`},
		{"nil", nil, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONFormatter(nil).Format(&buf, tt.data); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in %s", tt.want, buf.String())
			}
		})
	}
}

func TestJSONFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter(nil).Format(&buf, make(chan int)); err == nil {
		t.Error("expected an error for a value JSON cannot encode")
	}
}

func TestJSONFormatter_FormatResults(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter(nil).FormatResults(&buf, sampleResults()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got ReportView
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if !got.Passed || len(got.Results) != 3 {
		t.Errorf("unexpected report: %+v", got)
	}
	if got.Results[2].Try != 2 || got.Results[2].Worker != "emulator-5554" {
		t.Errorf("unexpected final attempt: %+v", got.Results[2])
	}
	if !strings.Contains(buf.String(), `"retried": true`) {
		t.Error("expected the placeholder entry to be marked retried")
	}
}

func TestJSONFormatter_Indentation(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter(nil).Format(&buf, map[string]interface{}{"nested": map[string]int{"a": 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "\n    \"a\": 1") {
		t.Errorf("expected two-space indentation, got:\n%s", buf.String())
	}
}
