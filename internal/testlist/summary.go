package testlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aryankumar/shardrun/internal/executor"
)

// Summary is the per-case report a test command may write, as JSON, to
// the path in SHARDRUN_SUMMARY (local backend) or to its termination
// message (kube backend).
type Summary struct {
	Cases []SummaryCase `json:"cases"`
}

// SummaryCase is one entry of a Summary
type SummaryCase struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Log        string `json:"log,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// ParseSummary decodes a summary document
func ParseSummary(data []byte) (*Summary, error) {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid test summary: %w", err)
	}
	for i, c := range s.Cases {
		if c.Name == "" {
			return nil, fmt.Errorf("invalid test summary: case #%d has no name", i+1)
		}
	}
	return &s, nil
}

// CaseResults converts the summary into executor case results
func (s *Summary) CaseResults() []executor.CaseResult {
	out := make([]executor.CaseResult, 0, len(s.Cases))
	for _, c := range s.Cases {
		out = append(out, executor.CaseResult{
			Name:     c.Name,
			Status:   executor.ParseStatus(c.Status),
			Log:      c.Log,
			Duration: time.Duration(c.DurationMs) * time.Millisecond,
		})
	}
	return out
}

// SyntheticCases builds case results for a command that reported no
// summary: every requested case, or a single case named after the test,
// gets status.
func SyntheticCases(it Item, status executor.Status, log string) []executor.CaseResult {
	if len(it.Cases) == 0 {
		return []executor.CaseResult{{Name: it.Name, Status: status, Log: log}}
	}
	out := make([]executor.CaseResult, len(it.Cases))
	for i, name := range it.Cases {
		out[i] = executor.CaseResult{Name: name, Status: status, Log: log}
	}
	return out
}

// BuildCases derives the case results of an attempt from the summary the
// command reported, if any, and its overall status. A command that failed
// after reporting only passing cases gets an extra case named after the
// test. The returned error describes an unusable summary; the cases are
// valid either way.
func BuildCases(it Item, summary []byte, status executor.Status, log string) ([]executor.CaseResult, error) {
	if len(bytes.TrimSpace(summary)) == 0 {
		return SyntheticCases(it, status, log), nil
	}

	s, err := ParseSummary(summary)
	if err != nil || len(s.Cases) == 0 {
		return SyntheticCases(it, status, log), err
	}

	cases := s.CaseResults()
	if !status.OK() && (executor.Result{Cases: cases}).Passed() {
		cases = append(cases, executor.CaseResult{Name: it.Name, Status: status, Log: log})
	}
	return cases, nil
}

// Retry returns the item to queue again after result, or nil when no case
// failed. Items that report per-case results are narrowed to the failing
// cases; the others are rerun whole.
func Retry(it Item, result executor.Result) *Item {
	failed := result.FailedCases()
	if len(failed) == 0 {
		return nil
	}

	names := make([]string, len(failed))
	for i, c := range failed {
		// A case named after the test stands for the whole command.
		if c.Name == it.Name {
			retry := it.Narrow(it.Cases)
			return &retry
		}
		names[i] = c.Name
	}
	retry := it.Narrow(names)
	return &retry
}
