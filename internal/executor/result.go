package executor

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the outcome of a single test case
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusCrash   Status = "CRASH"
	StatusTimeout Status = "TIMEOUT"
	StatusSkip    Status = "SKIP"
	StatusUnknown Status = "UNKNOWN"
)

// OK reports whether the status does not count as a failure
func (s Status) OK() bool {
	return s == StatusPass || s == StatusSkip
}

// ParseStatus converts a status name to a Status.
// Unrecognized names map to StatusUnknown.
func ParseStatus(name string) Status {
	switch s := Status(strings.ToUpper(strings.TrimSpace(name))); s {
	case StatusPass, StatusFail, StatusCrash, StatusTimeout, StatusSkip:
		return s
	case "PASSED", "SUCCESS", "OK":
		return StatusPass
	case "FAILED", "FAILURE":
		return StatusFail
	case "SKIPPED":
		return StatusSkip
	default:
		return StatusUnknown
	}
}

// CaseResult is the outcome of one test case within an attempt
type CaseResult struct {
	Name     string        `json:"name" yaml:"name"`
	Status   Status        `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Log      string        `json:"log,omitempty" yaml:"log,omitempty"`
}

// Result is the outcome of one attempt at a test item
type Result struct {
	// Test names the test item
	Test string `json:"test" yaml:"test"`

	// Worker is the worker identity that ran the attempt
	Worker string `json:"worker" yaml:"worker"`

	// Try is the 1-based attempt number
	Try int `json:"try" yaml:"try"`

	// Retried marks the entry recorded for an attempt that was retried.
	// It only carries the cases that passed on that attempt.
	Retried bool `json:"retried,omitempty" yaml:"retried,omitempty"`

	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"duration" yaml:"duration"`

	Cases []CaseResult `json:"cases" yaml:"cases"`
}

// Passed reports whether no case in the result failed
func (r Result) Passed() bool {
	for _, c := range r.Cases {
		if !c.Status.OK() {
			return false
		}
	}
	return true
}

// Status returns the status of the first failing case, StatusSkip when
// every case skipped, StatusPass otherwise. A result without cases is
// StatusUnknown.
func (r Result) Status() Status {
	if len(r.Cases) == 0 {
		return StatusUnknown
	}
	skipped := 0
	for _, c := range r.Cases {
		if !c.Status.OK() {
			return c.Status
		}
		if c.Status == StatusSkip {
			skipped++
		}
	}
	if skipped == len(r.Cases) {
		return StatusSkip
	}
	return StatusPass
}

// FailedCases returns the cases that did not pass or skip
func (r Result) FailedCases() []CaseResult {
	failed := make([]CaseResult, 0)
	for _, c := range r.Cases {
		if !c.Status.OK() {
			failed = append(failed, c)
		}
	}
	return failed
}

// PassedOnly returns a copy of r that keeps only passing cases and is marked
// Retried. It is what gets recorded for an attempt that will be retried.
func (r Result) PassedOnly() Result {
	out := r
	out.Retried = true
	out.Cases = make([]CaseResult, 0, len(r.Cases))
	for _, c := range r.Cases {
		if c.Status == StatusPass {
			out.Cases = append(out.Cases, c)
		}
	}
	return out
}

// CountPassed returns the number of entries with no failing case
func CountPassed(results []Result) int {
	count := 0
	for _, r := range results {
		if r.Passed() {
			count++
		}
	}
	return count
}

// CountFailed returns the number of entries with at least one failing case
func CountFailed(results []Result) int {
	return len(results) - CountPassed(results)
}

// CountCases returns the number of case results across all entries
func CountCases(results []Result) int {
	count := 0
	for _, r := range results {
		count += len(r.Cases)
	}
	return count
}

// CountByStatus counts case results by status across all entries,
// including superseded attempts. Use FinalStatuses for per-case outcomes.
func CountByStatus(results []Result) map[Status]int {
	counts := make(map[Status]int)
	for _, r := range results {
		for _, c := range r.Cases {
			counts[c.Status]++
		}
	}
	return counts
}

// FilterFailed returns only the entries with failing cases
func FilterFailed(results []Result) []Result {
	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if !r.Passed() {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// FilterByWorker returns entries recorded by a specific worker
func FilterByWorker(results []Result, worker string) []Result {
	filtered := make([]Result, 0)
	for _, r := range results {
		if r.Worker == worker {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// GroupByWorker groups entries by worker identity
func GroupByWorker(results []Result) map[string][]Result {
	grouped := make(map[string][]Result)
	for _, r := range results {
		grouped[r.Worker] = append(grouped[r.Worker], r)
	}
	return grouped
}

// GroupByTest groups entries by test name, each group ordered by attempt
func GroupByTest(results []Result) map[string][]Result {
	grouped := make(map[string][]Result)
	for _, r := range results {
		grouped[r.Test] = append(grouped[r.Test], r)
	}
	for _, group := range grouped {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Try < group[j].Try })
	}
	return grouped
}

// RetriedTests returns the sorted names of tests that needed a retry
func RetriedTests(results []Result) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Retried {
			seen[r.Test] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Workers returns the unique worker identities in order of first appearance
func Workers(results []Result) []string {
	seen := make(map[string]bool)
	names := make([]string, 0)

	for _, r := range results {
		if !seen[r.Worker] {
			seen[r.Worker] = true
			names = append(names, r.Worker)
		}
	}

	return names
}

// FinalStatuses returns the settled status of every case, keyed by
// "test/case". A later attempt overrides an earlier one.
func FinalStatuses(results []Result) map[string]Status {
	final := make(map[string]Status)
	for test, attempts := range GroupByTest(results) {
		for _, r := range attempts {
			for _, c := range r.Cases {
				final[test+"/"+c.Name] = c.Status
			}
		}
	}
	return final
}

// AverageDuration calculates the average duration of all entries
func AverageDuration(results []Result) time.Duration {
	if len(results) == 0 {
		return 0
	}

	var total time.Duration
	for _, r := range results {
		total += r.Duration
	}

	return total / time.Duration(len(results))
}

// MaxDuration returns the maximum duration among all entries
func MaxDuration(results []Result) time.Duration {
	if len(results) == 0 {
		return 0
	}

	max := results[0].Duration
	for _, r := range results {
		if r.Duration > max {
			max = r.Duration
		}
	}
	return max
}

// MinDuration returns the minimum duration among all entries
func MinDuration(results []Result) time.Duration {
	if len(results) == 0 {
		return 0
	}

	min := results[0].Duration
	for _, r := range results {
		if r.Duration < min {
			min = r.Duration
		}
	}
	return min
}

// Summary provides a summary of a run's results
type Summary struct {
	// Entries is the number of recorded entries, placeholders included
	Entries int `json:"entries" yaml:"entries"`

	// Cases is the number of distinct cases with a settled status
	Cases int `json:"cases" yaml:"cases"`

	// ByStatus counts settled case statuses
	ByStatus map[Status]int `json:"byStatus" yaml:"byStatus"`

	// Retried is the number of tests that needed at least one retry
	Retried int `json:"retried" yaml:"retried"`

	Workers     int           `json:"workers" yaml:"workers"`
	AvgDuration time.Duration `json:"avgDuration" yaml:"avgDuration"`
	MaxDuration time.Duration `json:"maxDuration" yaml:"maxDuration"`
	MinDuration time.Duration `json:"minDuration" yaml:"minDuration"`
}

// Summarize creates a summary of the results
func Summarize(results []Result) Summary {
	final := FinalStatuses(results)
	byStatus := make(map[Status]int)
	for _, s := range final {
		byStatus[s]++
	}

	return Summary{
		Entries:     len(results),
		Cases:       len(final),
		ByStatus:    byStatus,
		Retried:     len(RetriedTests(results)),
		Workers:     len(Workers(results)),
		AvgDuration: AverageDuration(results),
		MaxDuration: MaxDuration(results),
		MinDuration: MinDuration(results),
	}
}

// Passed is the number of settled cases that passed
func (s Summary) Passed() int {
	return s.ByStatus[StatusPass]
}

// Failed is the number of settled cases that neither passed nor skipped
func (s Summary) Failed() int {
	return s.Cases - s.ByStatus[StatusPass] - s.ByStatus[StatusSkip]
}

// String returns a human-readable string representation of the summary
func (s Summary) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Cases: %d, ", s.Cases))
	sb.WriteString(fmt.Sprintf("Passed: %d, ", s.Passed()))
	sb.WriteString(fmt.Sprintf("Failed: %d, ", s.Failed()))
	sb.WriteString(fmt.Sprintf("Skipped: %d, ", s.ByStatus[StatusSkip]))
	sb.WriteString(fmt.Sprintf("Retried tests: %d", s.Retried))

	if s.Entries > 0 {
		sb.WriteString(fmt.Sprintf(", Avg: %s", s.AvgDuration.Round(time.Millisecond)))
		sb.WriteString(fmt.Sprintf(", Max: %s", s.MaxDuration.Round(time.Millisecond)))
		sb.WriteString(fmt.Sprintf(", Min: %s", s.MinDuration.Round(time.Millisecond)))
	}

	return sb.String()
}

// AllPassed returns true if every settled case passed or was skipped
func AllPassed(results []Result) bool {
	for _, s := range FinalStatuses(results) {
		if !s.OK() {
			return false
		}
	}
	return true
}

// PassRate returns the share of settled cases that passed (0.0 to 100.0)
func PassRate(results []Result) float64 {
	s := Summarize(results)
	if s.Cases == 0 {
		return 0.0
	}
	return float64(s.Passed()) / float64(s.Cases) * 100.0
}
