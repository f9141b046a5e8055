package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aryankumar/shardrun/internal/executor"
)

// Format represents the output format type
type Format string

const (
	// FormatTable outputs data in a table format (kubectl-style)
	FormatTable Format = "table"
	// FormatJSON outputs data in JSON format
	FormatJSON Format = "json"
	// FormatYAML outputs data in YAML format
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty means table.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", name)
	}
}

// Formatter writes command output in one format
type Formatter interface {
	// Format outputs a single data item to the writer
	Format(w io.Writer, data interface{}) error

	// FormatResults outputs the entries of a run and their summary
	FormatResults(w io.Writer, results []executor.Result) error
}

// Tabular is data that knows its own table layout. Table output renders it
// as rows; JSON and YAML output encode the value itself.
type Tabular interface {
	Headers() []string
	Rows() [][]string
}

// Table is a ready-made Tabular value
type Table struct {
	Columns []string   `json:"columns" yaml:"columns"`
	Data    [][]string `json:"rows" yaml:"rows"`
}

// Headers implements Tabular
func (t Table) Headers() []string { return t.Columns }

// Rows implements Tabular
func (t Table) Rows() [][]string { return t.Data }

// Option is a functional option for configuring formatters
type Option func(*Options)

// Options holds configuration for formatters
type Options struct {
	// NoColor disables color output
	NoColor bool

	// NoHeaders disables table headers
	NoHeaders bool

	// Wide adds failing case names and logs to result tables
	Wide bool
}

// WithNoColor disables color output
func WithNoColor(noColor bool) Option {
	return func(o *Options) {
		o.NoColor = noColor
	}
}

// WithNoHeaders disables table headers
func WithNoHeaders(noHeaders bool) Option {
	return func(o *Options) {
		o.NoHeaders = noHeaders
	}
}

// WithWide enables wide output
func WithWide(wide bool) Option {
	return func(o *Options) {
		o.Wide = wide
	}
}

// NewFormatter creates a new formatter based on the specified format
func NewFormatter(format Format, opts ...Option) Formatter {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	switch format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	default:
		return NewTableFormatter(options)
	}
}

// ReportView is the encoded form of a run for JSON and YAML output
type ReportView struct {
	Passed  bool                       `json:"passed" yaml:"passed"`
	Summary SummaryView                `json:"summary" yaml:"summary"`
	Final   map[string]executor.Status `json:"final" yaml:"final"`
	Results []ResultView               `json:"results" yaml:"results"`
}

// SummaryView is the encoded form of executor.Summary
type SummaryView struct {
	Entries     int    `json:"entries" yaml:"entries"`
	Cases       int    `json:"cases" yaml:"cases"`
	Passed      int    `json:"passed" yaml:"passed"`
	Failed      int    `json:"failed" yaml:"failed"`
	Skipped     int    `json:"skipped" yaml:"skipped"`
	Retried     int    `json:"retried" yaml:"retried"`
	Workers     int    `json:"workers" yaml:"workers"`
	AvgDuration string `json:"avgDuration" yaml:"avgDuration"`
}

// ResultView is the encoded form of one recorded entry
type ResultView struct {
	Test     string          `json:"test" yaml:"test"`
	Worker   string          `json:"worker" yaml:"worker"`
	Try      int             `json:"try" yaml:"try"`
	Retried  bool            `json:"retried,omitempty" yaml:"retried,omitempty"`
	Status   executor.Status `json:"status" yaml:"status"`
	Duration string          `json:"duration" yaml:"duration"`
	Cases    []CaseView      `json:"cases" yaml:"cases"`
}

// CaseView is the encoded form of one case
type CaseView struct {
	Name     string          `json:"name" yaml:"name"`
	Status   executor.Status `json:"status" yaml:"status"`
	Duration string          `json:"duration,omitempty" yaml:"duration,omitempty"`
	Log      string          `json:"log,omitempty" yaml:"log,omitempty"`
}

// NewReportView builds the encoded form of results
func NewReportView(results []executor.Result) ReportView {
	s := executor.Summarize(results)

	view := ReportView{
		Passed: executor.AllPassed(results),
		Summary: SummaryView{
			Entries:     s.Entries,
			Cases:       s.Cases,
			Passed:      s.Passed(),
			Failed:      s.Failed(),
			Skipped:     s.ByStatus[executor.StatusSkip],
			Retried:     s.Retried,
			Workers:     s.Workers,
			AvgDuration: s.AvgDuration.Round(time.Millisecond).String(),
		},
		Final:   executor.FinalStatuses(results),
		Results: make([]ResultView, len(results)),
	}

	for i, r := range results {
		rv := ResultView{
			Test:     r.Test,
			Worker:   r.Worker,
			Try:      r.Try,
			Retried:  r.Retried,
			Status:   r.Status(),
			Duration: r.Duration.Round(time.Millisecond).String(),
			Cases:    make([]CaseView, len(r.Cases)),
		}
		for j, c := range r.Cases {
			cv := CaseView{Name: c.Name, Status: c.Status, Log: c.Log}
			if c.Duration > 0 {
				cv.Duration = c.Duration.Round(time.Millisecond).String()
			}
			rv.Cases[j] = cv
		}
		view.Results[i] = rv
	}
	return view
}
