package output

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/aryankumar/shardrun/internal/executor"
)

// maxLogWidth truncates case logs in wide tables
const maxLogWidth = 60

// TableFormatter formats output as a table (kubectl-style)
type TableFormatter struct {
	options *Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(opts *Options) *TableFormatter {
	if opts == nil {
		opts = &Options{}
	}
	return &TableFormatter{
		options: opts,
	}
}

// Format outputs a single data item as a table
func (f *TableFormatter) Format(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case Tabular:
		return f.formatTabular(w, v)
	case map[string]interface{}:
		return f.formatMap(w, v)
	case []map[string]interface{}:
		return f.formatMapSlice(w, v)
	case fmt.Stringer:
		_, err := fmt.Fprintln(w, v.String())
		return err
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// FormatResults outputs one row per recorded entry followed by a summary
func (f *TableFormatter) FormatResults(w io.Writer, results []executor.Result) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return nil
	}

	colors := NewColorScheme(w, f.options.NoColor)
	table := f.createTable(w)

	headers := []string{"TEST", "WORKER", "TRY", "STATUS", "CASES", "DURATION"}
	if f.options.Wide {
		headers = append(headers, "FAILED", "LOG")
	}
	f.setHeader(table, headers, colors)

	for _, r := range results {
		table.Append(f.resultRow(r, colors))
	}
	table.Render()

	f.printSummary(w, results, colors)
	return nil
}

// resultRow formats one recorded entry
func (f *TableFormatter) resultRow(r executor.Result, colors *ColorScheme) []string {
	status := string(r.Status())
	statusColor := colors.StatusColor(r.Status())
	if r.Retried {
		status = "RETRIED"
		statusColor = colors.Warning
	}

	passed := 0
	for _, c := range r.Cases {
		if c.Status.OK() {
			passed++
		}
	}

	row := []string{
		colors.Test("%s", r.Test),
		colors.Worker("%s", r.Worker),
		strconv.Itoa(r.Try),
		statusColor("%s", status),
		fmt.Sprintf("%d/%d", passed, len(r.Cases)),
		colors.Duration("%s", r.Duration.Round(time.Millisecond)),
	}

	if f.options.Wide {
		failed := r.FailedCases()
		names := make([]string, len(failed))
		log := ""
		for i, c := range failed {
			names[i] = c.Name
			if log == "" {
				log = c.Log
			}
		}
		row = append(row, strings.Join(names, ","), truncate(oneLine(log), maxLogWidth))
	}
	return row
}

// formatTabular renders data that carries its own layout
func (f *TableFormatter) formatTabular(w io.Writer, data Tabular) error {
	rows := data.Rows()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No resources found")
		return nil
	}

	table := f.createTable(w)
	f.setHeader(table, data.Headers(), NewColorScheme(w, f.options.NoColor))
	table.AppendBulk(rows)
	table.Render()
	return nil
}

// formatMap formats a map as a two-column table, sorted by key
func (f *TableFormatter) formatMap(w io.Writer, data map[string]interface{}) error {
	table := f.createTable(w)
	if !f.options.NoHeaders {
		table.SetHeader([]string{"KEY", "VALUE"})
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		table.Append([]string{k, fmt.Sprintf("%v", data[k])})
	}

	table.Render()
	return nil
}

// formatMapSlice formats a slice of maps as a table. Columns are the sorted
// keys of the first map.
func (f *TableFormatter) formatMapSlice(w io.Writer, data []map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}

	keys := make([]string, 0, len(data[0]))
	for k := range data[0] {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	table := f.createTable(w)
	if !f.options.NoHeaders {
		headers := make([]string, len(keys))
		for i, k := range keys {
			headers[i] = strings.ToUpper(k)
		}
		table.SetHeader(headers)
	}

	for _, item := range data {
		row := make([]string, len(keys))
		for i, k := range keys {
			row[i] = fmt.Sprintf("%v", item[k])
		}
		table.Append(row)
	}

	table.Render()
	return nil
}

func (f *TableFormatter) setHeader(table *tablewriter.Table, headers []string, colors *ColorScheme) {
	if f.options.NoHeaders {
		return
	}
	if colors.Disabled {
		table.SetHeader(headers)
		return
	}
	colored := make([]string, len(headers))
	for i, h := range headers {
		colored[i] = colors.Header("%s", h)
	}
	table.SetHeader(colored)
}

// createTable creates a new table with kubectl-style configuration
func (f *TableFormatter) createTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	return table
}

// printSummary prints the settled case counts of a run
func (f *TableFormatter) printSummary(w io.Writer, results []executor.Result, colors *ColorScheme) {
	summary := executor.Summarize(results)

	passed := colors.Success("%d passed", summary.Passed())

	failed := fmt.Sprintf("%d failed", summary.Failed())
	if summary.Failed() > 0 {
		failed = colors.Error("%s", failed)
	}

	retried := fmt.Sprintf("%d retried", summary.Retried)
	if summary.Retried > 0 {
		retried = colors.Warning("%s", retried)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %s, %s, %d skipped, %s, %d workers, %s, pass rate %.1f%%\n",
		passed, failed, summary.ByStatus[executor.StatusSkip], retried, summary.Workers,
		colors.Duration("avg=%s", summary.AvgDuration.Round(time.Millisecond)),
		executor.PassRate(results))
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
