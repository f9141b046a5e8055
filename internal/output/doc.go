// Package output renders shardrun results for the terminal and for tools.
//
// Three formats are supported: table (kubectl-style, the default), JSON
// and YAML. Every Formatter can print arbitrary data with Format and a
// run's recorded entries with FormatResults.
//
// # Run Reports
//
// FormatResults prints one row per recorded entry. An attempt that was
// retried shows as RETRIED and only lists the cases it passed; the final
// attempt of each test carries the rest. The table ends with a summary of
// the settled case statuses:
//
//	TEST            WORKER          TRY  STATUS   CASES  DURATION
//	net_unittests   emulator-5554   1    RETRIED  1/1    2s
//	net_unittests   emulator-5556   2    PASS     1/1    900ms
//
//	Summary: 2 passed, 0 failed, 0 skipped, 1 retried, 2 workers, avg=1.45s
//
// JSON and YAML encode a ReportView: the overall verdict, the summary, the
// final status of every case keyed by "test/case", and the entries.
//
// # Tabular Data
//
// Commands that list workers or shards pass a Tabular value (see Table).
// The table formatter renders its rows; JSON and YAML encode the value.
//
// # Color Support
//
// Colors are used only when writing to a terminal and can be disabled with
// WithNoColor. Passing statuses are green, skipped and retried entries
// yellow, failures red.
package output
