// Package split implements the split command, which prints the static shard
// of a test list one CI machine should run.
package split

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardrun/internal/cli/session"
	"github.com/aryankumar/shardrun/internal/testlist"
)

// NewSplitCmd creates the split command
func NewSplitCmd() *cobra.Command {
	var (
		testsFile   string
		shardIndex  int
		totalShards int
		strategy    string
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Print the tests assigned to one shard",
		Long: `Split a test list into --total-shards static shards and print the
tests that belong to shard --shard-index.

Every test lands in exactly one shard. The alpha strategy sorts tests by name
and cuts the list into contiguous, near-equal ranges; the hash strategy keeps
a test in the same shard when others are added or removed.`,
		Example: `  # Show what the second of four CI machines runs
  shardrun split --tests tests.yaml --shard-index 1 --total-shards 4

  # Feed a shard to another tool
  shardrun split --tests tests.yaml --shard-index 0 --total-shards 2 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, testsFile, shardIndex, totalShards, strategy)
		},
	}

	cmd.Flags().StringVar(&testsFile, "tests", "", "test list file (YAML or JSON)")
	cmd.Flags().IntVar(&shardIndex, "shard-index", 0, "0-based index of the shard to print")
	cmd.Flags().IntVar(&totalShards, "total-shards", 1, "number of shards")
	cmd.Flags().StringVar(&strategy, "shard-strategy", string(testlist.StrategyAlpha), "shard strategy (alpha, hash)")
	_ = cmd.MarkFlagRequired("tests")

	return cmd
}

func runSplit(cmd *cobra.Command, testsFile string, index, total int, strategyName string) error {
	strategy, err := testlist.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	list, err := testlist.Load(testsFile)
	if err != nil {
		return err
	}

	shard, err := testlist.Split(list.Tests, index, total, strategy)
	if err != nil {
		return err
	}

	slog.Debug("computed shard",
		"index", index,
		"total", total,
		"strategy", strategy,
		"included", len(shard.Included),
		"excluded", len(shard.Excluded))

	formatter, err := session.NewFormatter(cmd, "", false, false)
	if err != nil {
		return err
	}
	return formatter.Format(cmd.OutOrStdout(), ShardView{Shard: *shard})
}

// ShardView renders a shard as one row per included test
type ShardView struct {
	testlist.Shard `yaml:",inline"`
}

// Headers implements output.Tabular
func (v ShardView) Headers() []string {
	return []string{"SHARD", "TEST", "CASES", "TIMEOUT"}
}

// Rows implements output.Tabular
func (v ShardView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Included))
	label := fmt.Sprintf("%d/%d", v.Index, v.Total)
	for _, it := range v.Included {
		cases := "all"
		if len(it.Cases) > 0 {
			cases = strings.Join(it.Cases, ",")
		}
		timeout := "-"
		if it.Timeout > 0 {
			timeout = it.Timeout.String()
		}
		rows = append(rows, []string{label, it.Name, cases, timeout})
	}
	return rows
}

