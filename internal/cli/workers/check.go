package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardrun/internal/cli/session"
	"github.com/aryankumar/shardrun/internal/output"
	"github.com/aryankumar/shardrun/internal/util"
)

// defaultCheckTimeout bounds the whole liveness check
const defaultCheckTimeout = 30 * time.Second

func newCheckCmd() *cobra.Command {
	var selector string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check which workers are alive",
		Long: `Run the liveness probe of every selected worker concurrently.

Local workers run their probe command; kube workers connect to their cluster
and query the API server version. The command fails when no worker is alive.`,
		Example: `  # Check every enabled worker
  shardrun workers check

  # Check two workers and print JSON
  shardrun workers check --workers emulator-5554,prod-east -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd, selector)
		},
	}

	cmd.Flags().StringVarP(&selector, "selector", "l", "", "only check workers with these labels (key=value,...)")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, selector string) error {
	s, err := session.New()
	if err != nil {
		return err
	}

	labels, err := session.ParseSelector(selector)
	if err != nil {
		return err
	}
	workers, err := s.SelectWorkers(labels)
	if err != nil {
		return err
	}

	formatter, err := s.Formatter(cmd, false)
	if err != nil {
		return err
	}

	timeout := defaultCheckTimeout
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		timeout = s.TestTimeout(cmd)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fleet := s.NewFleet(workers, "", timeout)
	defer fleet.Close()

	s.Logger.Debug("checking workers", "count", len(workers), "timeout", timeout)
	report := fleet.Check(ctx)

	out := cmd.OutOrStdout()
	if err := formatter.Format(out, report); err != nil {
		return err
	}

	alive := report.Alive()
	if _, isTable := formatter.(*output.TableFormatter); isTable {
		colors := output.NewColorScheme(out, s.NoColor())
		fmt.Fprintf(out, "\n%s\n", colors.HealthColor(alive == len(report))("%d/%d workers alive", alive, len(report)))
	}

	if alive == 0 {
		return fmt.Errorf("%w: no worker is alive", util.ErrDeviceUnresponsive)
	}
	return nil
}
