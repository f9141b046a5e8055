package pods

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aryankumar/shardrun/internal/util"
)

func newCleanCmd(runID, selector *string) *cobra.Command {
	var skipConfirmation bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete leftover test pods",
		Long: `Delete the test pods left on the clusters of kube workers.

Without --run-id the pods of every run are deleted, which also kills the
tests of runs still in progress. Asks for confirmation unless --yes is given.`,
		Example: `  # Delete the pods of an interrupted run
  shardrun pods clean --run-id 6f1c2f0e-7d5a-4c37-9a55-3f0a8a4b7e21

  # Delete every test pod without asking
  shardrun pods clean -y`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), cmd, *runID, *selector, skipConfirmation)
		},
	}

	cmd.Flags().BoolVarP(&skipConfirmation, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runClean(ctx context.Context, cmd *cobra.Command, runID, selector string, skipConfirmation bool) error {
	fleet, workers, err := kubeFleet(cmd, selector)
	if err != nil {
		return err
	}
	defer fleet.Close()

	if !skipConfirmation && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), runID, workers) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
		return nil
	}

	var (
		mu      sync.Mutex
		deleted int
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWorkers)
	for _, worker := range workers {
		g.Go(func() error {
			n, err := fleet.Kube().DeleteTestPods(gctx, worker, runID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, util.WrapWorkerError(worker, "clean", err))
				return nil
			}
			deleted += n
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d test pod(s) from %d worker(s)\n", deleted, len(workers)-len(errs))
	return util.CombineErrors(errs...)
}

// confirm asks before deleting
func confirm(in io.Reader, out io.Writer, runID string, workers []string) bool {
	what := "ALL test pods"
	if runID != "" {
		what = fmt.Sprintf("the test pods of run %s", runID)
	}
	fmt.Fprintf(out, "WARNING: %s will be DELETED\n", what)
	fmt.Fprintf(out, "From %d worker(s): %s\n\n", len(workers), strings.Join(workers, ", "))
	fmt.Fprint(out, "Are you sure? [y/N]: ")

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
