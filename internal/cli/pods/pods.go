// Package pods implements the pods command group, which inspects and
// removes the test pods runs leave on kube workers.
package pods

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aryankumar/shardrun/internal/cli/session"
	"github.com/aryankumar/shardrun/internal/kube"
	"github.com/aryankumar/shardrun/internal/util"
)

// maxConcurrentWorkers limits parallel API calls across kube workers
const maxConcurrentWorkers = 8

// NewPodsCmd creates the pods command
func NewPodsCmd() *cobra.Command {
	var (
		runID    string
		selector string
	)

	cmd := &cobra.Command{
		Use:   "pods",
		Short: "List test pods on kube workers",
		Long: `List the test pods shardrun created on the clusters of kube workers.

Pods are normally deleted when their test finishes. Pods left behind by an
interrupted run can be removed with "shardrun pods clean".`,
		Example: `  # List test pods of every run
  shardrun pods

  # List the pods of one run
  shardrun pods --run-id 6f1c2f0e-7d5a-4c37-9a55-3f0a8a4b7e21 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd, runID, selector)
		},
	}

	cmd.PersistentFlags().StringVar(&runID, "run-id", "", "only pods of this run (default all runs)")
	cmd.PersistentFlags().StringVarP(&selector, "selector", "l", "", "only kube workers with these labels (key=value,...)")

	cmd.AddCommand(newCleanCmd(&runID, &selector))

	return cmd
}

// kubeFleet builds the fleet of the selected workers and returns its kube
// workers
func kubeFleet(cmd *cobra.Command, selector string) (*session.Fleet, []string, error) {
	s, err := session.New()
	if err != nil {
		return nil, nil, err
	}
	labels, err := session.ParseSelector(selector)
	if err != nil {
		return nil, nil, err
	}
	workers, err := s.SelectWorkers(labels)
	if err != nil {
		return nil, nil, err
	}

	fleet := s.NewFleet(workers, "", s.TestTimeout(cmd))
	kubeWorkers := fleet.KubeWorkers()
	if len(kubeWorkers) == 0 {
		fleet.Close()
		return nil, nil, fmt.Errorf("%w: none of the selected workers uses the kube backend", util.ErrWorkerNotFound)
	}
	return fleet, kubeWorkers, nil
}

func runList(ctx context.Context, cmd *cobra.Command, runID, selector string) error {
	fleet, workers, err := kubeFleet(cmd, selector)
	if err != nil {
		return err
	}
	defer fleet.Close()

	pods, err := listPods(ctx, fleet.Kube(), workers, runID)
	if err != nil && len(pods) == 0 {
		return err
	}
	if err != nil {
		// Partial results are still worth showing
		fmt.Fprintln(cmd.ErrOrStderr(), util.FriendlyError(err))
	}

	formatter, ferr := session.NewFormatter(cmd, "", false, false)
	if ferr != nil {
		return ferr
	}
	return formatter.Format(cmd.OutOrStdout(), PodList{Pods: pods, Now: time.Now()})
}

// listPods lists the test pods on every worker concurrently
func listPods(ctx context.Context, backend *kube.Backend, workers []string, runID string) ([]kube.TestPod, error) {
	var (
		mu   sync.Mutex
		pods []kube.TestPod
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWorkers)
	for _, worker := range workers {
		g.Go(func() error {
			found, err := backend.ListTestPods(gctx, worker, runID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, util.WrapWorkerError(worker, "list", err))
				return nil
			}
			pods = append(pods, found...)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(pods, func(a, b kube.TestPod) int {
		if c := strings.Compare(a.Worker, b.Worker); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return pods, util.CombineErrors(errs...)
}

// PodList renders test pods kubectl style
type PodList struct {
	Pods []kube.TestPod `json:"pods" yaml:"pods"`
	Now  time.Time      `json:"-" yaml:"-"`
}

// Headers implements output.Tabular
func (l PodList) Headers() []string {
	return []string{"WORKER", "NAMESPACE", "NAME", "RUN", "TEST", "PHASE", "READY", "RESTARTS", "AGE"}
}

// Rows implements output.Tabular
func (l PodList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Pods))
	for _, p := range l.Pods {
		rows = append(rows, []string{
			p.Worker,
			p.Namespace,
			p.Name,
			p.RunID,
			p.Test,
			p.Phase,
			p.Ready,
			strconv.Itoa(int(p.Restarts)),
			kube.Age(p.Created, l.Now),
		})
	}
	return rows
}
