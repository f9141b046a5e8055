package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/aryankumar/shardrun/internal/config"
	"github.com/aryankumar/shardrun/internal/executor"
	"github.com/aryankumar/shardrun/internal/kube"
	"github.com/aryankumar/shardrun/internal/local"
	"github.com/aryankumar/shardrun/internal/testlist"
	"github.com/aryankumar/shardrun/internal/util"
)

// maxConcurrentChecks limits parallel liveness checks in Check
const maxConcurrentChecks = 16

// Fleet dispatches runner creation and liveness probes to the backend each
// worker is configured for
type Fleet struct {
	workers  []string
	backends map[string]string
	contexts map[string]string
	runID    string

	local       *local.Backend
	kube        *kube.Backend
	kubeManager *kube.Manager
	logger      *slog.Logger
}

// NewFleet builds the backends serving workers. A non-empty backend
// overrides the configured backend of every worker. timeout bounds one
// attempt at an item that sets none.
func (s *Session) NewFleet(workers []string, backend string, timeout time.Duration) *Fleet {
	defaults := s.Defaults()

	f := &Fleet{
		workers:  workers,
		backends: make(map[string]string, len(workers)),
		contexts: make(map[string]string),
		runID:    uuid.NewString(),
		logger:   s.Logger,
	}

	var locals []local.Worker
	kubeContexts := s.Config.KubeContexts()
	for _, name := range workers {
		b := backend
		if b == "" {
			b = s.Config.BackendFor(name)
		}
		f.backends[name] = b

		switch b {
		case config.BackendKube:
			f.contexts[name] = name
			if ctx, ok := kubeContexts[name]; ok {
				f.contexts[name] = ctx
			}
		default:
			wc, _ := s.Config.GetWorkerConfig(name)
			locals = append(locals, local.Worker{Name: name, ProbeCommand: wc.ProbeCommand, Env: wc.Env})
		}
	}

	f.local = local.New(locals,
		local.WithTestTimeout(timeout),
		local.WithUnresponsiveExitCode(defaults.UnresponsiveExitCode),
		local.WithRunID(f.runID),
		local.WithLogger(s.Logger))

	if len(f.contexts) > 0 {
		f.kubeManager = kube.NewManager(config.NewKubeconfigLoader(viper.GetString("kubeconfig")), s.Logger)
		f.kube = kube.NewBackend(f.kubeManager,
			kube.WithNamespace(defaults.Namespace),
			kube.WithImage(defaults.Image),
			kube.WithRunID(f.runID),
			kube.WithTestTimeout(timeout),
			kube.WithUnresponsiveExitCode(int32(defaults.UnresponsiveExitCode)),
			kube.WithContexts(f.contexts),
			kube.WithLogger(s.Logger))
	}

	return f
}

// Workers returns the worker identities the fleet serves
func (f *Fleet) Workers() []string {
	return append([]string(nil), f.workers...)
}

// RunID identifies the run in test environments and pod labels
func (f *Fleet) RunID() string {
	return f.runID
}

// Backend returns the backend name of worker
func (f *Fleet) Backend(worker string) string {
	return f.backends[worker]
}

// KubeWorkers returns the workers served by the kube backend, sorted
func (f *Fleet) KubeWorkers() []string {
	return slices.Sorted(maps.Keys(f.contexts))
}

// Kube returns the kube backend, or nil when no worker uses it
func (f *Fleet) Kube() *kube.Backend {
	return f.kube
}

// NewRunner is the executor.RunnerFactory of the fleet
func (f *Fleet) NewRunner(ctx context.Context, worker string) (executor.Runner[testlist.Item], error) {
	if f.backends[worker] == config.BackendKube {
		return f.kube.NewRunner(ctx, worker)
	}
	return f.local.NewRunner(ctx, worker)
}

// Probe is the executor.LivenessProbe of the fleet
func (f *Fleet) Probe(ctx context.Context, worker string) bool {
	if f.backends[worker] == config.BackendKube {
		return f.kube.Probe(ctx, worker)
	}
	return f.local.Probe(ctx, worker)
}

// CleanupHook runs command on this machine before and after a run
func (f *Fleet) CleanupHook(command string) executor.Hook {
	return f.local.CleanupHook(command)
}

// Close releases cluster clients
func (f *Fleet) Close() {
	if f.kubeManager != nil {
		f.kubeManager.Close()
	}
}

// Check probes every worker concurrently. Kube workers also report their
// server version.
func (f *Fleet) Check(ctx context.Context) HealthReport {
	report := make(HealthReport, 0, len(f.workers))
	var mu sync.Mutex
	add := func(h WorkerHealth) {
		mu.Lock()
		defer mu.Unlock()
		report = append(report, h)
	}

	if f.kubeManager != nil {
		for _, h := range f.checkKube(ctx) {
			add(h)
		}
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentChecks)
	for _, name := range f.workers {
		if f.backends[name] == config.BackendKube {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			alive := f.local.Probe(ctx, name)
			h := WorkerHealth{
				Worker:  name,
				Backend: config.BackendLocal,
				Alive:   alive,
				Latency: time.Since(start),
			}
			if !alive {
				h.Detail = "probe command failed"
			}
			add(h)
			return nil
		})
	}
	_ = g.Wait()

	report.Sort()
	return report
}

// checkKube connects the kube workers and checks their API servers
func (f *Fleet) checkKube(ctx context.Context) []WorkerHealth {
	failed := make(map[string]error)
	if err := f.kubeManager.ConnectAll(ctx, f.contexts); err != nil {
		for _, e := range flatten(err) {
			var werr *util.WorkerError
			if errors.As(e, &werr) {
				failed[werr.Worker] = werr.Err
			}
		}
	}

	out := make([]WorkerHealth, 0, len(f.contexts))
	for worker, err := range failed {
		out = append(out, WorkerHealth{
			Worker:  worker,
			Backend: config.BackendKube,
			Context: f.contexts[worker],
			Detail:  fmt.Sprintf("connect: %v", err),
		})
	}
	for _, status := range f.kubeManager.HealthCheckWithStatus(ctx) {
		h := WorkerHealth{
			Worker:  status.Worker,
			Backend: config.BackendKube,
			Context: status.Context,
			Alive:   status.Healthy,
			Latency: status.Latency,
			Detail:  status.ServerVersion,
		}
		if !status.Healthy {
			h.Detail = status.Error
		}
		out = append(out, h)
	}
	return out
}

// flatten returns the errors joined in err, or err itself
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
