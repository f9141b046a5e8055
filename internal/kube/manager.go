package kube

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aryankumar/shardrun/internal/config"
	"github.com/aryankumar/shardrun/internal/util"
)

// maxConcurrentConnects limits parallel kubeconfig loading and dialing
const maxConcurrentConnects = 10

// Manager owns the cluster clients of all kube workers
type Manager struct {
	// clients maps worker identity to its client
	clients map[string]*Client

	// mu protects clients and closed
	mu sync.RWMutex

	// loader builds REST configs from kubeconfig contexts
	loader *config.KubeconfigLoader

	logger *slog.Logger

	closed bool
}

// NewManager creates a new cluster manager
func NewManager(loader *config.KubeconfigLoader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		clients: make(map[string]*Client),
		loader:  loader,
		logger:  logger,
	}
}

// Connect returns the client for worker, creating it from contextName on
// first use. An empty contextName means the worker name is the context.
func (m *Manager) Connect(ctx context.Context, worker, contextName string) (*Client, error) {
	if contextName == "" {
		contextName = worker
	}

	m.mu.RLock()
	client, ok := m.clients[worker]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("manager is closed")
	}
	if ok {
		return client, nil
	}
	if m.loader == nil {
		return nil, fmt.Errorf("%w: %s (no kubeconfig)", util.ErrWorkerNotFound, worker)
	}

	m.logger.Debug("connecting to cluster", "worker", worker, "context", contextName)

	restConfig, err := m.loader.BuildClientConfig(contextName)
	if err != nil {
		return nil, err
	}

	client, err = NewClient(worker, contextName, restConfig, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}
	// Another goroutine may have won the race.
	if existing, ok := m.clients[worker]; ok {
		return existing, nil
	}
	m.clients[worker] = client

	m.logger.Info("connected to cluster",
		"worker", worker,
		"server", restConfig.Host)
	return client, nil
}

// ConnectAll connects every worker concurrently. contexts maps worker
// identity to kubeconfig context. Failures are combined; the workers that
// connected stay available.
func (m *Manager) ConnectAll(ctx context.Context, contexts map[string]string) error {
	if len(contexts) == 0 {
		return fmt.Errorf("no workers provided")
	}

	m.logger.Info("connecting to clusters", "count", len(contexts))

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentConnects)

	for worker, contextName := range contexts {
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				errs = append(errs, util.WrapWorkerError(worker, "connect", gctx.Err()))
				mu.Unlock()
				return nil
			}
			if _, err := m.Connect(gctx, worker, contextName); err != nil {
				m.logger.Error("failed to connect to cluster", "worker", worker, "error", err)
				mu.Lock()
				errs = append(errs, util.WrapWorkerError(worker, "connect", err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		m.logger.Warn("some cluster connections failed",
			"total", len(contexts),
			"failed", len(errs))
		return util.CombineErrors(errs...)
	}
	return nil
}

// AddClient registers an already connected client
func (m *Manager) AddClient(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.Worker] = c
}

// GetClient returns the client of a connected worker
func (m *Manager) GetClient(worker string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}

	client, ok := m.clients[worker]
	if !ok {
		return nil, fmt.Errorf("%w: %s not connected", util.ErrWorkerNotFound, worker)
	}
	return client, nil
}

// Workers returns the connected worker names, sorted
func (m *Manager) Workers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of connected workers
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// HealthCheckWithStatus checks every connected worker concurrently and
// returns their status sorted by worker
func (m *Manager) HealthCheckWithStatus(ctx context.Context) []HealthStatus {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	results := make([]HealthStatus, len(clients))

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = checkClient(ctx, c)
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Worker < results[j].Worker })

	m.logger.Info("health checks completed",
		"total", len(results),
		"healthy", countHealthy(results))
	return results
}

// checkClient runs a health check and reports it as a status
func checkClient(ctx context.Context, c *Client) HealthStatus {
	status := HealthStatus{Worker: c.Worker, Context: c.Context}

	start := time.Now()
	version, err := c.serverVersion(ctx, DefaultHealthCheckTimeout)
	status.Latency = time.Since(start)

	c.Healthy = err == nil
	status.Healthy = c.Healthy
	status.ServerVersion = version
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// Close drops all clients and refuses new connections
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.logger.Debug("closing cluster manager", "clients", len(m.clients))

	// Clientsets have no Close; their transports are garbage collected.
	m.clients = make(map[string]*Client)
	m.closed = true
}

// IsClosed returns true if the manager has been closed
func (m *Manager) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func countHealthy(results []HealthStatus) int {
	count := 0
	for _, r := range results {
		if r.Healthy {
			count++
		}
	}
	return count
}
