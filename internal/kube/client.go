package kube

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// DefaultHealthCheckTimeout bounds a single health check
const DefaultHealthCheckTimeout = 10 * time.Second

// NewClient creates the client for worker from a REST config
func NewClient(worker, contextName string, restConfig *rest.Config, logger *slog.Logger) (*Client, error) {
	if restConfig == nil {
		return nil, fmt.Errorf("rest config cannot be nil")
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	logger.Debug("created cluster client",
		"worker", worker,
		"context", contextName,
		"server", restConfig.Host)

	return &Client{
		Worker:     worker,
		Context:    contextName,
		Clientset:  clientset,
		RestConfig: restConfig,
	}, nil
}

// HealthCheck asks the API server for its version, bounded by
// DefaultHealthCheckTimeout and ctx
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.serverVersion(ctx, DefaultHealthCheckTimeout)
	c.Healthy = err == nil
	return err
}

// GetServerVersion returns the Kubernetes server version
func (c *Client) GetServerVersion(ctx context.Context) (string, error) {
	return c.serverVersion(ctx, 5*time.Second)
}

// serverVersion runs the discovery call in a goroutine so that a server
// that never answers cannot outlive ctx.
func (c *Client) serverVersion(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		version string
		err     error
	}
	resultCh := make(chan result, 1)

	go func() {
		version, err := c.Clientset.Discovery().ServerVersion()
		if err != nil {
			resultCh <- result{err: err}
			return
		}
		resultCh <- result{version: version.String()}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("health check timeout: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to get server version: %w", res.err)
		}
		return res.version, nil
	}
}

// String returns a string representation of the client
func (c *Client) String() string {
	return fmt.Sprintf("Client{Worker: %s, Context: %s, Healthy: %v}", c.Worker, c.Context, c.Healthy)
}
