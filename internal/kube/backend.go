// Package kube runs test items as Pods, one worker per kubeconfig context.
package kube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilnet "k8s.io/apimachinery/pkg/util/net"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/aryankumar/shardrun/internal/executor"
	"github.com/aryankumar/shardrun/internal/testlist"
	"github.com/aryankumar/shardrun/internal/util"
)

// Pod labels set on every test pod
const (
	LabelRun  = "shardrun/run"
	LabelTest = "shardrun/test"
)

const (
	// DefaultPollInterval is how often a running pod's phase is checked
	DefaultPollInterval = 2 * time.Second

	// DefaultTestTimeout bounds an attempt whose item sets no timeout
	DefaultTestTimeout = 30 * time.Minute

	// DefaultRequestTimeout bounds a single API request
	DefaultRequestTimeout = 30 * time.Second

	containerName = "test"
)

// Option configures a Backend
type Option func(*Backend)

// WithNamespace sets the namespace test pods run in
func WithNamespace(ns string) Option {
	return func(b *Backend) {
		b.namespace = ns
	}
}

// WithImage sets the image used by items that name none
func WithImage(image string) Option {
	return func(b *Backend) {
		b.image = image
	}
}

// WithRunID sets the run identifier used in pod labels
func WithRunID(id string) Option {
	return func(b *Backend) {
		b.runID = id
	}
}

// WithPollInterval sets how often pod phases are polled
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		b.pollInterval = d
	}
}

// WithTestTimeout sets the attempt timeout for items that have none
func WithTestTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.testTimeout = d
	}
}

// WithRequestTimeout bounds each API request. A server that does not
// answer in time makes the worker unresponsive.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.requestTimeout = d
	}
}

// WithUnresponsiveExitCode sets the container exit code mapped to an
// unresponsive worker
func WithUnresponsiveExitCode(code int32) Option {
	return func(b *Backend) {
		b.unresponsiveExitCode = code
	}
}

// WithContexts maps worker identities to kubeconfig contexts. Workers not
// in the map use their own name as context.
func WithContexts(contexts map[string]string) Option {
	return func(b *Backend) {
		b.contexts = contexts
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend creates pod runners and probes for kube workers
type Backend struct {
	manager              *Manager
	contexts             map[string]string
	namespace            string
	image                string
	runID                string
	pollInterval         time.Duration
	testTimeout          time.Duration
	requestTimeout       time.Duration
	unresponsiveExitCode int32
	logger               *slog.Logger
}

// NewBackend creates a backend over manager's clients
func NewBackend(manager *Manager, opts ...Option) *Backend {
	b := &Backend{
		manager:              manager,
		namespace:            metav1.NamespaceDefault,
		runID:                uuid.NewString(),
		pollInterval:         DefaultPollInterval,
		testTimeout:          DefaultTestTimeout,
		requestTimeout:       DefaultRequestTimeout,
		unresponsiveExitCode: 75,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// RunID returns the identifier labelling this backend's pods
func (b *Backend) RunID() string {
	return b.runID
}

// NewRunner implements executor.RunnerFactory
func (b *Backend) NewRunner(ctx context.Context, worker string) (executor.Runner[testlist.Item], error) {
	return &Runner{
		backend: b,
		worker:  worker,
		logger:  b.logger.With("worker", worker),
	}, nil
}

// Probe implements executor.LivenessProbe with an API server health check
func (b *Backend) Probe(ctx context.Context, worker string) bool {
	client, err := b.manager.Connect(ctx, worker, b.contexts[worker])
	if err != nil {
		return false
	}
	return client.HealthCheck(ctx) == nil
}

// selector matches every pod of this run
func (b *Backend) selector() string {
	return runSelector(b.runID)
}

// IsUnreachable reports whether err means the API server cannot be used
// right now, as opposed to a request it rejected
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsServiceUnavailable(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		utilnet.IsConnectionRefused(err) ||
		utilnet.IsConnectionReset(err) ||
		utilnet.IsProbableEOF(err) {
		return true
	}

	// Client-side timeouts and dial or DNS failures
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) || errors.As(err, &dnsErr)
}

// classify wraps unreachable-server errors as unresponsive-worker errors.
// A deadline only counts when it is not the caller's own.
func classify(ctx context.Context, worker string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if IsUnreachable(err) || errors.Is(err, context.DeadlineExceeded) {
		return util.NewDeviceUnresponsiveError(worker, err)
	}
	return err
}

// request derives the context of one API request from ctx
func (b *Backend) request(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.requestTimeout)
}

// podName builds a unique, DNS-1123 compliant pod name for an attempt
func podName(test string) string {
	suffix := uuid.NewString()[:8]
	base := labelSafe(test)
	const maxBase = validation.DNS1123LabelMaxLength - len("shardrun--") - 8
	if len(base) > maxBase {
		base = strings.Trim(base[:maxBase], "-.")
	}
	if base == "" {
		return "shardrun-" + suffix
	}
	return "shardrun-" + strings.ReplaceAll(base, ".", "-") + "-" + suffix
}

// labelSafe turns s into a valid label value
func labelSafe(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, s)
	if len(s) > validation.LabelValueMaxLength {
		s = s[:validation.LabelValueMaxLength]
	}
	return strings.Trim(s, "-.")
}

// envVars converts an env map to container env vars in stable order
func envVars(maps ...map[string]string) []corev1.EnvVar {
	var out []corev1.EnvVar
	for _, m := range maps {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			out = append(out, corev1.EnvVar{Name: k, Value: m[k]})
		}
	}
	return out
}

// errNoImage is returned for items that name no image when the backend
// has no default
var errNoImage = fmt.Errorf("%w: no image", util.ErrInvalidTestList)
