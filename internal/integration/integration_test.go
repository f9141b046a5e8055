package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/aryankumar/shardrun/internal/config"
	"github.com/aryankumar/shardrun/internal/executor"
	"github.com/aryankumar/shardrun/internal/kube"
	"github.com/aryankumar/shardrun/internal/local"
	"github.com/aryankumar/shardrun/internal/testlist"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// summaryScript reports every requested case as passing, except that case B
// fails until the marker file exists
const summaryScript = `
cases=${SHARDRUN_CASES:-A,B}
out='{"cases":['
sep=''
for c in $(echo "$cases" | tr ',' ' '); do
  st=PASS
  if [ "$c" = B ] && [ ! -e "$MARKER" ]; then touch "$MARKER"; st=FAIL; fi
  out="$out$sep{\"name\":\"$c\",\"status\":\"$st\"}"
  sep=,
done
echo "$out]}" > "$SHARDRUN_SUMMARY"
`

// TestLocalWorkflow runs a test list from file through the local backend:
// a partial failure is retried with only the failed case, and a worker that
// reports an unresponsive device is dropped without costing a retry.
func TestLocalWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "suite.sh")
	if err := os.WriteFile(script, []byte(summaryScript), 0o700); err != nil {
		t.Fatal(err)
	}
	list := "tests:\n" +
		"  - name: suite\n" +
		"    command: [sh, " + quote(script) + "]\n" +
		"    env: {MARKER: " + quote(filepath.Join(dir, "marker")) + "}\n" +
		"  - name: picky\n" +
		"    command: [sh, -c, '[ \"$SHARDRUN_WORKER\" != w1 ] || exit 75']\n" +
		"  - name: plain\n" +
		"    command: [\"true\"]\n"
	listPath := filepath.Join(dir, "tests.yaml")
	if err := os.WriteFile(listPath, []byte(list), 0o600); err != nil {
		t.Fatal(err)
	}

	tests, err := testlist.Load(listPath)
	if err != nil {
		t.Fatalf("failed to load test list: %v", err)
	}

	backend := local.New(
		[]local.Worker{{Name: "w1"}, {Name: "w2"}},
		local.WithTestTimeout(time.Minute),
		local.WithLogger(quietLogger))

	registry := prometheus.NewRegistry()
	metrics := executor.NewMetrics("shardrun", registry)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results, err := executor.New[testlist.Item](backend.NewRunner, []string{"w1", "w2"},
		executor.WithMaxRetries(2),
		executor.WithLivenessProbe(backend.Probe),
		executor.WithMetrics(metrics),
		executor.WithLogger(quietLogger),
	).Run(ctx, tests.Tests)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !executor.AllPassed(results) {
		t.Errorf("expected every case to pass finally: %v", executor.FinalStatuses(results))
	}

	suite := executor.GroupByTest(results)["suite"]
	if len(suite) != 2 {
		t.Fatalf("expected 2 entries for suite, got %d", len(suite))
	}
	if !suite[0].Retried || len(suite[0].Cases) != 1 || suite[0].Cases[0].Name != "A" {
		t.Errorf("expected the first attempt to keep only case A, got %+v", suite[0])
	}
	if suite[1].Try != 2 || len(suite[1].Cases) != 1 || suite[1].Cases[0].Name != "B" {
		t.Errorf("expected the retry to run only case B, got %+v", suite[1])
	}

	for _, r := range executor.GroupByTest(results)["picky"] {
		if r.Worker == "w1" {
			t.Errorf("picky recorded a result on the unresponsive worker: %+v", r)
		}
		if r.Try != 1 {
			t.Errorf("requeue after an unresponsive worker must not use a retry, got try %d", r.Try)
		}
	}

	expected := `
# HELP shardrun_retries_total Retry tasks added to the queue
# TYPE shardrun_retries_total counter
shardrun_retries_total 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "shardrun_retries_total"); err != nil {
		t.Errorf("unexpected retry metric: %v", err)
	}
}

// TestKubeWorkflow wires config workers to kubeconfig contexts and runs
// tests as pods on fake clusters, one of which is unreachable.
func TestKubeWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "defaults:\n  backend: kube\n  image: busybox:latest\n" +
		"workers:\n" +
		"  dut-east: {enabled: true, context: prod-east}\n" +
		"  dut-west: {enabled: true, context: prod-west}\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	cfgManager := config.NewManager(cfgPath)
	if _, err := cfgManager.Load(); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	workers := cfgManager.GetEnabledWorkers()
	contexts := cfgManager.KubeContexts()

	var created atomic.Int32
	east := fake.NewSimpleClientset()
	east.Discovery().(*fakediscovery.FakeDiscovery).FakedServerVersion = &version.Info{GitVersion: "v1.31.0"}
	east.PrependReactor("create", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		created.Add(1)
		pod := action.(k8stesting.CreateAction).GetObject().(*corev1.Pod)
		pod.Status = corev1.PodStatus{Phase: corev1.PodSucceeded}
		return false, nil, nil
	})

	west := fake.NewSimpleClientset()
	west.Discovery().(*fakediscovery.FakeDiscovery).PrependReactor("get", "version",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, io.ErrUnexpectedEOF
		})

	manager := kube.NewManager(nil, quietLogger)
	defer manager.Close()
	manager.AddClient(&kube.Client{Worker: "dut-east", Context: contexts["dut-east"], Clientset: east})
	manager.AddClient(&kube.Client{Worker: "dut-west", Context: contexts["dut-west"], Clientset: west})

	backend := kube.NewBackend(manager,
		kube.WithImage(cfgManager.GetConfig().Defaults.Image),
		kube.WithContexts(contexts),
		kube.WithPollInterval(5*time.Millisecond),
		kube.WithLogger(quietLogger))

	items := []testlist.Item{
		{Name: "alpha", Command: []string{"/bin/alpha"}},
		{Name: "beta", Command: []string{"/bin/beta"}},
		{Name: "gamma", Command: []string{"/bin/gamma"}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := executor.New[testlist.Item](backend.NewRunner, workers,
		executor.WithLivenessProbe(backend.Probe),
		executor.WithLogger(quietLogger),
	).Run(ctx, items)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(results) != 3 || !executor.AllPassed(results) {
		t.Errorf("expected 3 passing results, got %+v", results)
	}
	if got := executor.Workers(results); !slices.Equal(got, []string{"dut-east"}) {
		t.Errorf("expected only dut-east to run tests, got %v", got)
	}
	if created.Load() != 3 {
		t.Errorf("expected 3 pods, got %d", created.Load())
	}

	statuses := manager.HealthCheckWithStatus(ctx)
	if len(statuses) != 2 || !statuses[0].Healthy || statuses[1].Healthy {
		t.Errorf("unexpected health %+v", statuses)
	}
}

// quote renders s as a single-quoted YAML scalar
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
