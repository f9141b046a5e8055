package kube

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// TestPod describes a test pod found on a worker's cluster
type TestPod struct {
	Worker    string    `json:"worker" yaml:"worker"`
	Namespace string    `json:"namespace" yaml:"namespace"`
	Name      string    `json:"name" yaml:"name"`
	RunID     string    `json:"runId" yaml:"runId"`
	Test      string    `json:"test" yaml:"test"`
	Phase     string    `json:"phase" yaml:"phase"`
	Ready     string    `json:"ready" yaml:"ready"`
	Restarts  int32     `json:"restarts" yaml:"restarts"`
	Created   time.Time `json:"created" yaml:"created"`
}

// runSelector matches the pods of runID, or of every run when it is empty
func runSelector(runID string) string {
	if runID == "" {
		return LabelRun
	}
	return LabelRun + "=" + runID
}

// ListTestPods lists the test pods of runID on worker's cluster. An empty
// runID lists the pods of every run.
func (b *Backend) ListTestPods(ctx context.Context, worker, runID string) ([]TestPod, error) {
	client, err := b.manager.Connect(ctx, worker, b.contexts[worker])
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := b.request(ctx)
	defer cancel()
	list, err := client.Clientset.CoreV1().Pods(b.namespace).List(reqCtx, metav1.ListOptions{
		LabelSelector: runSelector(runID),
	})
	if err != nil {
		return nil, classify(ctx, worker, fmt.Errorf("failed to list test pods: %w", err))
	}

	pods := make([]TestPod, 0, len(list.Items))
	for i := range list.Items {
		pod := &list.Items[i]
		pods = append(pods, TestPod{
			Worker:    worker,
			Namespace: pod.Namespace,
			Name:      pod.Name,
			RunID:     pod.Labels[LabelRun],
			Test:      pod.Labels[LabelTest],
			Phase:     string(pod.Status.Phase),
			Ready:     readyStatus(pod),
			Restarts:  restarts(pod),
			Created:   pod.CreationTimestamp.Time,
		})
	}
	slices.SortFunc(pods, func(a, b TestPod) int { return strings.Compare(a.Name, b.Name) })
	return pods, nil
}

// DeleteTestPods deletes the test pods of runID on worker's cluster and
// returns how many matched. An empty runID deletes the pods of every run.
func (b *Backend) DeleteTestPods(ctx context.Context, worker, runID string) (int, error) {
	pods, err := b.ListTestPods(ctx, worker, runID)
	if err != nil || len(pods) == 0 {
		return 0, err
	}

	client, err := b.manager.GetClient(worker)
	if err != nil {
		return 0, err
	}
	reqCtx, cancel := b.request(ctx)
	defer cancel()
	err = client.Clientset.CoreV1().Pods(b.namespace).DeleteCollection(reqCtx,
		metav1.DeleteOptions{GracePeriodSeconds: ptr(int64(0))},
		metav1.ListOptions{LabelSelector: runSelector(runID)})
	if err != nil {
		return 0, classify(ctx, worker, fmt.Errorf("failed to delete test pods: %w", err))
	}

	b.logger.Info("deleted test pods", "worker", worker, "run", runID, "count", len(pods))
	return len(pods), nil
}

func readyStatus(pod *corev1.Pod) string {
	ready := 0
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
	}
	return fmt.Sprintf("%d/%d", ready, len(pod.Spec.Containers))
}

func restarts(pod *corev1.Pod) int32 {
	var n int32
	for _, cs := range pod.Status.ContainerStatuses {
		n += cs.RestartCount
	}
	return n
}

// Age renders how long ago t was, kubectl style
func Age(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case t.IsZero():
		return "<unknown>"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
