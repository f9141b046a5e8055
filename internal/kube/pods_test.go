package kube

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8stesting "k8s.io/client-go/testing"
)

func testPod(name, runID, test string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "ci",
			Labels:    map[string]string{LabelRun: runID, LabelTest: test},
		},
		Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: containerName}}},
		Status: corev1.PodStatus{
			Phase:             phase,
			ContainerStatuses: []corev1.ContainerStatus{{Name: containerName, Ready: phase == corev1.PodRunning, RestartCount: 1}},
		},
	}
}

func TestBackend_ListTestPods(t *testing.T) {
	clientset := healthyClientset()
	for _, pod := range []*corev1.Pod{
		testPod("b-pod", "run-1234", "net", corev1.PodRunning),
		testPod("a-pod", "run-1234", "base", corev1.PodFailed),
		testPod("other", "run-9", "net", corev1.PodSucceeded),
	} {
		_, err := clientset.CoreV1().Pods("ci").Create(context.Background(), pod, metav1.CreateOptions{})
		require.NoError(t, err)
	}
	b, _ := newTestBackend(t, clientset)

	pods, err := b.ListTestPods(context.Background(), "prod-east", "run-1234")
	require.NoError(t, err)
	require.Len(t, pods, 2)
	assert.Equal(t, "a-pod", pods[0].Name)
	assert.Equal(t, "base", pods[0].Test)
	assert.Equal(t, "0/1", pods[0].Ready)
	assert.Equal(t, "1/1", pods[1].Ready)
	assert.Equal(t, int32(1), pods[1].Restarts)
	assert.Equal(t, "prod-east", pods[1].Worker)

	all, err := b.ListTestPods(context.Background(), "prod-east", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBackend_DeleteTestPods(t *testing.T) {
	clientset := healthyClientset()
	_, err := clientset.CoreV1().Pods("ci").Create(context.Background(),
		testPod("a-pod", "run-1234", "base", corev1.PodFailed), metav1.CreateOptions{})
	require.NoError(t, err)

	var selector string
	clientset.PrependReactor("delete-collection", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		selector = action.(k8stesting.DeleteCollectionAction).GetListRestrictions().Labels.String()
		return true, nil, nil
	})
	b, _ := newTestBackend(t, clientset)

	n, err := b.DeleteTestPods(context.Background(), "prod-east", "run-1234")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, LabelRun+"=run-1234", selector)

	// Nothing matches, so nothing is deleted.
	selector = ""
	n, err = b.DeleteTestPods(context.Background(), "prod-east", "run-none")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, selector)
}

func TestBackend_ListTestPods_UnknownWorker(t *testing.T) {
	b, _ := newTestBackend(t, healthyClientset())

	_, err := b.ListTestPods(context.Background(), "dut-9", "")
	assert.Error(t, err)
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Age(now.Add(-tt.ago), now))
	}
	assert.Equal(t, "<unknown>", Age(time.Time{}, now))
}
