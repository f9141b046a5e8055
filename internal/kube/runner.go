package kube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/aryankumar/shardrun/internal/executor"
	"github.com/aryankumar/shardrun/internal/testlist"
	"github.com/aryankumar/shardrun/internal/util"
)

// terminationLog is where a test container writes its JSON summary
const terminationLog = "/dev/termination-log"

// Runner runs test pods on the cluster behind one worker
type Runner struct {
	backend *Backend
	worker  string
	logger  *slog.Logger
	client  *Client
}

// SetUp connects to the worker's cluster and checks that it answers
func (r *Runner) SetUp(ctx context.Context) error {
	client, err := r.backend.manager.Connect(ctx, r.worker, r.backend.contexts[r.worker])
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := client.HealthCheck(ctx); err != nil {
		return util.NewDeviceUnresponsiveError(r.worker, err)
	}
	r.client = client
	return nil
}

// RunTest runs item in a pod and waits for it to finish
func (r *Runner) RunTest(ctx context.Context, item testlist.Item) (executor.Result, *testlist.Item, error) {
	b := r.backend

	pod, err := b.newPod(r.worker, item)
	if err != nil {
		return executor.Result{}, nil, err
	}

	timeout := item.Timeout
	if timeout == 0 {
		timeout = b.testTimeout
	}
	pod.Spec.ActiveDeadlineSeconds = ptr(int64(math.Ceil(timeout.Seconds())))

	pods := r.client.Clientset.CoreV1().Pods(b.namespace)

	started := time.Now()
	reqCtx, cancel := b.request(ctx)
	created, err := pods.Create(reqCtx, pod, metav1.CreateOptions{})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return executor.Result{}, nil, fmt.Errorf("test %s interrupted: %w", item.Name, ctx.Err())
		}
		return executor.Result{}, nil, classify(ctx, r.worker, fmt.Errorf("failed to create pod: %w", err))
	}
	defer r.deletePod(context.WithoutCancel(ctx), created.Name)

	r.logger.Debug("test pod created", "pod", created.Name, "test", item.String())

	// Scheduling and image pulls count against the pod deadline, so give
	// the kubelet a few polls to report it.
	var (
		final  *corev1.Pod
		getErr error
	)
	pollErr := wait.PollUntilContextTimeout(ctx, b.pollInterval, timeout+5*b.pollInterval, true,
		func(pollCtx context.Context) (bool, error) {
			reqCtx, cancel := b.request(pollCtx)
			defer cancel()
			p, err := pods.Get(reqCtx, created.Name, metav1.GetOptions{})
			if err != nil {
				if pollCtx.Err() == nil {
					getErr = err
				}
				return false, err
			}
			switch p.Status.Phase {
			case corev1.PodSucceeded, corev1.PodFailed:
				final = p
				return true, nil
			}
			return false, nil
		})

	result := executor.Result{
		Test:     item.Name,
		Started:  started,
		Duration: time.Since(started),
	}

	if ctx.Err() != nil {
		return result, nil, fmt.Errorf("test %s interrupted: %w", item.Name, ctx.Err())
	}

	var (
		status  executor.Status
		log     string
		summary []byte
	)
	switch {
	case getErr != nil:
		return result, nil, classify(ctx, r.worker, fmt.Errorf("failed to watch pod %s: %w", created.Name, getErr))
	case pollErr == nil:
		status, log, summary = b.podOutcome(final)
		if status == "" {
			return result, nil, util.NewDeviceUnresponsiveError(r.worker,
				fmt.Errorf("test %s exited with code %d", item.Name, b.unresponsiveExitCode))
		}
	case errors.Is(pollErr, context.DeadlineExceeded) || wait.Interrupted(pollErr):
		status = executor.StatusTimeout
		log = fmt.Sprintf("pod %s did not finish within %s", created.Name, timeout)
	default:
		return result, nil, classify(ctx, r.worker, fmt.Errorf("failed to watch pod %s: %w", created.Name, pollErr))
	}

	cases, err := testlist.BuildCases(item, summary, status, log)
	if err != nil {
		r.logger.Warn("ignoring test summary", "test", item.Name, "error", err)
	}
	result.Cases = cases

	return result, testlist.Retry(item, result), nil
}

// deletePod removes a finished test pod, logging failures
func (r *Runner) deletePod(ctx context.Context, name string) {
	ctx, cancel := r.backend.request(ctx)
	defer cancel()
	err := r.client.Clientset.CoreV1().Pods(r.backend.namespace).Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: ptr(int64(0)),
	})
	if err != nil && !apierrors.IsNotFound(err) {
		r.logger.Warn("failed to delete test pod", "pod", name, "error", err)
	}
}

// TearDown deletes any pod of this run left on the worker's cluster
func (r *Runner) TearDown(ctx context.Context) error {
	if r.client == nil {
		return nil
	}

	reqCtx, cancel := r.backend.request(ctx)
	defer cancel()
	err := r.client.Clientset.CoreV1().Pods(r.backend.namespace).DeleteCollection(reqCtx,
		metav1.DeleteOptions{GracePeriodSeconds: ptr(int64(0))},
		metav1.ListOptions{LabelSelector: r.backend.selector()})
	if err != nil {
		return classify(ctx, r.worker, fmt.Errorf("failed to delete test pods: %w", err))
	}
	return nil
}

// newPod builds the pod spec for one attempt at item
func (b *Backend) newPod(worker string, item testlist.Item) (*corev1.Pod, error) {
	image := item.Image
	if image == "" {
		image = b.image
	}
	if image == "" {
		return nil, fmt.Errorf("test %s: %w", item.Name, errNoImage)
	}

	env := envVars(item.Env, map[string]string{
		"SHARDRUN_WORKER":  worker,
		"SHARDRUN_TEST":    item.Name,
		"SHARDRUN_CASES":   strings.Join(item.Cases, ","),
		"SHARDRUN_SUMMARY": terminationLog,
		"SHARDRUN_RUN_ID":  b.runID,
	})

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName(item.Name),
			Namespace: b.namespace,
			Labels: map[string]string{
				LabelRun:  b.runID,
				LabelTest: labelSafe(item.Name),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:                     containerName,
				Image:                    image,
				Command:                  item.Command,
				Env:                      env,
				TerminationMessagePath:   terminationLog,
				TerminationMessagePolicy: corev1.TerminationMessageReadFile,
			}},
		},
	}, nil
}

// podOutcome maps a finished pod to a status, a log and the summary its
// container reported. An empty status means the container exited with the
// unresponsive exit code.
func (b *Backend) podOutcome(pod *corev1.Pod) (executor.Status, string, []byte) {
	term := terminatedState(pod)

	var summary []byte
	if term != nil {
		summary = []byte(term.Message)
	}

	if pod.Status.Phase == corev1.PodSucceeded {
		return executor.StatusPass, "", summary
	}

	switch {
	case pod.Status.Reason == "DeadlineExceeded":
		return executor.StatusTimeout, pod.Status.Message, summary
	case term == nil:
		return executor.StatusCrash, podMessage(pod), summary
	case term.ExitCode == b.unresponsiveExitCode:
		return "", "", nil
	case term.Reason == "OOMKilled" || term.ExitCode >= 128:
		return executor.StatusCrash, fmt.Sprintf("%s (exit code %d)", term.Reason, term.ExitCode), summary
	default:
		return executor.StatusFail, fmt.Sprintf("exit code %d", term.ExitCode), summary
	}
}

// terminatedState returns the test container's final state, if known
func terminatedState(pod *corev1.Pod) *corev1.ContainerStateTerminated {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == containerName {
			return cs.State.Terminated
		}
	}
	return nil
}

func podMessage(pod *corev1.Pod) string {
	if pod.Status.Message != "" {
		return pod.Status.Message
	}
	return fmt.Sprintf("pod %s", strings.ToLower(string(pod.Status.Phase)))
}

func ptr[T any](v T) *T {
	return &v
}
