package kube

import (
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Client is a connection to the cluster behind one worker
type Client struct {
	// Worker is the worker identity the client serves
	Worker string

	// Context is the kubeconfig context name
	Context string

	// Clientset is the Kubernetes client interface
	Clientset kubernetes.Interface

	// RestConfig is the underlying REST configuration
	RestConfig *rest.Config

	// Healthy indicates if the last health check passed
	Healthy bool
}

// HealthStatus is the result of checking one worker
type HealthStatus struct {
	Worker        string        `json:"worker" yaml:"worker"`
	Context       string        `json:"context,omitempty" yaml:"context,omitempty"`
	Healthy       bool          `json:"healthy" yaml:"healthy"`
	Error         string        `json:"error,omitempty" yaml:"error,omitempty"`
	ServerVersion string        `json:"serverVersion,omitempty" yaml:"serverVersion,omitempty"`
	Latency       time.Duration `json:"latency" yaml:"latency"`
}
