package config

import "time"

// Backend names
const (
	BackendLocal = "local"
	BackendKube  = "kube"
)

// Config is the .shardrun.yaml file structure
type Config struct {
	// Workers maps worker identities to their settings
	Workers map[string]WorkerConfig `yaml:"workers,omitempty" json:"workers,omitempty"`

	// Defaults apply to every run
	Defaults DefaultsConfig `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// WorkerConfig configures one worker
type WorkerConfig struct {
	// Backend overrides Defaults.Backend for this worker
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Context is the kubeconfig context of a kube worker. Empty means the
	// worker name.
	Context string `yaml:"context,omitempty" json:"context,omitempty"`

	// Enabled workers take part in runs that name no workers
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Labels select workers with --selector
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// ProbeCommand is the local liveness check; exit 0 means alive
	ProbeCommand string `yaml:"probeCommand,omitempty" json:"probeCommand,omitempty"`

	// Env is added to every test command the worker runs
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// DefaultsConfig contains default values for a run
type DefaultsConfig struct {
	// Backend is local or kube
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// MaxRetries is how many times a failing item is retried
	MaxRetries int `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`

	// Timeout bounds one attempt at an item that sets none
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// OutputFormat is the default output format (table, json, yaml)
	OutputFormat string `yaml:"outputFormat,omitempty" json:"outputFormat,omitempty"`

	// NoColor disables colored output
	NoColor bool `yaml:"noColor,omitempty" json:"noColor,omitempty"`

	// FailOnNoRunners fails a run that is left without live workers
	FailOnNoRunners bool `yaml:"failOnNoRunners" json:"failOnNoRunners"`

	// UnresponsiveExitCode is the test exit code that marks a worker
	// unresponsive
	UnresponsiveExitCode int `yaml:"unresponsiveExitCode,omitempty" json:"unresponsiveExitCode,omitempty"`

	// Namespace is where kube test pods run
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// Image is the kube test image for items that name none
	Image string `yaml:"image,omitempty" json:"image,omitempty"`

	// CleanupCommand runs before the first and after the last test
	CleanupCommand string `yaml:"cleanupCommand,omitempty" json:"cleanupCommand,omitempty"`
}

// ContextInfo describes a kubeconfig context
type ContextInfo struct {
	// Name is the cluster name from kubeconfig
	Name string `json:"name" yaml:"name"`

	// Context is the context name
	Context string `json:"context" yaml:"context"`

	// Server is the API server URL
	Server string `json:"server" yaml:"server"`

	// Namespace is the default namespace
	Namespace string `json:"namespace" yaml:"namespace"`

	// User is the user for authentication
	User string `json:"user" yaml:"user"`

	// Current indicates if this is the current context
	Current bool `json:"current" yaml:"current"`

	// Worker is the configured worker using this context, if any
	Worker string `json:"worker,omitempty" yaml:"worker,omitempty"`

	// Labels from the worker config
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}
