// Package config loads .shardrun.yaml and kubeconfig files.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/aryankumar/shardrun/internal/util"
)

const (
	defaultConfigName = ".shardrun"
	defaultConfigDir  = ".shardrun"

	// EnvPrefix prefixes every environment override, as in SHARDRUN_DEFAULTS_BACKEND
	EnvPrefix = "SHARDRUN"
)

// Default values applied to keys the file leaves unset
const (
	DefaultMaxRetries           = 3
	DefaultTimeout              = 30 * time.Minute
	DefaultOutputFormat         = "table"
	DefaultUnresponsiveExitCode = 75
	DefaultNamespace            = "default"
)

// Manager handles the shardrun configuration file
type Manager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
}

// NewManager creates a configuration manager. An empty path searches
// ~/.shardrun/ and ~ for .shardrun.yaml.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		viper:      viper.New(),
		config:     &Config{},
	}
}

// Load reads the configuration file. A missing file yields the defaults.
func (m *Manager) Load() (*Config, error) {
	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		m.viper.AddConfigPath(filepath.Join(home, defaultConfigDir))
		m.viper.AddConfigPath(home)
		m.viper.SetConfigName(defaultConfigName)
		m.viper.SetConfigType("yaml")
	}

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()
	m.setDefaults()

	m.config = &Config{}

	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := m.loadWorkers(); err != nil {
		return nil, err
	}

	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	return m.config, nil
}

// Save writes the current configuration, defaulting to
// ~/.shardrun/config.yaml
func (m *Manager) Save() error {
	if m.configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		m.configPath = filepath.Join(home, defaultConfigDir, "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := m.viper.WriteConfigAs(m.configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// GetWorkerConfig returns the configuration of one worker
func (m *Manager) GetWorkerConfig(name string) (WorkerConfig, bool) {
	w, ok := m.config.Workers[name]
	return w, ok
}

// SetWorkerConfig adds or replaces a worker
func (m *Manager) SetWorkerConfig(name string, w WorkerConfig) {
	if m.config.Workers == nil {
		m.config.Workers = make(map[string]WorkerConfig)
	}
	m.config.Workers[name] = w
	m.viper.Set("workers", m.config.Workers)
}

// RemoveWorkerConfig removes a worker
func (m *Manager) RemoveWorkerConfig(name string) {
	if m.config.Workers == nil {
		return
	}
	delete(m.config.Workers, name)
	m.viper.Set("workers", m.config.Workers)
}

// GetEnabledWorkers returns the sorted names of enabled workers
func (m *Manager) GetEnabledWorkers() []string {
	return m.GetWorkersByLabel(nil)
}

// GetWorkersByLabel returns the sorted names of enabled workers carrying
// every label in labels
func (m *Manager) GetWorkersByLabel(labels map[string]string) []string {
	matching := make([]string, 0)
	for name, w := range m.config.Workers {
		if w.Enabled && matchesLabels(w.Labels, labels) {
			matching = append(matching, name)
		}
	}
	slices.Sort(matching)
	return matching
}

// BackendFor returns the backend a worker runs on
func (m *Manager) BackendFor(name string) string {
	if w, ok := m.config.Workers[name]; ok && w.Backend != "" {
		return w.Backend
	}
	return m.config.Defaults.Backend
}

// KubeContexts maps every configured kube worker to its kubeconfig context
func (m *Manager) KubeContexts() map[string]string {
	contexts := make(map[string]string)
	for name, w := range m.config.Workers {
		if m.BackendFor(name) != BackendKube {
			continue
		}
		contexts[name] = w.Context
		if w.Context == "" {
			contexts[name] = name
		}
	}
	return contexts
}

// setDefaults registers the value of every key the file may leave unset.
// Registered keys can also be overridden from the environment.
func (m *Manager) setDefaults() {
	m.viper.SetDefault("defaults.backend", BackendLocal)
	m.viper.SetDefault("defaults.maxRetries", DefaultMaxRetries)
	m.viper.SetDefault("defaults.timeout", DefaultTimeout)
	m.viper.SetDefault("defaults.outputFormat", DefaultOutputFormat)
	m.viper.SetDefault("defaults.noColor", false)
	m.viper.SetDefault("defaults.failOnNoRunners", true)
	m.viper.SetDefault("defaults.unresponsiveExitCode", DefaultUnresponsiveExitCode)
	m.viper.SetDefault("defaults.namespace", DefaultNamespace)
	m.viper.SetDefault("defaults.image", "")
	m.viper.SetDefault("defaults.cleanupCommand", "")
}

// loadWorkers decodes the workers section again with its original key
// case, which viper folds to lower case. Worker names and env var names
// are case-sensitive.
func (m *Manager) loadWorkers() error {
	path := m.viper.ConfigFileUsed()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw struct {
		Workers map[string]WorkerConfig `yaml:"workers"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse workers: %w", err)
	}
	m.config.Workers = raw.Workers
	return nil
}

// Validate checks backend names and numeric ranges
func (c *Config) Validate() error {
	if err := validBackend(c.Defaults.Backend); err != nil {
		return fmt.Errorf("defaults.backend: %w", err)
	}
	if c.Defaults.MaxRetries < 0 {
		return util.NewValidationError("defaults.maxRetries", c.Defaults.MaxRetries, "must not be negative")
	}
	if c.Defaults.Timeout < 0 {
		return util.NewValidationError("defaults.timeout", c.Defaults.Timeout, "must not be negative")
	}
	for _, name := range slices.Sorted(maps.Keys(c.Workers)) {
		if b := c.Workers[name].Backend; b != "" {
			if err := validBackend(b); err != nil {
				return fmt.Errorf("workers.%s.backend: %w", name, err)
			}
		}
	}
	return nil
}

func validBackend(name string) error {
	switch name {
	case BackendLocal, BackendKube:
		return nil
	}
	return fmt.Errorf("unknown backend %q (want %s or %s)", name, BackendLocal, BackendKube)
}

// matchesLabels checks if worker labels contain the required labels
func matchesLabels(workerLabels, required map[string]string) bool {
	for key, value := range required {
		if v, ok := workerLabels[key]; !ok || v != value {
			return false
		}
	}
	return true
}

// MergeContextInfo annotates kubeconfig contexts with the worker that uses
// each one and its labels
func (m *Manager) MergeContextInfo(infos []ContextInfo) []ContextInfo {
	contexts := m.KubeContexts()
	for name, ctx := range contexts {
		for i := range infos {
			if infos[i].Context == ctx {
				infos[i].Worker = name
				infos[i].Labels = m.config.Workers[name].Labels
			}
		}
	}
	return infos
}
