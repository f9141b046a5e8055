package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// KubeconfigLoader loads and merges kubeconfig files for kube workers
type KubeconfigLoader struct {
	paths []string

	once   sync.Once
	config *api.Config
	err    error
}

// NewKubeconfigLoader creates a loader. Sources, in order:
// 1. Explicit path (--kubeconfig flag)
// 2. KUBECONFIG environment variable (list separated by os.PathListSeparator)
// 3. ~/.kube/config
func NewKubeconfigLoader(explicitPath string) *KubeconfigLoader {
	loader := &KubeconfigLoader{}

	if explicitPath != "" {
		if expanded, err := expandPath(explicitPath); err == nil {
			loader.paths = append(loader.paths, expanded)
		}
		return loader
	}

	if env := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); env != "" {
		for _, path := range filepath.SplitList(env) {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			if expanded, err := expandPath(path); err == nil {
				loader.paths = append(loader.paths, expanded)
			}
		}
	}

	if len(loader.paths) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			loader.paths = append(loader.paths, filepath.Join(home, clientcmd.RecommendedHomeDir, clientcmd.RecommendedFileName))
		}
	}

	return loader
}

// Load returns the merged kubeconfig. The files are read once.
func (l *KubeconfigLoader) Load() (*api.Config, error) {
	l.once.Do(func() {
		if len(l.paths) == 0 {
			l.err = fmt.Errorf("no kubeconfig paths available")
			return
		}

		rules := &clientcmd.ClientConfigLoadingRules{Precedence: l.paths}
		config, err := rules.Load()
		switch {
		case err != nil:
			l.err = fmt.Errorf("failed to load kubeconfig: %w", err)
		case config == nil:
			l.err = fmt.Errorf("kubeconfig is empty")
		default:
			l.config = config
		}
	})
	return l.config, l.err
}

// GetContexts returns all context names, sorted
func (l *KubeconfigLoader) GetContexts() ([]string, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	contexts := make([]string, 0, len(config.Contexts))
	for name := range config.Contexts {
		contexts = append(contexts, name)
	}
	slices.Sort(contexts)
	return contexts, nil
}

// ListContexts describes every context that names a known cluster, sorted
// by context name
func (l *KubeconfigLoader) ListContexts() ([]ContextInfo, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	infos := make([]ContextInfo, 0, len(config.Contexts))
	for name := range config.Contexts {
		info, err := contextInfo(config, name)
		if err != nil {
			continue
		}
		infos = append(infos, *info)
	}
	slices.SortFunc(infos, func(a, b ContextInfo) int {
		return strings.Compare(a.Context, b.Context)
	})
	return infos, nil
}

func contextInfo(config *api.Config, name string) (*ContextInfo, error) {
	ctx, ok := config.Contexts[name]
	if !ok || ctx == nil {
		return nil, fmt.Errorf("context %q not found in kubeconfig", name)
	}

	cluster := config.Clusters[ctx.Cluster]
	if cluster == nil {
		return nil, fmt.Errorf("cluster %q not found for context %q", ctx.Cluster, name)
	}

	info := &ContextInfo{
		Name:      ctx.Cluster,
		Context:   name,
		Server:    cluster.Server,
		Namespace: ctx.Namespace,
		User:      ctx.AuthInfo,
		Current:   name == config.CurrentContext,
	}
	if info.Namespace == "" {
		info.Namespace = "default"
	}
	return info, nil
}

// BuildClientConfig creates a rest.Config for a context. An empty name
// means the current context.
func (l *KubeconfigLoader) BuildClientConfig(contextName string) (*rest.Config, error) {
	if len(l.paths) == 0 {
		return nil, fmt.Errorf("no kubeconfig paths available")
	}

	rules := &clientcmd.ClientConfigLoadingRules{Precedence: l.paths}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create client config for context %q: %w", contextName, err)
	}
	return restConfig, nil
}

// GetPaths returns the kubeconfig paths being used
func (l *KubeconfigLoader) GetPaths() []string {
	return l.paths
}

// expandPath expands environment variables and a leading ~
func expandPath(path string) (string, error) {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	return filepath.Clean(path), nil
}
