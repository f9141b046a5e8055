package workers

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/shardrun/internal/cli/session"
	"github.com/aryankumar/shardrun/internal/config"
)

func newListCmd() *cobra.Command {
	var (
		showLabels  bool
		allContexts bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured workers",
		Long: `List the workers from the config file with their backend and target.

Kube workers are matched against the kubeconfig contexts to show the API
server they run on. With --all-contexts, kubeconfig contexts that no worker
uses are listed too, as disabled kube workers.`,
		Aliases: []string{"ls"},
		Example: `  # List workers
  shardrun workers list

  # Show labels and every kubeconfig context
  shardrun workers list --show-labels --all-contexts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, showLabels, allContexts)
		},
	}

	cmd.Flags().BoolVar(&showLabels, "show-labels", false, "show worker labels from the config file")
	cmd.Flags().BoolVar(&allContexts, "all-contexts", false, "also list kubeconfig contexts no worker uses")

	return cmd
}

func runList(cmd *cobra.Command, showLabels, allContexts bool) error {
	s, err := session.New()
	if err != nil {
		return err
	}

	list := WorkerList{ShowLabels: showLabels}
	cfg := s.Config.GetConfig()
	for _, name := range slices.Sorted(maps.Keys(cfg.Workers)) {
		wc := cfg.Workers[name]
		list.Workers = append(list.Workers, WorkerInfo{
			Name:    name,
			Backend: s.Config.BackendFor(name),
			Enabled: wc.Enabled,
			Target:  wc.ProbeCommand,
			Labels:  wc.Labels,
		})
	}

	kubeContexts := s.Config.KubeContexts()
	if len(kubeContexts) > 0 || allContexts {
		loader := config.NewKubeconfigLoader(viper.GetString("kubeconfig"))
		slog.Debug("using kubeconfig paths", "paths", strings.Join(loader.GetPaths(), ", "))

		contexts, err := loader.ListContexts()
		if err != nil {
			slog.Warn("failed to load kubeconfig contexts", "error", err)
		} else {
			list.merge(s.Config.MergeContextInfo(contexts), kubeContexts, allContexts)
		}
	}

	if len(list.Workers) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No workers configured")
		return nil
	}

	formatter, err := s.Formatter(cmd, false)
	if err != nil {
		return err
	}
	return formatter.Format(cmd.OutOrStdout(), list)
}

// WorkerInfo is one row of the worker list
type WorkerInfo struct {
	Name    string            `json:"name" yaml:"name"`
	Backend string            `json:"backend" yaml:"backend"`
	Enabled bool              `json:"enabled" yaml:"enabled"`
	Context string            `json:"context,omitempty" yaml:"context,omitempty"`
	Server  string            `json:"server,omitempty" yaml:"server,omitempty"`
	Target  string            `json:"target,omitempty" yaml:"target,omitempty"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// WorkerList renders as a table of workers
type WorkerList struct {
	Workers    []WorkerInfo `json:"workers" yaml:"workers"`
	ShowLabels bool         `json:"-" yaml:"-"`
}

// merge fills in the cluster of every kube worker and, with all set, adds
// the contexts no worker uses
func (l *WorkerList) merge(contexts []config.ContextInfo, kubeContexts map[string]string, all bool) {
	byContext := make(map[string]config.ContextInfo, len(contexts))
	for _, c := range contexts {
		byContext[c.Context] = c
	}

	for i, w := range l.Workers {
		ctx, ok := kubeContexts[w.Name]
		if !ok {
			continue
		}
		l.Workers[i].Context = ctx
		l.Workers[i].Target = ""
		if c, found := byContext[ctx]; found {
			l.Workers[i].Server = c.Server
		}
	}

	if !all {
		return
	}
	for _, c := range contexts {
		if c.Worker != "" {
			continue
		}
		l.Workers = append(l.Workers, WorkerInfo{
			Name:    c.Context,
			Backend: config.BackendKube,
			Context: c.Context,
			Server:  c.Server,
		})
	}
}

// Headers implements output.Tabular
func (l WorkerList) Headers() []string {
	headers := []string{"WORKER", "BACKEND", "ENABLED", "TARGET"}
	if l.ShowLabels {
		headers = append(headers, "LABELS")
	}
	return headers
}

// Rows implements output.Tabular
func (l WorkerList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Workers))
	for _, w := range l.Workers {
		target := w.Target
		if w.Backend == config.BackendKube {
			target = w.Context
			if w.Server != "" {
				target = fmt.Sprintf("%s (%s)", w.Context, w.Server)
			}
		}
		if target == "" {
			target = "-"
		}

		row := []string{w.Name, w.Backend, strconv.FormatBool(w.Enabled), target}
		if l.ShowLabels {
			row = append(row, session.FormatLabels(w.Labels))
		}
		rows = append(rows, row)
	}
	return rows
}
