// Package session holds what every shardrun command needs: the loaded
// configuration, the selected workers and the backends that serve them.
package session

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/shardrun/internal/config"
	"github.com/aryankumar/shardrun/internal/output"
	"github.com/aryankumar/shardrun/internal/util"
)

// Session is the per-command view of configuration and flags
type Session struct {
	Config *config.Manager
	Logger *slog.Logger
}

// New loads the configuration file named by --config
func New() (*Session, error) {
	manager := config.NewManager(viper.GetString("config"))
	if _, err := manager.Load(); err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrInvalidConfig, err)
	}
	return &Session{Config: manager, Logger: slog.Default()}, nil
}

// Defaults returns the defaults section of the configuration
func (s *Session) Defaults() config.DefaultsConfig {
	return s.Config.GetConfig().Defaults
}

// Formatter builds the formatter selected by the command's --output flag,
// the persistent flag or the config file, in that order
func (s *Session) Formatter(cmd *cobra.Command, wide bool) (output.Formatter, error) {
	d := s.Defaults()
	return NewFormatter(cmd, d.OutputFormat, d.NoColor, wide)
}

// NoColor reports whether --no-color or the config file disable color
func (s *Session) NoColor() bool {
	return s.Defaults().NoColor || viper.GetBool("no-color")
}

// NewFormatter builds the formatter selected by --output, falling back to
// fallback. Commands that run without a config file use it directly.
func NewFormatter(cmd *cobra.Command, fallback string, noColor, wide bool) (output.Formatter, error) {
	name := ""
	if f := cmd.Flags().Lookup("output"); f != nil {
		name = f.Value.String()
	}
	if name == "" {
		name = viper.GetString("output")
	}
	if name == "" {
		name = fallback
	}

	format, err := output.ParseFormat(name)
	if err != nil {
		return nil, err
	}

	noColor = noColor || viper.GetBool("no-color")
	return output.NewFormatter(format, output.WithNoColor(noColor), output.WithWide(wide)), nil
}

// TestTimeout is the per-attempt timeout: --timeout when set, otherwise
// the configured default
func (s *Session) TestTimeout(cmd *cobra.Command) time.Duration {
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		return viper.GetDuration("timeout")
	}
	return s.Defaults().Timeout
}

// SelectWorkers returns the workers named with --workers, or else every
// enabled worker matching selector
func (s *Session) SelectWorkers(selector map[string]string) ([]string, error) {
	if names := viper.GetStringSlice("workers"); len(names) > 0 {
		out := make([]string, 0, len(names))
		seen := make(map[string]bool)
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
		return out, nil
	}

	workers := s.Config.GetWorkersByLabel(selector)
	if len(workers) == 0 {
		return nil, fmt.Errorf("%w: no enabled workers (pass --workers or configure workers in the config file)", util.ErrWorkerNotFound)
	}
	return workers, nil
}

// ParseSelector parses a key=value[,key=value] label selector
func ParseSelector(s string) (map[string]string, error) {
	labels := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid selector %q: want key=value", pair)
		}
		labels[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return labels, nil
}

// FormatLabels renders labels as sorted key=value pairs
func FormatLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		pairs = append(pairs, k+"="+labels[k])
	}
	return strings.Join(pairs, ",")
}
