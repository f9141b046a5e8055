package cli

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/shardrun/internal/cli/pods"
	"github.com/aryankumar/shardrun/internal/cli/run"
	"github.com/aryankumar/shardrun/internal/cli/split"
	"github.com/aryankumar/shardrun/internal/cli/workers"
	"github.com/aryankumar/shardrun/internal/config"
)

// Execute runs the root command with the provided context
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shardrun",
		Short: "shardrun - run sharded test suites across a pool of workers",
		Long: `shardrun distributes the tests of a test list over a pool of workers
(local devices or Kubernetes clusters), retries the cases that failed on
other workers and drops workers whose device stops responding.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.shardrun/config.yaml)")
	rootCmd.PersistentFlags().String("kubeconfig", "", "path to kubeconfig file (default is $HOME/.kube/config)")
	rootCmd.PersistentFlags().StringSlice("workers", []string{}, "workers to use (comma-separated, empty means all enabled)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format (json, yaml, table)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output with debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().Duration("timeout", config.DefaultTimeout, "timeout for one attempt at a test")

	for _, name := range []string{"config", "kubeconfig", "workers", "output", "verbose", "no-color", "timeout"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(run.NewRunCmd())
	rootCmd.AddCommand(split.NewSplitCmd())
	rootCmd.AddCommand(workers.NewWorkersCmd())
	rootCmd.AddCommand(pods.NewPodsCmd())

	return rootCmd
}

// initConfig wires environment variables into flag lookups and sets up logging
func initConfig(cmd *cobra.Command) error {
	// SHARDRUN_NO_COLOR, SHARDRUN_WORKERS, ...
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	setupLogging(cmd)
	return nil
}

// setupLogging configures structured logging with slog
func setupLogging(cmd *cobra.Command) {
	verbose := viper.GetBool("verbose")
	noColor := viper.GetBool("no-color")

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if noColor {
		// JSON logs with --no-color
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	} else {
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	}

	slog.SetDefault(slog.New(handler))

	if verbose {
		slog.Debug("verbose logging enabled", "command", cmd.CommandPath())
		if cfg := viper.GetString("config"); cfg != "" {
			slog.Debug("using configuration", "file", cfg)
		}
	}
}

