package workers

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardrun/internal/cli/session"
	"github.com/aryankumar/shardrun/internal/config"
	"github.com/aryankumar/shardrun/internal/util"
)

func newAddCmd() *cobra.Command {
	var (
		wc       config.WorkerConfig
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add or replace a worker in the config file",
		Long: `Add a worker to the config file, or replace the worker of the same name.

Local workers run test commands on this machine; set --probe-command to a
command that exits 0 while the worker's device is usable. Kube workers run
test pods on the cluster of --context (default: the worker name).`,
		Example: `  # Add an emulator with a liveness probe
  shardrun workers add emulator-5554 --probe-command "adb -s emulator-5554 get-state" \
    --env ANDROID_SERIAL=emulator-5554 --label abi=x86

  # Add a cluster worker
  shardrun workers add dut-west --backend kube --context prod-west`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wc.Enabled = !disabled
			return runAdd(cmd, args[0], wc)
		},
	}

	cmd.Flags().StringVar(&wc.Backend, "backend", "", "backend (local, kube); default from the config defaults")
	cmd.Flags().StringVar(&wc.Context, "context", "", "kubeconfig context of a kube worker")
	cmd.Flags().StringVar(&wc.ProbeCommand, "probe-command", "", "liveness command of a local worker")
	cmd.Flags().StringToStringVar(&wc.Labels, "label", nil, "worker labels (key=value)")
	cmd.Flags().StringToStringVar(&wc.Env, "env", nil, "environment for the worker's tests (KEY=value)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "add the worker disabled")

	return cmd
}

func runAdd(cmd *cobra.Command, name string, wc config.WorkerConfig) error {
	s, err := session.New()
	if err != nil {
		return err
	}

	_, replaced := s.Config.GetWorkerConfig(name)
	s.Config.SetWorkerConfig(name, wc)
	if err := s.Config.GetConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", util.ErrInvalidConfig, err)
	}
	if err := s.Config.Save(); err != nil {
		return err
	}

	slog.Debug("saved worker", "worker", name, "backend", s.Config.BackendFor(name), "replaced", replaced)

	verb := "added"
	if replaced {
		verb = "replaced"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Worker %q %s\n", name, verb)
	return nil
}
