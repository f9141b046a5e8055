// Package workers implements the workers command group: listing the
// configured worker pool and checking which workers are alive.
package workers

import (
	"github.com/spf13/cobra"
)

// NewWorkersCmd creates the workers parent command
func NewWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect the worker pool",
		Long: `Inspect the workers tests are distributed over.

Workers come from the config file. Local workers run test commands on this
machine; kube workers run test pods on the cluster of a kubeconfig context.`,
		Aliases: []string{"worker"},
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())

	return cmd
}
