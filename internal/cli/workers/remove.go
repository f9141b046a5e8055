package workers

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardrun/internal/cli/session"
	"github.com/aryankumar/shardrun/internal/util"
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove NAME",
		Short:   "Remove a worker from the config file",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0])
		},
	}

	return cmd
}

func runRemove(cmd *cobra.Command, name string) error {
	s, err := session.New()
	if err != nil {
		return err
	}

	if _, ok := s.Config.GetWorkerConfig(name); !ok {
		return fmt.Errorf("%w: %s", util.ErrWorkerNotFound, name)
	}
	s.Config.RemoveWorkerConfig(name)
	if err := s.Config.Save(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Worker %q removed\n", name)
	return nil
}
