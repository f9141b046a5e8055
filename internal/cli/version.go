package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardrun/internal/output"
	"github.com/aryankumar/shardrun/pkg/version"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Display detailed version information for shardrun",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd)
		},
	}

	return cmd
}

func runVersion(cmd *cobra.Command) error {
	info := version.Get()
	name, _ := cmd.Flags().GetString("output")

	if name == "" {
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	}

	format, err := output.ParseFormat(name)
	if err != nil {
		return err
	}
	noColor, _ := cmd.Flags().GetBool("no-color")
	return output.NewFormatter(format, output.WithNoColor(noColor)).Format(cmd.OutOrStdout(), info)
}
