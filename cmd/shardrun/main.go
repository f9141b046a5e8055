package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aryankumar/shardrun/internal/cli"
	"github.com/aryankumar/shardrun/internal/util"
)

func main() {
	// First signal drains the run, second exits
	ctx := util.SetupSignalHandler(context.Background())

	if err := cli.Execute(ctx); err != nil {
		// Failed tests are already in the report
		if !errors.Is(err, util.ErrTestsFailed) {
			slog.Error("command failed", "error", err)
		}
		fmt.Fprintln(os.Stderr, util.FriendlyError(err))
		os.Exit(1)
	}
}
