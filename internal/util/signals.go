package util

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler derives a context from parent that is cancelled on
// SIGINT or SIGTERM. Cancellation stops workers from claiming new tests but
// still lets the run tear down its runners. A second signal exits at once.
func SetupSignalHandler(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal, draining workers", "signal", sig.String())
			cancel()
		case <-parent.Done():
			signal.Stop(sigCh)
			cancel()
			return
		}

		sig := <-sigCh
		slog.Warn("received second shutdown signal, skipping teardown", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx
}
