package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/videocut/internal/adapter/runner"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/spf13/cobra"
)

// newWorkerCmd runs a single job read from stdin. It is started by the
// process runner and is not meant to be invoked by hand.
func newWorkerCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Execute one job from stdin, reporting events on stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout is the result channel.
			logger.SetOutput(os.Stderr)

			cfg, err := loadConfig(f)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			d, err := prepareDirs(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runner.ServeWorker(ctx, os.Stdin, os.Stdout, newExecutor(cfg, d), cfg.HeartbeatInterval)
		},
	}
}
