package main

import (
	"fmt"

	"github.com/bnema/videocut/internal/service"
	"github.com/spf13/cobra"
)

func newReapCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Delete stale working files once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			d, err := prepareDirs(cfg)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = store.Close() }()

			reaper := service.NewReaper(d.work, cfg.ReaperMaxAge, storeActivity{store: store})
			removed, err := reaper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s)\n", removed)
			return err
		},
	}
}
