package main

import (
	"fmt"

	"github.com/bnema/videocut/internal/service"
	"github.com/spf13/cobra"
)

func newTokenCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "token <owner>",
		Short: "Print a bearer token for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			authSvc, err := service.NewAuthService(cfg.AuthSecret)
			if err != nil {
				return err
			}
			token, err := authSvc.GenerateToken(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}
