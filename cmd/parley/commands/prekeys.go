package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"parley/internal/domain"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Publish your prekey bundle to the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := requireRelay(); err != nil {
				return err
			}
			ctx, cancel := relayContext(cmd)
			defer cancel()

			if err := appCtx.Prekeys.Register(ctx, passphrase, domain.AccountID(cfg.Account)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Registered prekeys with relay")
			return nil
		},
	}
}

func maintainCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Rotate the signed prekey and replenish one-time prekeys when the relay advises it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := requireRelay(); err != nil {
				return err
			}
			ctx, cancel := relayContext(cmd)
			defer cancel()

			report, err := appCtx.Prekeys.Maintain(ctx, passphrase, force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !report.Rotated && report.Added == 0 {
				fmt.Fprintln(out, "Prekeys are up to date")
				return nil
			}
			if report.Rotated {
				fmt.Fprintln(out, "Signed prekey rotated")
			}
			if report.Added > 0 {
				fmt.Fprintf(out, "Added %d one-time prekeys\n", report.Added)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rotate and replenish regardless of advice")
	return cmd
}
