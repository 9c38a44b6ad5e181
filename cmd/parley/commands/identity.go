package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"parley/internal/protocol/keybundle"
)

func initCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and an initial prekey pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if appCtx.IDStore.Exists() {
				return fmt.Errorf("identity already exists in %s", cfg.Home)
			}
			_, fp, err := appCtx.Identity.GenerateIdentity(passphrase)
			if err != nil {
				return err
			}
			if _, err := appCtx.Prekeys.GenerateAndStorePrekeys(passphrase, count); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity created.\nFingerprint: %s\n", fp)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "prekeys", keybundle.DefaultPoolSize, "number of one-time prekeys to generate")
	return cmd
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			fp, err := appCtx.Identity.FingerprintIdentity(passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", fp)
			return nil
		},
	}
}
