package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"parley/internal/domain"
)

// peersCmd lists registered accounts, or prints one account's identity
// fingerprint for checking out of band.
func peersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers [account]",
		Short: "List accounts on the relay, or show one account's fingerprint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			ctx, cancel := relayContext(cmd)
			defer cancel()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				fp, err := appCtx.Sessions.PeerFingerprint(ctx, domain.AccountID(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", args[0], fp)
				return nil
			}

			peers, err := appCtx.Sessions.Peers(ctx)
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Fprintln(out, "no other accounts")
				return nil
			}
			for _, p := range peers {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <peer>",
		Short: "Show messages exchanged with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := domain.AccountID(args[0])
			entries, err := appCtx.Sessions.History(peer, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "no messages with %s\n", peer)
				return nil
			}
			for _, e := range entries {
				who := peer.String()
				if e.Direction == domain.DirectionOut {
					who = "me"
				}
				fmt.Fprintf(out, "%s [%s] %s\n", e.At.Local().Format("2006-01-02 15:04"), who, e.Body)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most this many recent messages (0 for all)")
	return cmd
}
