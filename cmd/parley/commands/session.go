package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"parley/internal/domain"
)

// startCmd reuses an established session, accepts a waiting bootstrap or
// initiates a new handshake, in that order.
func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := requireRelay(); err != nil {
				return err
			}
			ctx, cancel := relayContext(cmd)
			defer cancel()

			peer := domain.AccountID(args[0])
			res, err := appCtx.Sessions.Select(ctx, passphrase, peer)
			if err != nil {
				return fmt.Errorf("starting session with %q: %w", peer, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s with %s: %s (%s)\n", res.Session.ID, peer, res.Action, res.Session.State)
			if a := res.Accept; a != nil {
				if a.DecryptErr != nil {
					fmt.Fprintf(out, "Greeting could not be opened: %v\n", a.DecryptErr)
				} else {
					fmt.Fprintf(out, "[%s] %s\n", peer, a.Plaintext)
				}
			}
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			ctx, cancel := relayContext(cmd)
			defer cancel()

			if err := appCtx.Sessions.Send(ctx, domain.AccountID(args[0]), []byte(args[1])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
}

func recvCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			ctx, cancel := relayContext(cmd)
			defer cancel()

			msgs, err := appCtx.Sessions.Receive(ctx, limit)
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				if m.Err != nil {
					fmt.Fprintf(out, "[%s] <unreadable: %v>\n", m.From, m.Err)
					continue
				}
				fmt.Fprintf(out, "[%s] %s\n", m.From, m.Plaintext)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages to fetch")
	return cmd
}

func endCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <peer>",
		Short: "End your side of the session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			ctx, cancel := relayContext(cmd)
			defer cancel()

			if err := appCtx.Sessions.End(ctx, domain.AccountID(args[0])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session ended")
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List local sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := appCtx.Sessions.Sessions()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PEER\tROLE\tSTATE\tCREATED\tID")
			for _, s := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Peer, s.Role, s.State, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.ID)
			}
			return tw.Flush()
		},
	}
}
