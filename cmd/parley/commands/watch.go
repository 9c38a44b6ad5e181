package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/domain"
)

// watchCmd prints relay notifications until interrupted, reconnecting after
// a dropped stream. Notifications are advisory; recv remains the source of
// truth.
func watchCmd() *cobra.Command {
	var retry time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream session and message notifications from the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			for {
				err := appCtx.Relay.Listen(ctx, func(n domain.Notification) {
					fmt.Fprintf(out, "%s %s from %s %s\n", n.At.Local().Format(time.TimeOnly), n.Kind, n.From, n.SessionID)
				})
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return nil
				}
				if errors.Is(err, domain.ErrForbidden) {
					return err
				}
				log.WithError(err).Warnf("event stream dropped; reconnecting in %s", retry)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(retry):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&retry, "retry", 3*time.Second, "delay before reconnecting")
	return cmd
}
