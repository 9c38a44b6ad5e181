package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"parley/internal/app"
	"parley/internal/config"
	"parley/internal/domain"
	"parley/internal/logging"
)

var (
	envFile    string
	passphrase string
	cfg        *config.Client
	appCtx     *app.Wire
	log        *logrus.Logger

	// flag overrides
	home     string
	relayURL string
	account  string
	token    string
	logLevel string
)

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRoot().ExecuteContext(ctx)
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "End-to-end encrypted messaging over an untrusted relay",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.LoadClient(envFile); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("home") {
				cfg.Home = home
			}
			if flags.Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if flags.Changed("account") {
				cfg.Account = account
			}
			if flags.Changed("token") {
				cfg.Token = token
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}

			if log, err = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}

			appCtx, err = app.NewWire(app.Config{
				Home:     cfg.Home,
				RelayURL: cfg.RelayURL,
				Account:  domain.AccountID(cfg.Account),
				Token:    cfg.Token,
				HTTP:     &http.Client{},
				Log:      log,
			})
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "dotenv file to load before reading PARLEY_* variables")
	pf.StringVar(&home, "home", "", "config dir (default ~/.parley)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting your identity")
	pf.StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	pf.StringVar(&account, "account", "", "your account on the relay")
	pf.StringVar(&token, "token", "", "relay bearer token issued for your account")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		maintainCmd(),
		startCmd(),
		sendCmd(),
		recvCmd(),
		endCmd(),
		sessionsCmd(),
		peersCmd(),
		historyCmd(),
		watchCmd(),
	)
	return root
}

// requirePassphrase fails early with a flag hint.
func requirePassphrase() error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	return nil
}

// requireRelay checks the settings every relay-bound command needs.
func requireRelay() error {
	if cfg.RelayURL == "" {
		return fmt.Errorf("no relay configured. use --relay")
	}
	if cfg.Account == "" {
		return fmt.Errorf("no account configured. use --account")
	}
	if cfg.Token == "" {
		return fmt.Errorf("no token configured. use --token")
	}
	return nil
}

// relayContext bounds a relay-bound command by the configured timeout.
func relayContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), cfg.Timeout)
}
