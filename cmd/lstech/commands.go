package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jrsteele09/go-lstech-balance/internal/config"
	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/internal/logging"
	"github.com/jrsteele09/go-lstech-balance/schedule"
	"github.com/jrsteele09/go-lstech-balance/token"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Poll weight readings from an LSTech smart scale account",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			logging.New(cfg)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	cmd.AddCommand(
		newSendCodeCommand(opts),
		newLoginCommand(opts),
		newQuickLoginCommand(opts),
		newPollCommand(opts),
		newStatusCommand(opts),
	)
	return cmd
}

func newSendCodeCommand(opts *rootOptions) *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "send-code",
		Short: "Text a login code to a phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAccount(cmd.Context(), opts.cfg, phone)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.SendVerificationCode(cmd.Context(), phone); err != nil {
				return fmt.Errorf("send-code: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "verification code sent to %s\n", phone)
			return nil
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "11 digit phone number")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var account, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with an email address or phone number and a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("LSTECH_PASSWORD")
			}

			a, err := openAccount(cmd.Context(), opts.cfg, account)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Login(cmd.Context(), account, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			s := a.engine.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (uid %s, member %s)\n", s.Nickname, s.UID, s.MemberID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "email address or 11 digit phone number")
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to $LSTECH_PASSWORD)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newQuickLoginCommand(opts *rootOptions) *cobra.Command {
	var phone, code string

	cmd := &cobra.Command{
		Use:   "quick-login",
		Short: "Log in with a texted code; without --code a new code is sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAccount(cmd.Context(), opts.cfg, phone)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.engine.QuickLogin(cmd.Context(), phone, code)
			if ierrors.Is(err, token.ErrCodeResent) {
				fmt.Fprintf(cmd.OutOrStdout(), "verification code sent to %s, run again with --code\n", phone)
				return nil
			}
			if err != nil {
				return fmt.Errorf("quick-login: %w", err)
			}
			s := a.engine.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (uid %s, member %s)\n", s.Nickname, s.UID, s.MemberID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "11 digit phone number")
	cmd.Flags().StringVar(&code, "code", "", "verification code")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAccount(cmd.Context(), opts.cfg, account)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.restore(cmd.Context()); err != nil && !ierrors.Is(err, ierrors.ErrNotFound) {
				return err
			}

			out := cmd.OutOrStdout()
			s := a.engine.Session()
			fmt.Fprintf(out, "account:          %s\n", account)
			fmt.Fprintf(out, "state:            %s\n", a.engine.State())
			if s.IsEmpty() {
				return nil
			}
			fmt.Fprintf(out, "nickname:         %s\n", s.Nickname)
			fmt.Fprintf(out, "uid:              %s\n", s.UID)
			fmt.Fprintf(out, "member:           %s\n", s.MemberID)
			fmt.Fprintf(out, "access expires:   %s\n", s.AccessTokenExpiresAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "refresh expires:  %s\n", s.RefreshTokenExpiresAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "last login:       %s\n", s.LastLoginAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "last refresh:     %s\n", s.LastTokenRefresh.Local().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "account the session was stored for")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newPollCommand(opts *rootOptions) *cobra.Command {
	var accounts []string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll every account on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(accounts) == 0 {
				accounts = opts.cfg.GetAccounts()
			}
			if len(accounts) == 0 {
				return errors.New("poll: no accounts, pass --account or set poll.accounts")
			}
			return guarded(func() error {
				return poll(cmd.Context(), opts, accounts)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&accounts, "account", "a", nil, "account to poll, repeatable")
	return cmd
}

func poll(parent context.Context, opts *rootOptions, accounts []string) error {
	displayAppname(appName)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		runners []*account
		tickers []*schedule.Ticker
	)
	defer func() {
		for _, a := range runners {
			a.Close()
		}
	}()

	for _, name := range accounts {
		a, err := openAccount(ctx, opts.cfg, name)
		if err != nil {
			return err
		}
		runners = append(runners, a)

		if err := a.restore(ctx); err != nil {
			if !ierrors.Is(err, ierrors.ErrNotFound) {
				return err
			}
			log.Warn().Str("account", name).Msgf("no stored session, run %s login first", appName)
		}
		tickers = append(tickers, schedule.New(a.engine.Trigger, opts.cfg.GetScanInterval(), schedule.WithImmediate()))
	}

	if opts.configFile != "" {
		config.Watch(opts.cfg, func(c config.Config) {
			for _, t := range tickers {
				t.SetInterval(c.GetScanInterval())
			}
		})
	}

	var wg sync.WaitGroup
	for _, t := range tickers {
		wg.Add(1)
		go func(t *schedule.Ticker) {
			defer wg.Done()
			t.Run(ctx)
		}(t)
	}
	log.Info().Strs("accounts", accounts).Dur("interval", opts.cfg.GetScanInterval()).Msg("polling started")

	waitForStopSignal(ctx)
	cancel()
	return shutdown(&wg, runners)
}

func waitForStopSignal(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case <-ctx.Done():
	}
}

// shutdown lets in-flight cycles finish, bounded by a grace period.
func shutdown(tickers *sync.WaitGroup, runners []*account) error {
	done := make(chan struct{})
	go func() {
		tickers.Wait()
		for _, a := range runners {
			a.engine.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("polling stopped")
		return nil
	case <-time.After(15 * time.Second):
		return errors.New("shutdown: cycles still running after 15s")
	}
}
