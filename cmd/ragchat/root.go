package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/session"
	"github.com/ashureev/ragchat/internal/threads"
	"github.com/ashureev/ragchat/internal/tui"
)

type rootFlags struct {
	apiURL string
	dbPath string
}

// newRootCmd builds the command tree. The returned cleanup releases whatever
// the pre-run hook opened and must run after Execute.
func newRootCmd() (*cobra.Command, func()) {
	flags := &rootFlags{}
	var a *app

	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "Chat with your documents from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			var err error
			a, err = newApp(flags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), a)
		},
	}

	root.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "backend base URL (overrides RAGCHAT_API_URL)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "credential database path (overrides RAGCHAT_DB_PATH)")

	root.AddCommand(
		newLoginCmd(func() *app { return a }),
		newLogoutCmd(func() *app { return a }),
		newThreadsCmd(func() *app { return a }),
	)
	return root, func() {
		if a != nil {
			a.Close()
		}
	}
}

func runTUI(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New(a.verifier(), a.creds, channel.NewWSFactory(a.wsConfig()), a.logger)
	sess.Subscribe(func(s session.State) {
		a.logger.Info("Session state changed", "state", s.String())
	})
	defer func() {
		if ch := sess.Channel(); ch != nil {
			if err := ch.Close(); err != nil {
				a.logger.Warn("Failed to close channel", "error", err)
			}
		}
	}()

	model := tui.New(tui.Options{
		Session: sess,
		NewAPI: func(token string) threads.ThreadAPI {
			return a.client.WithToken(token)
		},
		Recorder:       a.metrics,
		ConnObserver:   a.metrics,
		GlamourStyle:   a.cfg.GlamourStyle,
		RequestTimeout: a.cfg.HTTPTimeout,
		Logger:         a.logger,
	})

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if a.cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(model, opts...)

	g, gctx := errgroup.WithContext(ctx)
	uiDone := make(chan struct{})
	g.Go(func() error {
		defer close(uiDone)
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			srvCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			go func() {
				<-uiDone
				cancel()
			}()
			a.logger.Info("Metrics listening", "addr", a.cfg.MetricsAddr)
			return a.metrics.Serve(srvCtx, a.cfg.MetricsAddr)
		})
	}

	a.logger.Info("Starting ragchat", "api_url", a.cfg.APIURL, "metrics", a.cfg.MetricsAddr != "")
	err := g.Wait()
	a.logger.Info("ragchat stopped", "error", err)
	return err
}
