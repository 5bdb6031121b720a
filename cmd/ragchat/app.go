package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/ragchat/internal/api"
	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/config"
	"github.com/ashureev/ragchat/internal/logging"
	"github.com/ashureev/ragchat/internal/metrics"
	"github.com/ashureev/ragchat/internal/session"
	"github.com/ashureev/ragchat/internal/store"
)

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	logSink *logging.AsyncWriter
	creds   *store.SQLiteCredentials
	client  *api.Client
	metrics *metrics.Metrics
}

func newApp(flags *rootFlags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.apiURL != "" {
		cfg.APIURL = strings.TrimRight(flags.apiURL, "/")
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sink, err := logging.Open(cfg.LogFile, 4096)
	if err != nil {
		return nil, err
	}
	// JSON logs go to the file; the terminal belongs to the UI.
	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, logSink: sink, metrics: metrics.New()}

	a.creds, err = store.NewSQLite(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	if err := a.creds.Ping(context.Background()); err != nil {
		a.Close()
		return nil, fmt.Errorf("credential store health check: %w", err)
	}

	client, err := api.New(cfg.APIURL, cfg.HTTPTimeout, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = client.WithObserver(a.metrics)

	logger.Debug("Configuration loaded", "api_url", cfg.APIURL, "db_path", cfg.DBPath)
	return a, nil
}

func (a *app) verifier() session.Verifier {
	return session.VerifierFunc(func(ctx context.Context, token string) error {
		res, err := a.client.Verify(ctx, token)
		if err != nil {
			return err
		}
		a.logger.Info("Credential verified", "user_id", res.UserID)
		return nil
	})
}

func (a *app) wsConfig() channel.WSConfig {
	return channel.WSConfig{
		URL:          a.cfg.WebSocketURL(),
		ReconnectMin: a.cfg.Reconnect.Min,
		ReconnectMax: a.cfg.Reconnect.Max,
		EventBuffer:  a.cfg.EventBuffer,
		Logger:       a.logger,
	}
}

// Close releases the credential store and flushes the log.
func (a *app) Close() {
	if a.creds != nil {
		if err := a.creds.Close(); err != nil {
			a.logger.Error("Failed to close credential store", "error", err)
		}
		a.creds = nil
	}
	if a.logSink != nil {
		if dropped := a.logSink.Dropped(); dropped > 0 {
			a.logger.Warn("Log records dropped under backpressure", "count", dropped)
		}
		_ = a.logSink.Close()
		a.logSink = nil
	}
}
