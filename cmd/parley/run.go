// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/parley-im/parley/engine"
	"github.com/parley-im/parley/lib/config"
	"github.com/parley-im/parley/lib/credstore"
	"github.com/parley-im/parley/lib/eventstore"
	"github.com/parley-im/parley/lib/mediacache"
	"github.com/parley-im/parley/messaging"
)

// startRetryInterval paces reattempts after a transient initial sync
// failure (homeserver down, network offline).
const startRetryInterval = 5 * time.Second

// runSync loads the stored session, starts the sync engine, and prints
// room activity to stdout until interrupted.
func runSync(args []string) error {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file path (default: $PARLEY_CONFIG, then built-in defaults)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	credentials, err := credstore.Load()
	if errors.Is(err, credstore.ErrNoCredentials) {
		return fmt.Errorf("not logged in; run 'parley login <username> --homeserver <url>' first")
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Homeserver == "" {
		cfg.Homeserver = credentials.Homeserver
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	session, err := client.SessionFromToken(credentials.UserID, credentials.AccessToken)
	if err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	var store eventstore.Store
	if cfg.Store.Persist {
		sqliteStore, err := eventstore.OpenSQLite(eventstore.SQLiteConfig{
			Path:   cfg.Store.Path,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	media, err := mediacache.New(mediacache.Config{
		Dir:         cfg.Paths.Media,
		Downloader:  session,
		MaxFileSize: cfg.Media.MaxFileSize,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating media cache: %w", err)
	}

	eng := engine.New(engine.Config{
		Store:            store,
		Media:            media,
		Logger:           logger,
		SyncTimeout:      cfg.Sync.Timeout,
		BackfillLimit:    cfg.Sync.BackfillLimit,
		KeepOnPart:       cfg.Cache.KeepOnPart,
		MaxEventsPerRoom: cfg.Cache.MaxEventsPerRoom,
	})
	defer eng.Close()

	observer := newConsoleObserver(os.Stdout)
	eng.Subscribe(observer)

	if err := eng.SetSession(session); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startEngine(ctx, eng, logger); err != nil {
		return err
	}
	logger.Info("session started", "user_id", credentials.UserID, "homeserver", cfg.Homeserver)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-observer.sessionEnded:
		// The homeserver revoked the token mid-session.
		if err := credstore.Clear(); err != nil {
			logger.Warn("clearing stale session file failed", "error", err)
		}
		return fmt.Errorf("session ended by homeserver; run 'parley login' again")
	}
	return nil
}

// startEngine retries the initial sync while the failure is transient.
// An auth failure clears the stored credentials and aborts.
func startEngine(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	for {
		err := eng.Start(ctx)
		if err == nil {
			return nil
		}

		var startErr *engine.StartError
		if errors.As(err, &startErr) && !startErr.Retryable {
			if clearErr := credstore.Clear(); clearErr != nil {
				logger.Warn("clearing rejected session file failed", "error", clearErr)
			}
			return fmt.Errorf("access token rejected; run 'parley login' again: %w", err)
		}

		logger.Warn("initial sync failed, retrying", "error", err, "retry_in", startRetryInterval)
		select {
		case <-time.After(startRetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// loadConfig resolves the configuration: an explicit path wins, then
// PARLEY_CONFIG, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("PARLEY_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}
