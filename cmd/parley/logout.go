// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/parley-im/parley/lib/credstore"
	"github.com/parley-im/parley/messaging"
)

// runLogout invalidates the stored access token on the homeserver and
// removes the local session file. The local file is cleared even when
// the homeserver is unreachable; the token then expires server-side on
// its own schedule.
func runLogout(args []string) error {
	flags := pflag.NewFlagSet("logout", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	credentials, err := credstore.Load()
	if errors.Is(err, credstore.ErrNoCredentials) {
		fmt.Fprintln(os.Stderr, "Not logged in")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	remoteErr := invalidateToken(ctx, credentials)

	if err := credstore.Clear(); err != nil {
		return fmt.Errorf("clearing session file: %w", err)
	}

	if remoteErr != nil {
		fmt.Fprintln(os.Stderr, "Local session cleared")
		return fmt.Errorf("homeserver logout: %w", remoteErr)
	}
	fmt.Fprintf(os.Stderr, "Logged out %s\n", credentials.UserID)
	return nil
}

func invalidateToken(ctx context.Context, credentials *credstore.Credentials) error {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: credentials.Homeserver,
	})
	if err != nil {
		return err
	}

	session, err := client.SessionFromToken(credentials.UserID, credentials.AccessToken)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.Logout(ctx)
}
