// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/parley-im/parley/lib/credstore"
	"github.com/parley-im/parley/lib/secret"
	"github.com/parley-im/parley/messaging"
)

// runLogin authenticates against the homeserver and saves the session
// to the credential store. Subsequent "parley run" invocations load it
// transparently.
func runLogin(args []string) error {
	flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
	homeserverURL := flags.String("homeserver", "", "Matrix homeserver URL (required)")
	passwordFile := flags.String("password-file", "", "path to a file containing the password, or - to prompt (default: prompt)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() < 1 {
		return fmt.Errorf("username is required\n\nUsage: parley login <username> --homeserver <url>")
	}
	username := flags.Arg(0)
	if flags.NArg() > 1 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(1))
	}
	if *homeserverURL == "" {
		return fmt.Errorf("--homeserver is required")
	}

	password, err := readLoginPassword(*passwordFile)
	if err != nil {
		return err
	}
	defer password.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: *homeserverURL,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	session, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer session.Close()

	// Verify the token works before saving it.
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("session verification failed: %w", err)
	}

	if err := credstore.Save(&credstore.Credentials{
		Homeserver:  client.HomeserverURL(),
		UserID:      userID,
		AccessToken: session.AccessToken(),
		DeviceID:    session.DeviceID(),
	}); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	path, _ := credstore.FilePath()
	fmt.Fprintf(os.Stderr, "Logged in as %s\n", userID)
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", path)
	return nil
}

// readLoginPassword reads the password from a file, or prompts on the
// terminal with echo disabled when no file is given.
func readLoginPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" && passwordFile != "-" {
		return readSecretFile(passwordFile)
	}

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return nil, fmt.Errorf("no terminal for interactive password prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}

// readSecretFile reads a secret from a file, stripping trailing
// newlines left by echo and printf pipelines.
func readSecretFile(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		secret.Zero(data)
		return nil, fmt.Errorf("password file %s is empty", path)
	}

	return secret.NewFromBytes(data)
}
