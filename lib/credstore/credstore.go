// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the logged-in Matrix session between runs.
//
// Credentials live in a single JSON file: the access token, the user it
// belongs to, and the homeserver that issued it. The file is written
// with 0600 permissions inside a 0700 directory. The access token is a
// bearer credential; anyone who can read the file can act as the user.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parley-im/parley/lib/ref"
)

// ErrNoCredentials is returned by Load when no session file exists.
// The caller should prompt for login.
var ErrNoCredentials = errors.New("credstore: no stored credentials")

// Credentials is the stored session state.
type Credentials struct {
	// Homeserver is the base URL the token was issued by. A token is
	// only valid against its issuing homeserver.
	Homeserver string `json:"homeserver"`

	// UserID is the fully-qualified Matrix user ID.
	UserID ref.UserID `json:"user_id"`

	// AccessToken is the bearer token for the client-server API.
	AccessToken string `json:"access_token"`

	// DeviceID identifies this client's device on the homeserver.
	DeviceID string `json:"device_id,omitempty"`
}

// FilePath returns the session file location. The PARLEY_SESSION_FILE
// environment variable overrides the default of
// $XDG_CONFIG_HOME/parley/session.json (falling back to
// ~/.config/parley/session.json).
func FilePath() (string, error) {
	if override := os.Getenv("PARLEY_SESSION_FILE"); override != "" {
		return override, nil
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("credstore: resolving home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "parley", "session.json"), nil
}

// Load reads the stored credentials. Returns ErrNoCredentials if the
// session file does not exist.
func Load() (*Credentials, error) {
	path, err := FilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", path, err)
	}

	var credentials Credentials
	if err := json.Unmarshal(data, &credentials); err != nil {
		return nil, fmt.Errorf("credstore: parsing %s: %w", path, err)
	}
	if credentials.Homeserver == "" || credentials.AccessToken == "" || credentials.UserID.IsZero() {
		return nil, fmt.Errorf("credstore: %s is missing required fields", path)
	}
	return &credentials, nil
}

// Save writes the credentials to the session file, creating the parent
// directory if needed. The file is written atomically via a temp file
// rename so a crash mid-write cannot leave a truncated session.
func Save(credentials *Credentials) error {
	if credentials.Homeserver == "" || credentials.AccessToken == "" || credentials.UserID.IsZero() {
		return fmt.Errorf("credstore: refusing to save incomplete credentials")
	}

	path, err := FilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("credstore: creating %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(credentials, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encoding credentials: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("credstore: replacing %s: %w", path, err)
	}
	return nil
}

// Clear removes the session file. Removing a file that does not exist
// is not an error.
func Clear() error {
	path, err := FilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credstore: removing %s: %w", path, err)
	}
	return nil
}
