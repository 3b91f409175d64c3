// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parley-im/parley/lib/ref"
)

func testCredentials() *Credentials {
	return &Credentials{
		Homeserver:  "https://matrix.example.org",
		UserID:      ref.MustParseUserID("@alice:example.org"),
		AccessToken: "syt_token",
		DeviceID:    "PARLEYDEV",
	}
}

func withSessionFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	t.Setenv("PARLEY_SESSION_FILE", path)
	return path
}

func TestLoadWithoutFile(t *testing.T) {
	withSessionFile(t)

	_, err := Load()
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := withSessionFile(t)

	if err := Save(testCredentials()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Homeserver != "https://matrix.example.org" {
		t.Errorf("homeserver = %q", loaded.Homeserver)
	}
	if loaded.UserID.String() != "@alice:example.org" {
		t.Errorf("user ID = %q", loaded.UserID)
	}
	if loaded.AccessToken != "syt_token" {
		t.Errorf("access token = %q", loaded.AccessToken)
	}
	if loaded.DeviceID != "PARLEYDEV" {
		t.Errorf("device ID = %q", loaded.DeviceID)
	}
}

func TestSaveRejectsIncomplete(t *testing.T) {
	withSessionFile(t)

	credentials := testCredentials()
	credentials.AccessToken = ""
	if err := Save(credentials); err == nil {
		t.Fatal("expected error saving credentials without token")
	}
}

func TestLoadRejectsIncomplete(t *testing.T) {
	path := withSessionFile(t)
	if err := os.WriteFile(path, []byte(`{"homeserver": "https://x.org"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error loading incomplete session file")
	}
}

func TestClear(t *testing.T) {
	path := withSessionFile(t)

	if err := Save(testCredentials()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("session file still exists after Clear")
	}

	// Clearing again is a no-op, not an error.
	if err := Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestFilePathOverride(t *testing.T) {
	t.Setenv("PARLEY_SESSION_FILE", "/custom/session.json")

	path, err := FilePath()
	if err != nil {
		t.Fatalf("FilePath: %v", err)
	}
	if path != "/custom/session.json" {
		t.Errorf("path = %q", path)
	}
}

func TestFilePathXDG(t *testing.T) {
	t.Setenv("PARLEY_SESSION_FILE", "")
	os.Unsetenv("PARLEY_SESSION_FILE")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

	path, err := FilePath()
	if err != nil {
		t.Fatalf("FilePath: %v", err)
	}
	if path != "/xdg/config/parley/session.json" {
		t.Errorf("path = %q", path)
	}
}
