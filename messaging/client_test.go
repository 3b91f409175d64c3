// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parley-im/parley/lib/secret"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		HomeserverURL: server.URL,
		HTTPClient:    server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func newSecret(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret.NewFromString: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error for empty HomeserverURL")
	}
}

func TestNewClientStripsTrailingSlash(t *testing.T) {
	client, err := NewClient(ClientConfig{HomeserverURL: "https://matrix.example.org/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := client.HomeserverURL(); got != "https://matrix.example.org" {
		t.Errorf("HomeserverURL = %q", got)
	}
}

func TestServerVersions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/versions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"versions": []string{"v1.10", "v1.11"},
		})
	}))

	versions, err := client.ServerVersions(context.Background())
	if err != nil {
		t.Fatalf("ServerVersions: %v", err)
	}
	if len(versions.Versions) != 2 || versions.Versions[1] != "v1.11" {
		t.Errorf("unexpected versions: %v", versions.Versions)
	}
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var request LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding login request: %v", err)
		}
		if request.Type != "m.login.password" {
			t.Errorf("login type = %q", request.Type)
		}
		if request.User != "alice" || request.Password != "hunter2" {
			t.Errorf("unexpected credentials %q/%q", request.User, request.Password)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user_id":      "@alice:example.org",
			"access_token": "syt_token",
			"device_id":    "PARLEYDEV",
		})
	}))

	session, err := client.Login(context.Background(), "alice", newSecret(t, "hunter2"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	defer session.Close()

	if got := session.UserID().String(); got != "@alice:example.org" {
		t.Errorf("UserID = %q", got)
	}
	if got := session.DeviceID(); got != "PARLEYDEV" {
		t.Errorf("DeviceID = %q", got)
	}
	if got := session.AccessToken(); got != "syt_token" {
		t.Errorf("AccessToken = %q", got)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"errcode": "M_FORBIDDEN",
			"error":   "Invalid password",
		})
	}))

	_, err := client.Login(context.Background(), "alice", newSecret(t, "wrong"))
	if err == nil {
		t.Fatal("expected login error")
	}

	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("expected *MatrixError, got %T: %v", err, err)
	}
	if matrixErr.Code != ErrCodeForbidden {
		t.Errorf("Code = %q", matrixErr.Code)
	}
	if matrixErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d", matrixErr.StatusCode)
	}
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Error("IsMatrixError(ErrCodeForbidden) = false")
	}
	if !IsAuthError(err) {
		t.Error("IsAuthError = false")
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))

	_, err := client.ServerVersions(context.Background())
	if err == nil {
		t.Fatal("expected error for non-JSON error body")
	}
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		t.Error("non-JSON body should not produce a MatrixError")
	}
}
