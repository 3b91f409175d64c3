// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "!abc123:example.org"},
		{name: "empty", input: "", wantErr: true},
		{name: "missing_sigil", input: "abc123:example.org", wantErr: true},
		{name: "missing_server", input: "!abc123", wantErr: true},
		{name: "empty_localpart", input: "!:example.org", wantErr: true},
		{name: "empty_server", input: "!abc123:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roomID, err := ParseRoomID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRoomID(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoomID(%q): %v", tt.input, err)
			}
			if roomID.String() != tt.input {
				t.Errorf("String() = %q, want %q", roomID.String(), tt.input)
			}
			if roomID.IsZero() {
				t.Error("IsZero() = true for parsed room ID")
			}
		})
	}
}

func TestRoomIDAsJSONMapKey(t *testing.T) {
	// The /sync response keys per-room sections by room ID. Decoding
	// must go through UnmarshalText so invalid keys are rejected.
	var decoded map[RoomID]int
	if err := json.Unmarshal([]byte(`{"!room:example.org": 1}`), &decoded); err != nil {
		t.Fatalf("decoding map keyed by room ID: %v", err)
	}
	if decoded[MustParseRoomID("!room:example.org")] != 1 {
		t.Error("decoded map missing expected room ID key")
	}

	if err := json.Unmarshal([]byte(`{"not-a-room-id": 1}`), &decoded); err == nil {
		t.Error("expected error decoding invalid room ID map key")
	}
}

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "@alice:example.org"},
		{name: "empty", input: "", wantErr: true},
		{name: "missing_sigil", input: "alice:example.org", wantErr: true},
		{name: "missing_server", input: "@alice", wantErr: true},
		{name: "empty_localpart", input: "@:example.org", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := ParseUserID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseUserID(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUserID(%q): %v", tt.input, err)
			}
			if userID.String() != tt.input {
				t.Errorf("String() = %q, want %q", userID.String(), tt.input)
			}
		})
	}
}

func TestUserIDParts(t *testing.T) {
	userID := MustParseUserID("@alice:example.org")
	if userID.Localpart() != "alice" {
		t.Errorf("Localpart() = %q, want %q", userID.Localpart(), "alice")
	}
	if userID.Server() != "example.org" {
		t.Errorf("Server() = %q, want %q", userID.Server(), "example.org")
	}
}

func TestParseEventID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "room_v4_format", input: "$base64hashvalue"},
		{name: "legacy_format", input: "$abc123:example.org"},
		{name: "empty", input: "", wantErr: true},
		{name: "missing_sigil", input: "abc123", wantErr: true},
		{name: "bare_sigil", input: "$", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eventID, err := ParseEventID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseEventID(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEventID(%q): %v", tt.input, err)
			}
			if eventID.String() != tt.input {
				t.Errorf("String() = %q, want %q", eventID.String(), tt.input)
			}
		})
	}
}

func TestEventIDJSONRoundTrip(t *testing.T) {
	type payload struct {
		EventID EventID `json:"event_id"`
	}
	var decoded payload
	if err := json.Unmarshal([]byte(`{"event_id": "$ev1:example.org"}`), &decoded); err != nil {
		t.Fatalf("decoding event ID: %v", err)
	}
	if decoded.EventID.String() != "$ev1:example.org" {
		t.Errorf("decoded event ID = %q", decoded.EventID)
	}

	// Empty input produces the zero value, not an error: many event
	// payloads omit optional event ID fields.
	if err := json.Unmarshal([]byte(`{"event_id": ""}`), &decoded); err != nil {
		t.Fatalf("decoding empty event ID: %v", err)
	}
	if !decoded.EventID.IsZero() {
		t.Error("empty event ID should decode to zero value")
	}
}

func TestParseRoomAlias(t *testing.T) {
	alias, err := ParseRoomAlias("#lounge:example.org")
	if err != nil {
		t.Fatalf("ParseRoomAlias: %v", err)
	}
	if alias.Localpart() != "lounge" {
		t.Errorf("Localpart() = %q, want %q", alias.Localpart(), "lounge")
	}

	if _, err := ParseRoomAlias("lounge:example.org"); err == nil {
		t.Error("expected error for alias without '#' sigil")
	}
	if _, err := ParseRoomAlias("#lounge"); err == nil {
		t.Error("expected error for alias without server")
	}
}

func TestParseContentURI(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "mxc://example.org/GCmhgzMPRjqgpODLsNQzVuHZ"},
		{name: "empty", input: "", wantErr: true},
		{name: "http_scheme", input: "https://example.org/avatar.png", wantErr: true},
		{name: "missing_media_id", input: "mxc://example.org", wantErr: true},
		{name: "missing_server", input: "mxc:///mediaid", wantErr: true},
		{name: "media_id_with_slash", input: "mxc://example.org/a/b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, err := ParseContentURI(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseContentURI(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseContentURI(%q): %v", tt.input, err)
			}
			if uri.String() != tt.input {
				t.Errorf("String() = %q, want %q", uri.String(), tt.input)
			}
			if uri.Server() != "example.org" {
				t.Errorf("Server() = %q, want %q", uri.Server(), "example.org")
			}
		})
	}
}

func TestContentURIZeroValue(t *testing.T) {
	var uri ContentURI
	if !uri.IsZero() {
		t.Error("zero ContentURI should report IsZero")
	}
	if uri.String() != "" {
		t.Errorf("zero ContentURI String() = %q, want empty", uri.String())
	}
}
