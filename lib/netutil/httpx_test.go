// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("ReadResponse = %q", data)
	}
}

func TestDecodeResponse(t *testing.T) {
	var decoded struct {
		NextBatch string `json:"next_batch"`
	}
	if err := DecodeResponse(strings.NewReader(`{"next_batch":"s123"}`), &decoded); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.NextBatch != "s123" {
		t.Errorf("NextBatch = %q, want %q", decoded.NextBatch, "s123")
	}
}

func TestDecodeResponseInvalidJSON(t *testing.T) {
	var decoded map[string]any
	if err := DecodeResponse(strings.NewReader("not json"), &decoded); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(strings.NewReader("server exploded")); got != "server exploded" {
		t.Errorf("ErrorBody = %q", got)
	}
}
