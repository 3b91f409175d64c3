// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers.
//
// Every identifier that crosses the wire boundary — room IDs, user IDs,
// event IDs, room aliases, mxc content URIs — is parsed into a
// validated value type exactly once, at deserialization. Code past the
// boundary never handles raw identifier strings, so a RoomID can never
// be passed where a UserID is expected and malformed identifiers are
// rejected before they reach the cache or the store.
//
// All types are immutable values. The zero value is never valid; use
// IsZero to check. JSON serialization uses the canonical Matrix string
// form via encoding.TextMarshaler/TextUnmarshaler, which also makes the
// types usable as JSON object keys (the /sync response keys its room
// sections by room ID).
package ref
