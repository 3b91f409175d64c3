// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type
// (e.g., "m.room.message", "m.room.member").
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing or validation. The type
// exists purely for compile-time safety — preventing accidental use of
// a state key where an event type is expected (or vice versa).
type EventType string

// Standard Matrix room event types the engine works with. The timeline
// cache only retains events whose type appears in the engine's
// allow-list, which is built from these constants.
const (
	EventTypeCreate         EventType = "m.room.create"
	EventTypeMessage        EventType = "m.room.message"
	EventTypeName           EventType = "m.room.name"
	EventTypeMember         EventType = "m.room.member"
	EventTypeTopic          EventType = "m.room.topic"
	EventTypeCanonicalAlias EventType = "m.room.canonical_alias"
	EventTypeAvatar         EventType = "m.room.avatar"
)

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }
