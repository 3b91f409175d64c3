// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventstore persists cached room timelines across restarts.
//
// The store mirrors the in-memory event cache: events carry a per-room
// ordinal that preserves timeline order, with backfilled history below
// the live events. On startup the engine replays a room's stored events
// into the cache before the first sync, so history survives restarts
// without refetching.
//
// Two implementations exist: [SQLiteStore] for real persistence and
// [NoopStore] for the persistence-disabled configuration.
package eventstore

import (
	"context"

	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

// Store is the persistence interface consumed by the sync engine.
// Implementations must tolerate duplicate event IDs: storing an event
// that already exists is a silent no-op.
type Store interface {
	// AppendEvent stores a live event after everything already stored
	// for the room.
	AppendEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) error

	// PrependEvent stores a backfilled event before everything already
	// stored for the room.
	PrependEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) error

	// RoomEvents returns the room's stored timeline, oldest first.
	RoomEvents(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error)

	// Rooms returns the IDs of all rooms with stored events.
	Rooms(ctx context.Context) ([]ref.RoomID, error)

	// DeleteRoom discards a room's stored timeline.
	DeleteRoom(ctx context.Context, roomID ref.RoomID) error

	// DeleteAll discards everything. Used on logout.
	DeleteAll(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// NoopStore discards all writes and returns empty reads.
type NoopStore struct{}

func (NoopStore) AppendEvent(context.Context, ref.RoomID, messaging.Event) error {
	return nil
}

func (NoopStore) PrependEvent(context.Context, ref.RoomID, messaging.Event) error {
	return nil
}

func (NoopStore) RoomEvents(context.Context, ref.RoomID) ([]messaging.Event, error) {
	return nil, nil
}

func (NoopStore) Rooms(context.Context) ([]ref.RoomID, error) { return nil, nil }

func (NoopStore) DeleteRoom(context.Context, ref.RoomID) error { return nil }

func (NoopStore) DeleteAll(context.Context) error { return nil }

func (NoopStore) Close() error { return nil }

var _ Store = NoopStore{}
