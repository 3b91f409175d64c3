// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

var testRoom = ref.MustParseRoomID("!room:example.org")

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(SQLiteConfig{
		Path:     filepath.Join(t.TempDir(), "events.db"),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func storedMessage(id, body string, timestamp int64) messaging.Event {
	return messaging.Event{
		EventID:        ref.MustParseEventID("$" + id),
		Type:           ref.EventTypeMessage,
		Sender:         ref.MustParseUserID("@bob:example.org"),
		OriginServerTS: timestamp,
		Content:        map[string]any{"msgtype": "m.text", "body": body},
	}
}

func TestAppendAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"e1", "e2", "e3"} {
		if err := store.AppendEvent(ctx, testRoom, storedMessage(id, id, int64(i))); err != nil {
			t.Fatalf("AppendEvent %s: %v", id, err)
		}
	}

	events, err := store.RoomEvents(ctx, testRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"$e1", "$e2", "$e3"} {
		if got := events[i].EventID.String(); got != want {
			t.Errorf("events[%d] = %s, want %s", i, got, want)
		}
	}

	// Decoded events carry full content and the room ID.
	if body := events[0].Content["body"]; body != "e1" {
		t.Errorf("body = %v", body)
	}
	if events[0].RoomID != testRoom {
		t.Errorf("room ID = %s", events[0].RoomID)
	}
	if events[0].Sender.String() != "@bob:example.org" {
		t.Errorf("sender = %s", events[0].Sender)
	}
}

func TestPrependOrdersBeforeAppends(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.AppendEvent(ctx, testRoom, storedMessage("live1", "a", 100))
	store.AppendEvent(ctx, testRoom, storedMessage("live2", "b", 101))

	// Backfill arrives newest-first.
	store.PrependEvent(ctx, testRoom, storedMessage("old2", "c", 51))
	store.PrependEvent(ctx, testRoom, storedMessage("old1", "d", 50))

	events, err := store.RoomEvents(ctx, testRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	want := []string{"$old1", "$old2", "$live1", "$live2"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i := range want {
		if got := events[i].EventID.String(); got != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got, want[i])
		}
	}
}

func TestDuplicateInsertIgnored(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	event := storedMessage("dup", "x", 1)
	if err := store.AppendEvent(ctx, testRoom, event); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.AppendEvent(ctx, testRoom, event); err != nil {
		t.Fatalf("duplicate AppendEvent: %v", err)
	}
	if err := store.PrependEvent(ctx, testRoom, event); err != nil {
		t.Fatalf("duplicate PrependEvent: %v", err)
	}

	events, err := store.RoomEvents(ctx, testRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestStateKeyRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stateKey := "@bob:example.org"
	event := messaging.Event{
		EventID:        ref.MustParseEventID("$member"),
		Type:           ref.EventTypeMember,
		Sender:         ref.MustParseUserID("@bob:example.org"),
		OriginServerTS: 1,
		Content:        map[string]any{"membership": "join", "displayname": "Bob"},
		StateKey:       &stateKey,
	}
	if err := store.AppendEvent(ctx, testRoom, event); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := store.RoomEvents(ctx, testRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	if events[0].StateKey == nil || *events[0].StateKey != stateKey {
		t.Errorf("state key = %v", events[0].StateKey)
	}
	if events[0].Type != ref.EventTypeMember {
		t.Errorf("type = %s", events[0].Type)
	}
}

func TestDeleteRoom(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	otherRoom := ref.MustParseRoomID("!other:example.org")

	store.AppendEvent(ctx, testRoom, storedMessage("a", "a", 1))
	store.AppendEvent(ctx, otherRoom, storedMessage("b", "b", 2))

	if err := store.DeleteRoom(ctx, testRoom); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}

	events, err := store.RoomEvents(ctx, testRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("deleted room still has %d events", len(events))
	}

	remaining, err := store.RoomEvents(ctx, otherRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("other room lost events: %d", len(remaining))
	}
}

func TestDeleteAll(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.AppendEvent(ctx, testRoom, storedMessage("a", "a", 1))
	store.AppendEvent(ctx, ref.MustParseRoomID("!other:example.org"), storedMessage("b", "b", 2))

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	events, err := store.RoomEvents(ctx, testRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("DeleteAll left %d events", len(events))
	}
}

func TestRooms(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rooms, err := store.Rooms(ctx)
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("empty store listed rooms: %v", rooms)
	}

	otherRoom := ref.MustParseRoomID("!other:example.org")
	store.AppendEvent(ctx, testRoom, storedMessage("a", "a", 1))
	store.AppendEvent(ctx, testRoom, storedMessage("b", "b", 2))
	store.AppendEvent(ctx, otherRoom, storedMessage("c", "c", 3))

	rooms, err = store.Rooms(ctx)
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("expected 2 rooms, got %v", rooms)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	store, err := OpenSQLite(SQLiteConfig{Path: path, PoolSize: 1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := store.AppendEvent(ctx, testRoom, storedMessage("kept", "x", 1)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(SQLiteConfig{Path: path, PoolSize: 1})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.RoomEvents(ctx, testRoom)
	if err != nil {
		t.Fatalf("RoomEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventID.String() != "$kept" {
		t.Errorf("events after reopen: %v", events)
	}
}
