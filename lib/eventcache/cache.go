// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventcache holds the per-room timeline cache.
//
// Each room's timeline is a single ordered sequence: backfilled history
// at the head, live events at the tail. An event ID index provides O(1)
// duplicate rejection, which matters because the same event routinely
// arrives twice — once from backward pagination and once from /sync
// when the two windows overlap.
//
// The cache is not safe for concurrent use. The sync engine owns it
// from a single goroutine; readers get defensive copies via Events.
package eventcache

import (
	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

// cachedTypes is the set of event types worth keeping. Everything else
// (receipts, typing, reactions, encryption bookkeeping) is dropped at
// the cache boundary.
var cachedTypes = map[ref.EventType]bool{
	ref.EventTypeCreate:         true,
	ref.EventTypeMessage:        true,
	ref.EventTypeName:           true,
	ref.EventTypeMember:         true,
	ref.EventTypeTopic:          true,
	ref.EventTypeCanonicalAlias: true,
}

// Cacheable reports whether events of the given type are retained by
// the cache.
func Cacheable(eventType ref.EventType) bool {
	return cachedTypes[eventType]
}

// Config holds cache construction parameters.
type Config struct {
	// MaxEventsPerRoom caps the number of events retained per room.
	// When a live append exceeds the cap, the oldest event is evicted.
	// Zero means unlimited.
	MaxEventsPerRoom int
}

// Cache is the event cache for all rooms in a session.
type Cache struct {
	rooms            map[ref.RoomID]*sequence
	maxEventsPerRoom int
}

// sequence is one room's ordered timeline plus its dedup index.
type sequence struct {
	events []messaging.Event
	index  map[ref.EventID]bool
}

// New creates an empty cache.
func New(config Config) *Cache {
	return &Cache{
		rooms:            make(map[ref.RoomID]*sequence),
		maxEventsPerRoom: config.MaxEventsPerRoom,
	}
}

func (c *Cache) room(roomID ref.RoomID) *sequence {
	seq, ok := c.rooms[roomID]
	if !ok {
		seq = &sequence{index: make(map[ref.EventID]bool)}
		c.rooms[roomID] = seq
	}
	return seq
}

// Append adds a live event to the tail of the room's timeline. Returns
// false if the event is a duplicate, has a zero event ID, or is not a
// cacheable type. If the room is at its cap, the oldest event is
// evicted to make space.
func (c *Cache) Append(roomID ref.RoomID, event messaging.Event) bool {
	if !c.admissible(roomID, event) {
		return false
	}
	seq := c.room(roomID)

	if c.maxEventsPerRoom > 0 && len(seq.events) >= c.maxEventsPerRoom {
		oldest := seq.events[0]
		delete(seq.index, oldest.EventID)
		seq.events = seq.events[1:]
	}

	seq.events = append(seq.events, event)
	seq.index[event.EventID] = true
	return true
}

// Prepend adds a backfilled event to the head of the room's timeline.
// Returns false if the event is a duplicate, has a zero event ID, is
// not a cacheable type, or the room is already at its cap. At the cap
// the prepend is rejected rather than evicting, since the incoming
// event is older than everything already cached.
func (c *Cache) Prepend(roomID ref.RoomID, event messaging.Event) bool {
	if !c.admissible(roomID, event) {
		return false
	}
	seq := c.room(roomID)

	if c.maxEventsPerRoom > 0 && len(seq.events) >= c.maxEventsPerRoom {
		return false
	}

	seq.events = append([]messaging.Event{event}, seq.events...)
	seq.index[event.EventID] = true
	return true
}

func (c *Cache) admissible(roomID ref.RoomID, event messaging.Event) bool {
	if event.EventID.IsZero() {
		return false
	}
	if !Cacheable(event.Type) {
		return false
	}
	if seq, ok := c.rooms[roomID]; ok && seq.index[event.EventID] {
		return false
	}
	return true
}

// Contains reports whether the room's timeline already holds the event.
func (c *Cache) Contains(roomID ref.RoomID, eventID ref.EventID) bool {
	seq, ok := c.rooms[roomID]
	return ok && seq.index[eventID]
}

// Events returns a copy of the room's timeline, oldest first. Returns
// nil for an unknown room.
func (c *Cache) Events(roomID ref.RoomID) []messaging.Event {
	seq, ok := c.rooms[roomID]
	if !ok || len(seq.events) == 0 {
		return nil
	}
	out := make([]messaging.Event, len(seq.events))
	copy(out, seq.events)
	return out
}

// Latest returns the newest event in the room's timeline, or false if
// the room has no cached events.
func (c *Cache) Latest(roomID ref.RoomID) (messaging.Event, bool) {
	seq, ok := c.rooms[roomID]
	if !ok || len(seq.events) == 0 {
		return messaging.Event{}, false
	}
	return seq.events[len(seq.events)-1], true
}

// Len returns the number of cached events for the room.
func (c *Cache) Len(roomID ref.RoomID) int {
	seq, ok := c.rooms[roomID]
	if !ok {
		return 0
	}
	return len(seq.events)
}

// Rooms returns the IDs of all rooms with cache entries, in no
// particular order.
func (c *Cache) Rooms() []ref.RoomID {
	out := make([]ref.RoomID, 0, len(c.rooms))
	for roomID := range c.rooms {
		out = append(out, roomID)
	}
	return out
}

// DropRoom discards a room's cached timeline.
func (c *Cache) DropRoom(roomID ref.RoomID) {
	delete(c.rooms, roomID)
}
