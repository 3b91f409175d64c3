// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"sync"

	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

// Observer receives engine notifications. All callbacks run on the
// engine's notification goroutine, one at a time, in order. Callbacks
// must not block; long work should be handed off.
//
// Embed [BaseObserver] to implement only the callbacks you care about.
type Observer interface {
	// SessionStateChanged reports a lifecycle transition.
	SessionStateChanged(state SessionState)

	// RoomsChanged reports that the room list changed: a room was
	// added or removed, or a summary field (name, unread, latest
	// message) changed. The slice is sorted for display and owned by
	// the observer.
	RoomsChanged(rooms []RoomSummary)

	// TimelineUpdated reports new cached events for a room. Events
	// appear in timeline order; backfilled history arrives as a
	// separate call from live events.
	TimelineUpdated(roomID ref.RoomID, events []messaging.Event)
}

// BaseObserver is a no-op Observer for embedding.
type BaseObserver struct{}

func (BaseObserver) SessionStateChanged(SessionState)              {}
func (BaseObserver) RoomsChanged([]RoomSummary)                    {}
func (BaseObserver) TimelineUpdated(ref.RoomID, []messaging.Event) {}

var _ Observer = BaseObserver{}

// bus is the observer registry. Registration order is delivery order.
type bus struct {
	mu        sync.Mutex
	observers map[int]Observer
	order     []int
	nextID    int
}

func newBus() *bus {
	return &bus{observers: make(map[int]Observer)}
}

// subscribe registers an observer and returns its removal function.
// The removal function is idempotent.
func (b *bus) subscribe(observer Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.observers[id] = observer
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// snapshot returns the current observers in registration order.
func (b *bus) snapshot() []Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	observers := make([]Observer, 0, len(b.observers))
	live := b.order[:0]
	for _, id := range b.order {
		if observer, ok := b.observers[id]; ok {
			observers = append(observers, observer)
			live = append(live, id)
		}
	}
	b.order = live
	return observers
}
