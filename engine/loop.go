// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parley-im/parley/lib/eventcache"
	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// syncFilter builds the inline /sync filter: timeline capped at the
// backfill limit and restricted to cached event types, state limited
// to the summary-relevant types, presence dropped entirely.
func (e *Engine) syncFilter() string {
	timelineTypes := []string{
		string(ref.EventTypeCreate),
		string(ref.EventTypeMessage),
		string(ref.EventTypeName),
		string(ref.EventTypeMember),
		string(ref.EventTypeTopic),
		string(ref.EventTypeCanonicalAlias),
	}
	stateTypes := append(timelineTypes, string(ref.EventTypeAvatar))

	quote := func(types []string) string {
		return `"` + strings.Join(types, `","`) + `"`
	}
	return fmt.Sprintf(
		`{"room":{"timeline":{"limit":%d,"types":[%s]},"state":{"types":[%s]}},"presence":{"types":[]}}`,
		e.backfillLimit, quote(timelineTypes), quote(stateTypes))
}

// syncLoop long-polls /sync until ctx is cancelled, closing done on
// exit. The channel is passed in rather than read from the engine:
// Close and Logout nil out the engine's copy while the loop may not
// have been scheduled yet. Transient errors retry with exponential
// backoff; an auth error ends the session.
func (e *Engine) syncLoop(ctx context.Context, session messaging.Session, done chan struct{}) {
	defer close(done)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		since := e.nextBatch
		e.mu.Unlock()

		response, err := session.Sync(ctx, messaging.SyncOptions{
			Since:      since,
			Timeout:    int(e.syncTimeout.Milliseconds()),
			SetTimeout: true,
			Filter:     e.syncFilter(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if messaging.IsAuthError(err) {
				e.logger.Error("access token rejected, ending session", "error", err)
				e.sessionInvalidated()
				return
			}

			e.logger.Warn("sync failed, backing off",
				"error", err,
				"backoff", backoff,
			)
			session.CloseIdleConnections()
			select {
			case <-e.clock.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		e.processSyncResponse(ctx, response)

		// Rooms joined mid-session arrive with only the sync window's
		// events; top them up the way Start does. No-op once every
		// room is at the limit or at the start of its history.
		e.backfillAll(ctx, session)
	}
}

// sessionInvalidated handles a homeserver-side token revocation
// observed by the sync loop: drop to NeedsCredentials and release the
// session. Cached events stay in place until logout or restart.
func (e *Engine) sessionInvalidated() {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.syncCancel = nil
	e.state = StateNeedsCredentials
	e.mu.Unlock()

	if session != nil {
		session.Close()
	}
	e.notifyState(StateNeedsCredentials)
}

// processSyncResponse folds a /sync response into the engine state and
// emits the resulting notifications.
func (e *Engine) processSyncResponse(ctx context.Context, response *messaging.SyncResponse) {
	var self ref.UserID

	e.mu.Lock()
	e.nextBatch = response.NextBatch
	if e.session != nil {
		self = e.session.UserID()
	}

	roomsChanged := false
	timelineUpdates := make(map[ref.RoomID][]messaging.Event)

	for roomID, joined := range response.Rooms.Join {
		room, ok := e.rooms[roomID]
		if !ok {
			room = newRoomState(roomID, "join")
			e.rooms[roomID] = room
			roomsChanged = true
		}
		if room.membership != "join" {
			room.membership = "join"
			roomsChanged = true
		}

		for _, event := range joined.State.Events {
			if room.applyStateEvent(event) {
				roomsChanged = true
			}
		}

		if room.prevBatch == "" {
			room.prevBatch = joined.Timeline.PrevBatch
		}

		for _, event := range joined.Timeline.Events {
			// Timeline state events update the summary as well as
			// the timeline.
			if event.StateKey != nil && room.applyStateEvent(event) {
				roomsChanged = true
			}

			event.RoomID = roomID
			if !e.cache.Append(roomID, event) {
				continue
			}
			if err := e.store.AppendEvent(ctx, roomID, event); err != nil {
				e.logger.Warn("persisting event failed",
					"room_id", roomID,
					"event_id", event.EventID,
					"error", err,
				)
			}
			timelineUpdates[roomID] = append(timelineUpdates[roomID], event)

			if event.OriginServerTS > room.lastActivity {
				room.lastActivity = event.OriginServerTS
				roomsChanged = true
			}
			if event.Type == ref.EventTypeMessage && event.Sender != self && roomID != e.selected {
				if !room.unread {
					room.unread = true
					roomsChanged = true
				}
			}
		}
	}

	for roomID, invited := range response.Rooms.Invite {
		room, ok := e.rooms[roomID]
		if !ok {
			room = newRoomState(roomID, "invite")
			e.rooms[roomID] = room
			roomsChanged = true
		}
		for _, event := range invited.InviteState.Events {
			if room.applyStateEvent(event) {
				roomsChanged = true
			}
		}
	}

	for roomID := range response.Rooms.Leave {
		if _, ok := e.rooms[roomID]; !ok {
			continue
		}
		delete(e.rooms, roomID)
		roomsChanged = true

		if e.keepOnPart {
			continue
		}
		e.cache.DropRoom(roomID)
		if err := e.store.DeleteRoom(ctx, roomID); err != nil {
			e.logger.Warn("dropping stored timeline failed", "room_id", roomID, "error", err)
		}
	}
	e.mu.Unlock()

	for roomID, events := range timelineUpdates {
		e.notifyTimeline(roomID, events)
	}
	if roomsChanged {
		e.notifyRooms()
	}
}

// replayStore seeds the cache from persisted timelines before the
// first sync, so history is visible immediately on startup.
func (e *Engine) replayStore(ctx context.Context) error {
	roomIDs, err := e.store.Rooms(ctx)
	if err != nil {
		return err
	}

	for _, roomID := range roomIDs {
		events, err := e.store.RoomEvents(ctx, roomID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		room, ok := e.rooms[roomID]
		if !ok {
			room = newRoomState(roomID, "join")
			e.rooms[roomID] = room
		}
		for _, event := range events {
			if event.StateKey != nil {
				room.applyStateEvent(event)
			}
			if e.cache.Append(roomID, event) && event.OriginServerTS > room.lastActivity {
				room.lastActivity = event.OriginServerTS
			}
		}
		e.mu.Unlock()
	}
	return nil
}

// fetchMissingMemberLists fills in member info for rooms whose display
// name depends on it: rooms with no name and no canonical alias. Rooms
// with an explicit name render without a member roster.
func (e *Engine) fetchMissingMemberLists(ctx context.Context, session messaging.Session) {
	e.mu.Lock()
	var needed []ref.RoomID
	for roomID, room := range e.rooms {
		if room.membership == "join" && room.name == "" && room.canonicalAlias == "" {
			needed = append(needed, roomID)
		}
	}
	e.mu.Unlock()

	for _, roomID := range needed {
		members, err := session.GetRoomMembers(ctx, roomID)
		if err != nil {
			e.logger.Warn("fetching room members failed", "room_id", roomID, "error", err)
			continue
		}

		e.mu.Lock()
		room, ok := e.rooms[roomID]
		if ok {
			for _, member := range members {
				if member.Membership != "join" {
					continue
				}
				room.members[member.UserID] = memberInfo{
					displayName: member.DisplayName,
					avatarURL:   member.AvatarURL,
				}
			}
		}
		e.mu.Unlock()
	}
}

// backfillAll fetches one page of history for every joined room whose
// cache holds fewer events than the backfill limit.
func (e *Engine) backfillAll(ctx context.Context, session messaging.Session) {
	e.mu.Lock()
	type target struct {
		roomID ref.RoomID
		from   string
	}
	var targets []target
	for roomID, room := range e.rooms {
		if room.membership != "join" || room.prevBatch == "" {
			continue
		}
		if e.cache.Len(roomID) >= e.backfillLimit {
			continue
		}
		targets = append(targets, target{roomID: roomID, from: room.prevBatch})
	}
	e.mu.Unlock()

	for _, target := range targets {
		response, err := session.RoomMessages(ctx, target.roomID, messaging.RoomMessagesOptions{
			From:  target.from,
			Limit: e.backfillLimit,
		})
		if err != nil {
			e.logger.Warn("backfill failed", "room_id", target.roomID, "error", err)
			continue
		}

		added := e.prependChunk(ctx, target.roomID, response)
		if len(added) > 0 {
			e.notifyTimeline(target.roomID, added)
		}
	}
}

// prependChunk folds a backward pagination response into a room's
// timeline. The chunk arrives newest-first; prepending in arrival
// order leaves the oldest event at the head. Returns the prepended
// events in timeline order (oldest first).
func (e *Engine) prependChunk(ctx context.Context, roomID ref.RoomID, response *messaging.RoomMessagesResponse) []messaging.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return nil
	}

	var added []messaging.Event
	for _, event := range response.Chunk {
		if !eventcache.Cacheable(event.Type) {
			continue
		}
		event.RoomID = roomID
		if !e.cache.Prepend(roomID, event) {
			continue
		}
		if err := e.store.PrependEvent(ctx, roomID, event); err != nil {
			e.logger.Warn("persisting backfilled event failed",
				"room_id", roomID,
				"event_id", event.EventID,
				"error", err,
			)
		}
		added = append(added, event)
	}

	// An empty End token means the start of history; clearing
	// prevBatch stops further pagination.
	room.prevBatch = response.End

	// Reverse into timeline order for observers.
	for i, j := 0, len(added)-1; i < j; i, j = i+1, j-1 {
		added[i], added[j] = added[j], added[i]
	}
	return added
}
