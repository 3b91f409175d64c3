// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-im/parley/lib/clock"
	"github.com/parley-im/parley/lib/eventcache"
	"github.com/parley-im/parley/lib/eventstore"
	"github.com/parley-im/parley/lib/mediacache"
	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

// Config holds engine construction parameters.
type Config struct {
	// Store persists timelines across restarts. Nil disables
	// persistence. The engine does not close the store; its owner
	// does.
	Store eventstore.Store

	// Media resolves mxc:// URIs to cached local files. Optional.
	Media *mediacache.Resolver

	// Clock abstracts time for the sync loop's retry backoff. Nil
	// uses the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger

	// SyncTimeout is the /sync long-poll duration. Zero defaults to
	// 30 seconds.
	SyncTimeout time.Duration

	// BackfillLimit is the number of events fetched per backward
	// pagination request. Zero defaults to 30.
	BackfillLimit int

	// KeepOnPart retains a room's cached and stored events after
	// leaving the room. The default drops them.
	KeepOnPart bool

	// MaxEventsPerRoom caps the in-memory cache per room. Zero means
	// unlimited.
	MaxEventsPerRoom int
}

// Engine owns the local session lifecycle: it attaches a Matrix
// session, performs the initial sync, runs the live sync loop, and
// maintains the room list and per-room timelines that observers
// render from.
//
// All exported methods are safe for concurrent use. Observer callbacks
// run on a dedicated notification goroutine, never on the caller's.
type Engine struct {
	store            eventstore.Store
	media            *mediacache.Resolver
	clock            clock.Clock
	logger           *slog.Logger
	syncTimeout      time.Duration
	backfillLimit    int
	keepOnPart       bool
	maxEventsPerRoom int

	bus  *bus
	pump *pump

	mu        sync.Mutex
	state     SessionState
	session   messaging.Session
	cache     *eventcache.Cache
	rooms     map[ref.RoomID]*roomState
	selected  ref.RoomID
	nextBatch string

	syncCancel context.CancelFunc
	syncDone   chan struct{}
}

// New creates an engine in the NeedsCredentials state.
func New(config Config) *Engine {
	store := config.Store
	if store == nil {
		store = eventstore.NoopStore{}
	}
	engineClock := config.Clock
	if engineClock == nil {
		engineClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	syncTimeout := config.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = 30 * time.Second
	}
	backfillLimit := config.BackfillLimit
	if backfillLimit <= 0 {
		backfillLimit = 30
	}

	return &Engine{
		store:            store,
		media:            config.Media,
		clock:            engineClock,
		logger:           logger,
		syncTimeout:      syncTimeout,
		backfillLimit:    backfillLimit,
		keepOnPart:       config.KeepOnPart,
		maxEventsPerRoom: config.MaxEventsPerRoom,
		bus:              newBus(),
		pump:             newPump(),
		state:            StateNeedsCredentials,
		cache:            eventcache.New(eventcache.Config{MaxEventsPerRoom: config.MaxEventsPerRoom}),
		rooms:            make(map[ref.RoomID]*roomState),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers an observer and returns its removal function.
// Observers registered mid-session receive only subsequent
// notifications; use Rooms and Events to read current state.
func (e *Engine) Subscribe(observer Observer) (unsubscribe func()) {
	return e.bus.subscribe(observer)
}

// SetSession attaches an authenticated session, moving the engine from
// NeedsCredentials to NotStarted. The engine takes ownership of the
// session and closes it on Logout or Close.
func (e *Engine) SetSession(session messaging.Session) error {
	if session == nil {
		return fmt.Errorf("engine: session is required")
	}

	e.mu.Lock()
	if e.state != StateNeedsCredentials {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("engine: cannot attach session in state %s", state)
	}
	e.session = session
	e.state = StateNotStarted
	e.mu.Unlock()

	e.notifyState(StateNotStarted)
	return nil
}

// Start performs the initial sync and launches the live sync loop.
// Valid from NotStarted, or from Starting to retry a failed start.
//
// On failure Start returns a *StartError. If Retryable is true the
// engine stays in Starting and Start may be called again; if false the
// access token was rejected and the engine has dropped back to
// NeedsCredentials.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateNotStarted && e.state != StateStarting {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("engine: cannot start in state %s", state)
	}
	notify := e.state != StateStarting
	e.state = StateStarting
	session := e.session
	e.mu.Unlock()

	if notify {
		e.notifyState(StateStarting)
	}

	if err := e.replayStore(ctx); err != nil {
		// A broken local store should not keep the user from their
		// account; log and sync from scratch.
		e.logger.Warn("replaying stored timelines failed", "error", err)
	}

	response, err := session.Sync(ctx, messaging.SyncOptions{
		Filter:     e.syncFilter(),
		SetTimeout: true,
	})
	// A Logout issued while the sync was in flight has already reset
	// the engine; this attempt must not touch it.
	if !e.stillStarting(session) {
		return fmt.Errorf("engine: session detached during start")
	}
	if err != nil {
		return e.startFailed(err)
	}

	e.processSyncResponse(ctx, response)
	e.fetchMissingMemberLists(ctx, session)
	e.backfillAll(ctx, session)

	e.mu.Lock()
	if e.session != session || e.state != StateStarting {
		e.mu.Unlock()
		return fmt.Errorf("engine: session detached during start")
	}
	e.state = StateStarted
	syncCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.syncCancel = cancel
	e.syncDone = done
	e.mu.Unlock()

	e.notifyState(StateStarted)
	e.notifyRooms()

	go e.syncLoop(syncCtx, session, done)
	return nil
}

// stillStarting reports whether this start attempt still owns the
// engine: the captured session is attached and no concurrent Logout
// or Close has intervened.
func (e *Engine) stillStarting(session messaging.Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session == session && e.state == StateStarting
}

// startFailed classifies an initial sync error. Auth failures drop the
// engine back to NeedsCredentials; anything else leaves it in Starting
// for retry.
func (e *Engine) startFailed(err error) error {
	if messaging.IsAuthError(err) {
		e.mu.Lock()
		e.state = StateNeedsCredentials
		session := e.session
		e.session = nil
		e.mu.Unlock()
		if session != nil {
			session.Close()
		}
		e.notifyState(StateNeedsCredentials)
		return &StartError{Retryable: false, Err: err}
	}
	e.logger.Warn("initial sync failed", "error", err)
	return &StartError{Retryable: true, Err: err}
}

// Logout resets the engine locally, then invalidates the token on the
// homeserver. The local reset is unconditional and happens first: even
// if the homeserver is unreachable, the engine ends up in
// NeedsCredentials with caches cleared. The remote error, if any, is
// returned.
func (e *Engine) Logout(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateNeedsCredentials {
		e.mu.Unlock()
		return fmt.Errorf("engine: no session to log out")
	}
	session := e.session
	cancel := e.syncCancel
	done := e.syncDone
	e.session = nil
	e.syncCancel = nil
	e.syncDone = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	e.mu.Lock()
	e.state = StateNeedsCredentials
	e.rooms = make(map[ref.RoomID]*roomState)
	e.cache = eventcache.New(eventcache.Config{MaxEventsPerRoom: e.maxEventsPerRoom})
	e.selected = ref.RoomID{}
	e.nextBatch = ""
	e.mu.Unlock()

	e.notifyState(StateNeedsCredentials)
	e.notifyRooms()

	if err := e.store.DeleteAll(ctx); err != nil {
		e.logger.Warn("clearing event store on logout failed", "error", err)
	}
	if e.media != nil {
		if err := e.media.Purge(); err != nil {
			e.logger.Warn("purging media cache on logout failed", "error", err)
		}
	}

	remoteErr := session.Logout(ctx)
	session.Close()
	if remoteErr != nil {
		return fmt.Errorf("engine: remote logout: %w", remoteErr)
	}
	return nil
}

// Close stops the sync loop and the notification goroutine and closes
// the attached session. The engine cannot be reused after Close.
func (e *Engine) Close() error {
	e.mu.Lock()
	session := e.session
	cancel := e.syncCancel
	done := e.syncDone
	e.session = nil
	e.syncCancel = nil
	e.syncDone = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.pump.close()

	if session != nil {
		return session.Close()
	}
	return nil
}

// Rooms returns the current room list, sorted for display.
func (e *Engine) Rooms() []RoomSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summariesLocked()
}

// Events returns a copy of a room's cached timeline, oldest first.
func (e *Engine) Events(roomID ref.RoomID) []messaging.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Events(roomID)
}

// SelectRoom marks a room as the one being viewed and clears its
// unread flag. Messages arriving for the selected room do not set
// unread. Pass a zero RoomID to deselect.
func (e *Engine) SelectRoom(roomID ref.RoomID) {
	e.mu.Lock()
	e.selected = roomID
	changed := false
	if room, ok := e.rooms[roomID]; ok && room.unread {
		room.unread = false
		changed = true
	}
	e.mu.Unlock()

	if changed {
		e.notifyRooms()
	}
}

// SelectedRoom returns the currently selected room, zero when none.
func (e *Engine) SelectedRoom() ref.RoomID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// SendText sends a plain text message to a room. The sent event is not
// cached directly; it arrives through the sync loop like any other.
func (e *Engine) SendText(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, error) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return ref.EventID{}, fmt.Errorf("engine: no session")
	}
	return session.SendMessage(ctx, roomID, messaging.NewTextMessage(body))
}

// PaginateBack fetches one page of older history for a room and
// prepends it to the cached timeline. Returns the number of new events.
// Returns zero with no error once the start of history is reached.
func (e *Engine) PaginateBack(ctx context.Context, roomID ref.RoomID) (int, error) {
	e.mu.Lock()
	session := e.session
	room, ok := e.rooms[roomID]
	var from string
	if ok {
		from = room.prevBatch
	}
	e.mu.Unlock()

	if session == nil {
		return 0, fmt.Errorf("engine: no session")
	}
	if !ok {
		return 0, fmt.Errorf("engine: unknown room %s", roomID)
	}
	if from == "" {
		return 0, nil
	}

	response, err := session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		From:  from,
		Limit: e.backfillLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: paginating %s: %w", roomID, err)
	}

	added := e.prependChunk(ctx, roomID, response)
	if len(added) > 0 {
		e.notifyTimeline(roomID, added)
	}
	return len(added), nil
}

// ResolveMedia resolves an mxc:// URI to a cached local file in the
// background. The returned cancel function aborts the download.
// Returns an error immediately if no media resolver is configured.
func (e *Engine) ResolveMedia(uri ref.ContentURI, callback func(path string, err error)) (cancel func(), err error) {
	if e.media == nil {
		return nil, fmt.Errorf("engine: no media resolver configured")
	}
	return e.media.ResolveAsync(uri, callback), nil
}

// summariesLocked builds the sorted display snapshot. Caller holds mu.
func (e *Engine) summariesLocked() []RoomSummary {
	var self ref.UserID
	if e.session != nil {
		self = e.session.UserID()
	}
	summaries := make([]RoomSummary, 0, len(e.rooms))
	for _, room := range e.rooms {
		summaries = append(summaries, room.summary(self))
	}
	SortSummaries(summaries)
	return summaries
}

func (e *Engine) notifyState(state SessionState) {
	observers := e.bus.snapshot()
	e.pump.post(func() {
		for _, observer := range observers {
			observer.SessionStateChanged(state)
		}
	})
}

func (e *Engine) notifyRooms() {
	e.mu.Lock()
	summaries := e.summariesLocked()
	e.mu.Unlock()

	observers := e.bus.snapshot()
	e.pump.post(func() {
		for _, observer := range observers {
			observer.RoomsChanged(summaries)
		}
	})
}

func (e *Engine) notifyTimeline(roomID ref.RoomID, events []messaging.Event) {
	observers := e.bus.snapshot()
	e.pump.post(func() {
		for _, observer := range observers {
			observer.TimelineUpdated(roomID, events)
		}
	})
}
