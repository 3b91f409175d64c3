// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/parley-im/parley/engine"
	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

// consoleObserver renders engine notifications as plain text, one line
// per message. Callbacks arrive serialized on the engine's
// notification goroutine, so no locking is needed around the writer.
type consoleObserver struct {
	out io.Writer

	// sessionEnded is closed when the engine drops back to
	// NeedsCredentials after having started, which means the
	// homeserver revoked the token.
	sessionEnded chan struct{}
	endOnce      sync.Once

	started bool
}

func newConsoleObserver(out io.Writer) *consoleObserver {
	return &consoleObserver{
		out:          out,
		sessionEnded: make(chan struct{}),
	}
}

func (o *consoleObserver) SessionStateChanged(state engine.SessionState) {
	switch state {
	case engine.StateStarted:
		o.started = true
	case engine.StateNeedsCredentials:
		if o.started {
			o.endOnce.Do(func() { close(o.sessionEnded) })
		}
	}
}

func (o *consoleObserver) RoomsChanged(rooms []engine.RoomSummary) {
	fmt.Fprintf(o.out, "-- %d rooms\n", len(rooms))
	for _, room := range rooms {
		marker := "  "
		if room.Unread {
			marker = " *"
		}
		countLine, _, _ := strings.Cut(room.Subtitle, "\n")
		fmt.Fprintf(o.out, "%s %s (%s)\n", marker, room.DisplayName, countLine)
	}
}

func (o *consoleObserver) TimelineUpdated(roomID ref.RoomID, events []messaging.Event) {
	for _, event := range events {
		if event.Type != ref.EventTypeMessage {
			continue
		}
		body, _ := event.Content["body"].(string)
		timestamp := time.UnixMilli(event.OriginServerTS).Format("15:04")
		fmt.Fprintf(o.out, "[%s %s] %s: %s\n", timestamp, roomID, event.Sender, body)
	}
}

var _ engine.Observer = (*consoleObserver)(nil)
