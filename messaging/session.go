// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"io"

	"github.com/parley-im/parley/lib/ref"
)

// Session is the interface for the Matrix operations the sync engine
// performs. The production implementation is *DirectSession; tests
// substitute fakes.
//
// Credential-handling methods (AccessToken, DeviceID) are not part of
// this interface. Code that needs them should type-assert to
// *DirectSession.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID
	// (e.g., "@alice:example.org").
	UserID() ref.UserID

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// WhoAmI validates the session and returns the user ID.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// Logout invalidates the access token on the homeserver.
	Logout(ctx context.Context) error

	// Sync performs an incremental sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// RoomMessages fetches paginated messages from a room.
	RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error)

	// JoinedRooms returns the list of room IDs the user has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// JoinRoom joins a room by room ID. Returns the room ID. To join
	// by alias, resolve with ResolveAlias first.
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)

	// LeaveRoom leaves a room by room ID.
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error

	// GetRoomState fetches all current state events from a room.
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error)

	// GetRoomMembers returns the members of a room.
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error)

	// GetDisplayName fetches a user's display name.
	GetDisplayName(ctx context.Context, userID ref.UserID) (string, error)

	// GetAvatarURL fetches a user's avatar MXC URI.
	GetAvatarURL(ctx context.Context, userID ref.UserID) (ref.ContentURI, error)

	// SendMessage sends a message to a room. Returns the event ID.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)

	// SendEvent sends an event of any type to a room. Returns the event ID.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)

	// ResolveAlias resolves a room alias to a room ID.
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)

	// DownloadMedia streams a media file from the content repository.
	// The caller must close the returned stream.
	DownloadMedia(ctx context.Context, uri ref.ContentURI) (io.ReadCloser, string, error)

	// CloseIdleConnections drops pooled HTTP connections after a
	// network disruption.
	CloseIdleConnections()
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
