// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/lib/secret"
)

// DirectSession is an authenticated Matrix session.
// It wraps a Client with an access token for making authenticated API calls.
//
// The access token is stored in a secret.Buffer (mmap-backed, locked against
// swap, excluded from core dumps). The caller must call Close when the
// DirectSession is no longer needed.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string

	// transactionCounter generates unique transaction IDs for idempotent sends.
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID (e.g., "@alice:example.org").
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// AccessToken returns the access token as a heap string. This creates a brief
// copy from the mmap-backed buffer — use only at API boundaries that require
// a string (e.g., writing to the credential file). Prefer passing the
// DirectSession itself when possible.
func (s *DirectSession) AccessToken() string {
	return s.accessToken.String()
}

// DeviceID returns the device ID for this session.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a sync error to force
// the next request to establish a fresh TCP connection.
func (s *DirectSession) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close releases the access token memory (zeros, unlocks, unmaps).
// Idempotent — safe to call multiple times.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI validates the access token and returns the user ID.
// Useful for checking whether a stored token is still valid.
func (s *DirectSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	var response WhoAmIResponse
	if err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}
	return response.UserID, nil
}

// Logout invalidates this session's access token on the homeserver.
// The local token memory is still held; the caller should Close the
// session afterwards.
func (s *DirectSession) Logout(ctx context.Context) error {
	if err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, map[string]any{}, nil); err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	return nil
}

// Sync performs an incremental sync with the homeserver.
// For initial sync, leave options.Since empty.
// For long-polling, set options.Timeout to the desired wait in milliseconds.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	path := "/_matrix/client/v3/sync"
	var response SyncResponse
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &response, query); err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}
	return &response, nil
}

// RoomMessages fetches messages from a room with pagination.
func (s *DirectSession) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b" // backward (newest first) by default
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	var response RoomMessagesResponse
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &response, query); err != nil {
		return nil, fmt.Errorf("messaging: room messages for %q failed: %w", roomID, err)
	}
	return &response, nil
}

// JoinedRooms returns the list of room IDs the user has joined.
func (s *DirectSession) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	var response JoinedRoomsResponse
	if err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", s.accessToken, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: joined rooms failed: %w", err)
	}
	return response.JoinedRooms, nil
}

// JoinRoom joins a room by ID. Returns the room ID.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}
	return response.RoomID, nil
}

// LeaveRoom leaves a room by ID.
func (s *DirectSession) LeaveRoom(ctx context.Context, roomID ref.RoomID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/leave", url.PathEscape(roomID.String()))
	if err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}, nil); err != nil {
		return fmt.Errorf("messaging: leave room %q failed: %w", roomID, err)
	}
	return nil
}

// GetRoomState fetches all current state events from a room.
// Returns the full event objects including type, state_key, sender, etc.
func (s *DirectSession) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state", url.PathEscape(roomID.String()))

	var events []Event
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &events); err != nil {
		return nil, fmt.Errorf("messaging: get room state for %q failed: %w", roomID, err)
	}
	return events, nil
}

// GetRoomMembers returns the members of a room.
func (s *DirectSession) GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/members", url.PathEscape(roomID.String()))
	var response RoomMembersResponse
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: get room members for %q failed: %w", roomID, err)
	}

	members := make([]RoomMember, len(response.Chunk))
	for index, event := range response.Chunk {
		members[index] = RoomMember{
			UserID:      event.StateKey,
			DisplayName: event.Content.DisplayName,
			Membership:  event.Content.Membership,
			AvatarURL:   event.Content.AvatarURL,
		}
	}
	return members, nil
}

// GetDisplayName fetches the display name for a Matrix user from their profile.
// Returns an empty string (not an error) if the user has no display name set.
func (s *DirectSession) GetDisplayName(ctx context.Context, userID ref.UserID) (string, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID.String()) + "/displayname"
	var response DisplayNameResponse
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &response); err != nil {
		return "", fmt.Errorf("messaging: get display name for %q failed: %w", userID, err)
	}
	return response.DisplayName, nil
}

// GetAvatarURL fetches the avatar MXC URI for a Matrix user from their
// profile. Returns a zero ContentURI (not an error) if the user has no
// avatar set.
func (s *DirectSession) GetAvatarURL(ctx context.Context, userID ref.UserID) (ref.ContentURI, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID.String()) + "/avatar_url"
	var response AvatarURLResponse
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &response); err != nil {
		return ref.ContentURI{}, fmt.Errorf("messaging: get avatar for %q failed: %w", userID, err)
	}
	if response.AvatarURL == "" {
		return ref.ContentURI{}, nil
	}
	uri, err := ref.ParseContentURI(response.AvatarURL)
	if err != nil {
		return ref.ContentURI{}, fmt.Errorf("messaging: avatar for %q: %w", userID, err)
	}
	return uri, nil
}

// SendMessage sends a message to a room. Returns the event ID of the
// sent message.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, ref.EventTypeMessage, content)
}

// SendEvent sends an event of any type to a room.
// Uses Matrix's idempotent PUT with a transaction ID.
// Returns the event ID.
func (s *DirectSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(string(eventType)),
		url.PathEscape(transactionID),
	)

	var response SendEventResponse
	if err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send event to %q failed: %w", roomID, err)
	}
	return response.EventID, nil
}

// ResolveAlias resolves a room alias (e.g., "#lobby:example.org") to a room ID.
func (s *DirectSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	var response ResolveAliasResponse
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q failed: %w", alias, err)
	}
	return response.RoomID, nil
}

// DownloadMedia streams a media file from the homeserver's content
// repository. Returns the body stream and the Content-Type header. The
// caller must close the stream. Cancelling ctx aborts an in-flight
// download.
//
// Uses the authenticated media endpoint (Matrix v1.11).
func (s *DirectSession) DownloadMedia(ctx context.Context, uri ref.ContentURI) (io.ReadCloser, string, error) {
	if uri.IsZero() {
		return nil, "", fmt.Errorf("messaging: media URI is required")
	}
	path := fmt.Sprintf("/_matrix/client/v1/media/download/%s/%s",
		url.PathEscape(uri.Server()),
		url.PathEscape(uri.MediaID()),
	)
	body, contentType, err := s.client.doRequestStream(ctx, path, s.accessToken)
	if err != nil {
		return nil, "", fmt.Errorf("messaging: download %s failed: %w", uri, err)
	}
	return body, contentType, nil
}

// nextTransactionID generates a unique transaction ID for idempotent event sending.
// Format: "parley-<timestamp_ms>-<counter>" to ensure uniqueness across restarts.
func (s *DirectSession) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("parley-%d-%d", time.Now().UnixMilli(), counter)
}
