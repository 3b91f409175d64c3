// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"testing"

	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

var (
	summaryRoom = ref.MustParseRoomID("!room:example.org")
	selfUser    = ref.MustParseUserID("@alice:example.org")
	bobUser     = ref.MustParseUserID("@bob:example.org")
	carolUser   = ref.MustParseUserID("@carol:example.org")
)

func joinedRoom(members map[ref.UserID]memberInfo) *roomState {
	room := newRoomState(summaryRoom, "join")
	for userID, member := range members {
		room.members[userID] = member
	}
	return room
}

func TestRoomDisplayName(t *testing.T) {
	tests := []struct {
		name string
		room *roomState
		want string
	}{
		{
			name: "explicit name wins",
			room: func() *roomState {
				room := joinedRoom(map[ref.UserID]memberInfo{
					selfUser: {displayName: "Alice"},
					bobUser:  {displayName: "Bob"},
				})
				room.name = "Foo"
				room.canonicalAlias = "#foo:example.org"
				return room
			}(),
			want: "Foo",
		},
		{
			name: "canonical alias when unnamed",
			room: func() *roomState {
				room := joinedRoom(nil)
				room.canonicalAlias = "#foo:example.org"
				return room
			}(),
			want: "#foo:example.org",
		},
		{
			name: "single other member",
			room: joinedRoom(map[ref.UserID]memberInfo{
				selfUser: {displayName: "Alice"},
				bobUser:  {displayName: "Bob"},
			}),
			want: "Bob",
		},
		{
			name: "multiple other members comma joined",
			room: joinedRoom(map[ref.UserID]memberInfo{
				selfUser:  {displayName: "Alice"},
				bobUser:   {displayName: "Bob"},
				carolUser: {displayName: "Carol"},
			}),
			want: "Bob, Carol",
		},
		{
			name: "member without display name falls back to user ID",
			room: joinedRoom(map[ref.UserID]memberInfo{
				selfUser: {displayName: "Alice"},
				bobUser:  {},
			}),
			want: "@bob:example.org",
		},
		{
			name: "alone in the room",
			room: joinedRoom(map[ref.UserID]memberInfo{
				selfUser: {displayName: "Alice"},
			}),
			want: "Empty room",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := roomDisplayName(test.room, selfUser); got != test.want {
				t.Errorf("roomDisplayName = %q, want %q", got, test.want)
			}
		})
	}
}

func TestRoomSubtitle(t *testing.T) {
	tests := []struct {
		name        string
		memberCount int
		topic       string
		want        string
	}{
		{name: "empty room", memberCount: 0, want: "Empty room\nNo topic"},
		{name: "just self", memberCount: 1, want: "Empty room\nNo topic"},
		{name: "direct chat", memberCount: 2, want: "Direct chat\nNo topic"},
		{name: "group", memberCount: 5, want: "5 members\nNo topic"},
		{name: "with topic", memberCount: 2, topic: "Plans", want: "Direct chat\nPlans"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			room := newRoomState(summaryRoom, "join")
			room.topic = test.topic
			for i := range test.memberCount {
				userID := ref.MustParseUserID(fmt.Sprintf("@user%d:example.org", i))
				room.members[userID] = memberInfo{}
			}
			if got := roomSubtitle(room); got != test.want {
				t.Errorf("roomSubtitle = %q, want %q", got, test.want)
			}
		})
	}
}

func TestRoomAvatar(t *testing.T) {
	roomAvatarURI := "mxc://example.org/room"
	bobAvatarURI := "mxc://example.org/bob"

	t.Run("group shows room avatar", func(t *testing.T) {
		room := joinedRoom(map[ref.UserID]memberInfo{
			selfUser:  {},
			bobUser:   {avatarURL: bobAvatarURI},
			carolUser: {},
		})
		room.avatarURL = roomAvatarURI
		if got := roomAvatar(room, selfUser); got.String() != roomAvatarURI {
			t.Errorf("avatar = %q", got)
		}
	})

	t.Run("group without room avatar shows nothing", func(t *testing.T) {
		room := joinedRoom(map[ref.UserID]memberInfo{
			selfUser:  {},
			bobUser:   {avatarURL: bobAvatarURI},
			carolUser: {},
		})
		if got := roomAvatar(room, selfUser); !got.IsZero() {
			t.Errorf("avatar = %q, want zero", got)
		}
	})

	t.Run("direct chat prefers room avatar", func(t *testing.T) {
		room := joinedRoom(map[ref.UserID]memberInfo{
			selfUser: {},
			bobUser:  {avatarURL: bobAvatarURI},
		})
		room.avatarURL = roomAvatarURI
		if got := roomAvatar(room, selfUser); got.String() != roomAvatarURI {
			t.Errorf("avatar = %q", got)
		}
	})

	t.Run("direct chat falls back to participant avatar", func(t *testing.T) {
		room := joinedRoom(map[ref.UserID]memberInfo{
			selfUser: {},
			bobUser:  {avatarURL: bobAvatarURI},
		})
		if got := roomAvatar(room, selfUser); got.String() != bobAvatarURI {
			t.Errorf("avatar = %q", got)
		}
	})

	t.Run("malformed avatar treated as unset", func(t *testing.T) {
		room := joinedRoom(map[ref.UserID]memberInfo{
			selfUser: {},
			bobUser:  {avatarURL: "https://not-mxc.example.org/x"},
		})
		if got := roomAvatar(room, selfUser); !got.IsZero() {
			t.Errorf("avatar = %q, want zero", got)
		}
	})
}

func TestSortSummaries(t *testing.T) {
	summaries := []RoomSummary{
		{ID: ref.MustParseRoomID("!c:example.org"), DisplayName: "zebra", Weight: 0},
		{ID: ref.MustParseRoomID("!a:example.org"), DisplayName: "Apple", Weight: 1},
		{ID: ref.MustParseRoomID("!b:example.org"), DisplayName: "apple", Weight: 0},
		{ID: ref.MustParseRoomID("!e:example.org"), DisplayName: "Mango", Weight: 0},
		{ID: ref.MustParseRoomID("!d:example.org"), DisplayName: "Mango", Weight: 0},
	}

	SortSummaries(summaries)

	// Weight ascending, then the name compared byte-wise so "Mango"
	// sorts before "apple", then room ID for identical names.
	want := []string{"!d:example.org", "!e:example.org", "!b:example.org", "!c:example.org", "!a:example.org"}
	for i, id := range want {
		if got := summaries[i].ID.String(); got != id {
			t.Errorf("summaries[%d] = %s, want %s", i, got, id)
		}
	}
}

func TestApplyStateEvent(t *testing.T) {
	room := newRoomState(summaryRoom, "join")

	stateKey := bobUser.String()
	events := []messaging.Event{
		{
			EventID: ref.MustParseEventID("$name"),
			Type:    ref.EventTypeName,
			Content: map[string]any{"name": "Ops"},
		},
		{
			EventID: ref.MustParseEventID("$topic"),
			Type:    ref.EventTypeTopic,
			Content: map[string]any{"topic": "Incidents"},
		},
		{
			EventID:  ref.MustParseEventID("$member"),
			Type:     ref.EventTypeMember,
			StateKey: &stateKey,
			Content:  map[string]any{"membership": "join", "displayname": "Bob"},
		},
	}
	for _, event := range events {
		if !room.applyStateEvent(event) {
			t.Errorf("applyStateEvent(%s) reported no change", event.Type)
		}
	}

	if room.name != "Ops" || room.topic != "Incidents" {
		t.Errorf("room = %+v", room)
	}
	if member, ok := room.members[bobUser]; !ok || member.displayName != "Bob" {
		t.Errorf("members = %+v", room.members)
	}

	// Re-applying the same name is not a change.
	if room.applyStateEvent(events[0]) {
		t.Error("idempotent state event reported a change")
	}

	// A leave removes the member.
	leave := messaging.Event{
		EventID:  ref.MustParseEventID("$left"),
		Type:     ref.EventTypeMember,
		StateKey: &stateKey,
		Content:  map[string]any{"membership": "leave"},
	}
	if !room.applyStateEvent(leave) {
		t.Error("leave event reported no change")
	}
	if _, ok := room.members[bobUser]; ok {
		t.Error("member survived leave event")
	}
}
