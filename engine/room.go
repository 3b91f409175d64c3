// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

// RoomSummary is the display projection of one room, delivered to
// observers and returned by Rooms. It is a value snapshot; the engine
// never mutates a summary after handing it out.
type RoomSummary struct {
	// ID is the room ID.
	ID ref.RoomID

	// Membership is the local user's membership: "join" or "invite".
	Membership string

	// DisplayName is the resolved room name: the m.room.name, falling
	// back to the canonical alias, falling back to the other members'
	// names.
	DisplayName string

	// Subtitle is a two-line description: a member count line
	// ("Direct chat", "5 members"), then the topic or a placeholder.
	Subtitle string

	// AvatarURL is the avatar to show for the room: the room's own
	// avatar, or for direct chats the other participant's. Zero when
	// neither is set.
	AvatarURL ref.ContentURI

	// Unread is true when a message arrived while the room was not
	// selected. Cleared by SelectRoom.
	Unread bool

	// Weight orders rooms in the list; lower sorts first. Reserved
	// for pinning, zero for every room today.
	Weight int

	// MemberCount is the number of joined members, including the
	// local user.
	MemberCount int

	// LastActivity is the origin server timestamp (milliseconds) of
	// the newest cached event, zero when the timeline is empty.
	LastActivity int64
}

// memberInfo is what the engine tracks per joined room member.
type memberInfo struct {
	displayName string
	avatarURL   string
}

// roomState is the engine's mutable record for one room. Owned by the
// engine's mutex; summaries are built from it on demand.
type roomState struct {
	id             ref.RoomID
	membership     string
	name           string
	topic          string
	canonicalAlias string
	avatarURL      string
	members        map[ref.UserID]memberInfo
	prevBatch      string
	unread         bool
	weight         int
	lastActivity   int64
}

func newRoomState(id ref.RoomID, membership string) *roomState {
	return &roomState{
		id:         id,
		membership: membership,
		members:    make(map[ref.UserID]memberInfo),
	}
}

// applyStateEvent folds one state event into the room record. Returns
// true if a summary-relevant field changed.
func (r *roomState) applyStateEvent(event messaging.Event) bool {
	switch event.Type {
	case ref.EventTypeName:
		name, _ := event.Content["name"].(string)
		if r.name == name {
			return false
		}
		r.name = name
		return true

	case ref.EventTypeTopic:
		topic, _ := event.Content["topic"].(string)
		if r.topic == topic {
			return false
		}
		r.topic = topic
		return true

	case ref.EventTypeCanonicalAlias:
		alias, _ := event.Content["alias"].(string)
		if r.canonicalAlias == alias {
			return false
		}
		r.canonicalAlias = alias
		return true

	case ref.EventTypeAvatar:
		url, _ := event.Content["url"].(string)
		if r.avatarURL == url {
			return false
		}
		r.avatarURL = url
		return true

	case ref.EventTypeMember:
		if event.StateKey == nil {
			return false
		}
		userID, err := ref.ParseUserID(*event.StateKey)
		if err != nil {
			return false
		}
		membership, _ := event.Content["membership"].(string)
		if membership == "join" {
			displayName, _ := event.Content["displayname"].(string)
			avatarURL, _ := event.Content["avatar_url"].(string)
			r.members[userID] = memberInfo{displayName: displayName, avatarURL: avatarURL}
			return true
		}
		if _, present := r.members[userID]; present {
			delete(r.members, userID)
			return true
		}
		return false

	default:
		return false
	}
}

// summary builds the display snapshot for the local user self.
func (r *roomState) summary(self ref.UserID) RoomSummary {
	return RoomSummary{
		ID:           r.id,
		Membership:   r.membership,
		DisplayName:  roomDisplayName(r, self),
		Subtitle:     roomSubtitle(r),
		AvatarURL:    roomAvatar(r, self),
		Unread:       r.unread,
		Weight:       r.weight,
		MemberCount:  len(r.members),
		LastActivity: r.lastActivity,
	}
}
