// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parley-im/parley/lib/ref"
)

// noTopicPlaceholder fills the subtitle's second line when the room
// has no topic.
const noTopicPlaceholder = "No topic"

// roomDisplayName resolves the name to show for a room: the explicit
// room name, then the canonical alias, then the other members' names
// joined with commas. A room with no name and no other members shows
// as "Empty room".
func roomDisplayName(room *roomState, self ref.UserID) string {
	if room.name != "" {
		return room.name
	}
	if room.canonicalAlias != "" {
		return room.canonicalAlias
	}

	names := otherMemberNames(room, self)
	if len(names) == 0 {
		return "Empty room"
	}
	return strings.Join(names, ", ")
}

// otherMemberNames returns the display names of every joined member
// except self, sorted for stable output. Members without a display
// name fall back to their user ID.
func otherMemberNames(room *roomState, self ref.UserID) []string {
	names := make([]string, 0, len(room.members))
	for userID, member := range room.members {
		if userID == self {
			continue
		}
		if member.displayName != "" {
			names = append(names, member.displayName)
		} else {
			names = append(names, userID.String())
		}
	}
	sort.Strings(names)
	return names
}

// roomSubtitle builds the two-line room description: a member count
// line, then the topic or a placeholder.
func roomSubtitle(room *roomState) string {
	var countLine string
	switch count := len(room.members); {
	case count <= 1:
		countLine = "Empty room"
	case count == 2:
		countLine = "Direct chat"
	default:
		countLine = fmt.Sprintf("%d members", count)
	}

	topicLine := room.topic
	if topicLine == "" {
		topicLine = noTopicPlaceholder
	}
	return countLine + "\n" + topicLine
}

// roomAvatar picks the avatar for a room. Rooms with more than two
// members show the room's own avatar. Direct chats (two or fewer
// members) prefer the room avatar but fall back to the other
// participant's profile avatar.
func roomAvatar(room *roomState, self ref.UserID) ref.ContentURI {
	own := parseAvatar(room.avatarURL)
	if len(room.members) > 2 {
		return own
	}
	if !own.IsZero() {
		return own
	}
	for userID, member := range room.members {
		if userID == self {
			continue
		}
		if uri := parseAvatar(member.avatarURL); !uri.IsZero() {
			return uri
		}
	}
	return ref.ContentURI{}
}

// parseAvatar converts a raw mxc string to a ContentURI, treating
// malformed values as unset.
func parseAvatar(raw string) ref.ContentURI {
	if raw == "" {
		return ref.ContentURI{}
	}
	uri, err := ref.ParseContentURI(raw)
	if err != nil {
		return ref.ContentURI{}
	}
	return uri
}

// SortSummaries orders rooms for display: ascending weight, then
// display name (lexicographic), then room ID for determinism.
func SortSummaries(rooms []RoomSummary) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Weight != rooms[j].Weight {
			return rooms[i].Weight < rooms[j].Weight
		}
		if rooms[i].DisplayName != rooms[j].DisplayName {
			return rooms[i].DisplayName < rooms[j].DisplayName
		}
		return rooms[i].ID.String() < rooms[j].ID.String()
	})
}
