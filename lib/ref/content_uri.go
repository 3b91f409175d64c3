// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// ContentURI is a validated Matrix content locator
// (e.g., "mxc://example.org/GCmhgzMPRjqgpODLsNQzVuHZ").
//
// Content URIs name media (avatars, attachments) stored on a
// homeserver. They carry no fetchable address themselves: the media
// resolver translates a ContentURI into a homeserver download URL.
// Avatars arrive in m.room.avatar state events and member profiles and
// are parsed at the boundary; a missing avatar is the zero value, not
// an error.
//
// ContentURI is an immutable value type. The zero value is not valid;
// use IsZero to check.
type ContentURI struct {
	server  string
	mediaID string
}

const mxcScheme = "mxc://"

// ParseContentURI validates and wraps a raw mxc:// URI string.
func ParseContentURI(raw string) (ContentURI, error) {
	if raw == "" {
		return ContentURI{}, fmt.Errorf("empty content URI")
	}
	if !strings.HasPrefix(raw, mxcScheme) {
		return ContentURI{}, fmt.Errorf("content URI must start with %q: %q", mxcScheme, raw)
	}
	rest := raw[len(mxcScheme):]
	server, mediaID, found := strings.Cut(rest, "/")
	if !found || server == "" || mediaID == "" {
		return ContentURI{}, fmt.Errorf("content URI must be mxc://server/mediaID: %q", raw)
	}
	if strings.ContainsAny(mediaID, "/?#") {
		return ContentURI{}, fmt.Errorf("content URI media ID contains reserved characters: %q", raw)
	}
	return ContentURI{server: server, mediaID: mediaID}, nil
}

// MustParseContentURI is like ParseContentURI but panics on error. Use
// in tests and static initialization where the input is known-valid.
func MustParseContentURI(raw string) ContentURI {
	c, err := ParseContentURI(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseContentURI(%q): %v", raw, err))
	}
	return c
}

// String returns the full mxc:// URI string.
func (c ContentURI) String() string {
	if c.IsZero() {
		return ""
	}
	return mxcScheme + c.server + "/" + c.mediaID
}

// IsZero reports whether the ContentURI is the zero value (no media).
func (c ContentURI) IsZero() bool { return c.server == "" }

// Server returns the homeserver that stores the media.
func (c ContentURI) Server() string { return c.server }

// MediaID returns the opaque media identifier.
func (c ContentURI) MediaID() string { return c.mediaID }

// MarshalText implements encoding.TextMarshaler.
func (c ContentURI) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the
// mxc:// format. An empty input produces the zero value.
func (c *ContentURI) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*c = ContentURI{}
		return nil
	}
	parsed, err := ParseContentURI(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
