// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/messaging"
)

// storedEvent is the CBOR payload shape. Identifier types are stored as
// plain strings; they were validated on the way into the cache, and
// decoding re-validates them.
type storedEvent struct {
	EventID        string         `cbor:"1,keyasint"`
	Type           string         `cbor:"2,keyasint"`
	Sender         string         `cbor:"3,keyasint"`
	OriginServerTS int64          `cbor:"4,keyasint"`
	Content        map[string]any `cbor:"5,keyasint,omitempty"`
	StateKey       *string        `cbor:"6,keyasint,omitempty"`
}

// codec turns events into zstd-compressed CBOR blobs and back. Safe for
// concurrent use.
type codec struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

func newCodec() (*codec, error) {
	compressor, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("eventstore: creating zstd encoder: %w", err)
	}
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		compressor.Close()
		return nil, fmt.Errorf("eventstore: creating zstd decoder: %w", err)
	}
	return &codec{compressor: compressor, decompressor: decompressor}, nil
}

func (c *codec) encode(event messaging.Event) ([]byte, error) {
	stored := storedEvent{
		EventID:        event.EventID.String(),
		Type:           string(event.Type),
		Sender:         event.Sender.String(),
		OriginServerTS: event.OriginServerTS,
		Content:        event.Content,
		StateKey:       event.StateKey,
	}
	encoded, err := cbor.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("eventstore: encoding event %s: %w", event.EventID, err)
	}
	return c.compressor.EncodeAll(encoded, nil), nil
}

func (c *codec) decode(payload []byte, roomID ref.RoomID) (messaging.Event, error) {
	decompressed, err := c.decompressor.DecodeAll(payload, nil)
	if err != nil {
		return messaging.Event{}, fmt.Errorf("eventstore: decompressing event payload: %w", err)
	}

	var stored storedEvent
	if err := cbor.Unmarshal(decompressed, &stored); err != nil {
		return messaging.Event{}, fmt.Errorf("eventstore: decoding event payload: %w", err)
	}

	eventID, err := ref.ParseEventID(stored.EventID)
	if err != nil {
		return messaging.Event{}, fmt.Errorf("eventstore: stored event ID: %w", err)
	}
	sender, err := ref.ParseUserID(stored.Sender)
	if err != nil {
		return messaging.Event{}, fmt.Errorf("eventstore: stored sender: %w", err)
	}

	return messaging.Event{
		EventID:        eventID,
		Type:           ref.EventType(stored.Type),
		Sender:         sender,
		OriginServerTS: stored.OriginServerTS,
		Content:        stored.Content,
		RoomID:         roomID,
		StateKey:       stored.StateKey,
	}, nil
}

func (c *codec) close() {
	c.compressor.Close()
	c.decompressor.Close()
}
