// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is Parley's sync engine: the stateful core that turns
// a Matrix session into a live local model of the user's rooms.
//
// The engine owns a lifecycle state machine ([SessionState]), an
// in-memory event cache seeded from the persistent store, and a room
// list projected from room state events ([RoomSummary]). After Start,
// a background loop long-polls /sync and folds each response into the
// model; observers subscribe for state, room list, and timeline
// notifications, all delivered in order on a single notification
// goroutine.
//
// The engine consumes the homeserver through the messaging.Session
// interface, so tests drive it with a fake homeserver.
package engine
