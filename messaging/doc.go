// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API
// that Parley needs.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles password login and token restoration,
// returning authenticated sessions. Client holds the homeserver URL and
// HTTP transport, shared across all sessions derived from it.
//
// [DirectSession] wraps a Client with an access token for authenticated
// operations: incremental sync with long-polling, room message
// pagination, room membership (join, leave, joined rooms), room state
// and member listings, profile lookups, message sending, media
// download, and logout. [Session] is the interface the sync engine
// consumes; tests substitute a fake homeserver behind it.
//
// Sessions are lightweight (a pointer to the parent Client plus an
// access token in mmap-backed secret.Buffer memory). The access token
// is locked against swap and excluded from core dumps; callers must
// call Close to release the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded characters.
package messaging
