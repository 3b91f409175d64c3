// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data —
// passwords typed at login and the Matrix access token held for the
// lifetime of a session.
//
// [Buffer] allocates memory outside the Go heap via
// mmap(MAP_ANONYMOUS), locks it into physical RAM via mlock
// (preventing swap), and marks it excluded from core dumps via
// madvise(MADV_DONTDUMP). On Close the memory is zeroed, unlocked, and
// unmapped. Because the region lives outside the Go heap, the garbage
// collector cannot copy or relocate it, so the secret leaves no stray
// heap copies behind once released.
//
// Access the contents via [Buffer.Bytes] (a slice into the mmap
// region) or [Buffer.String] (a short-lived heap copy for API
// boundaries that require a string, such as the Authorization header).
// After Close any access panics. Close is idempotent.
//
// [Zero] wipes an ordinary byte slice in place; use it on transient
// buffers (decoded JSON bodies, trimmed file contents) that briefly
// held secret material on the heap.
package secret
