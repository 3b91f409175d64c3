// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// SessionState is the lifecycle state of the sync engine.
//
// The engine moves NeedsCredentials → NotStarted → Starting → Started.
// A failed start stays in Starting so the caller can retry; an
// authentication failure or a logout drops back to NeedsCredentials.
type SessionState int

const (
	// StateNeedsCredentials means no valid session is attached. The
	// user must log in (or stored credentials must be restored) before
	// anything else can happen.
	StateNeedsCredentials SessionState = iota

	// StateNotStarted means a session is attached but syncing has not
	// begun.
	StateNotStarted

	// StateStarting means the initial sync is in progress, or a
	// previous start attempt failed and may be retried.
	StateStarting

	// StateStarted means the initial sync completed and the live sync
	// loop is running.
	StateStarted
)

func (s SessionState) String() string {
	switch s {
	case StateNeedsCredentials:
		return "needs-credentials"
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// StartError is returned by Start when the initial sync fails.
type StartError struct {
	// Retryable is true when calling Start again may succeed, such as
	// after a network failure. It is false when the access token was
	// rejected; the engine has already dropped back to
	// NeedsCredentials in that case.
	Retryable bool

	// Err is the underlying failure.
	Err error
}

func (e *StartError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("engine: start failed (retryable): %v", e.Err)
	}
	return fmt.Sprintf("engine: start failed: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
