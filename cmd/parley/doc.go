// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Parley is a terminal Matrix client engine. "parley login" stores a
// session, "parley run" syncs and prints room activity, "parley
// logout" invalidates the session and clears local state.
package main
