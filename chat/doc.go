// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat keeps the session's conversations in sync: one-time
// history loads over HTTP, optimistic sends over the socket with
// temporary ids until the server confirms, incoming pushes, and
// typing indicators with throttled emission and timed expiry.
package chat
