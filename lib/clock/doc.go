// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so reconnect
// backoff, typing expiry, and message timestamps are deterministic
// under test. Production code uses Real(); tests use Fake() and drive
// it with Advance.
package clock
