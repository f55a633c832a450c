// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential defines the opaque token/user-id store the sync
// engine reads its identity from, plus a local expiry check for
// failing fast on dead bearer tokens.
package credential
