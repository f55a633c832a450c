// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package booking keeps the session's booking-request state in sync
// with the server: the bookings the user is a party to, the pending
// requests received against their journeys, optimistic status changes,
// and authoritative merges from server pushes.
package booking
