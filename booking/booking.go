// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package booking

import (
	"time"
)

// Status is a booking's lifecycle state. pending is the only
// non-terminal status: accepted, rejected, and cancelled are final.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusCancelled
}

// Booking is one parcel-delivery booking: a requester asking the owner
// of a journey to carry a parcel. The wire shape matches the server's
// JSON; the unexported-tag fields are local sync state only.
type Booking struct {
	ID          string    `json:"id"`
	JourneyID   string    `json:"journeyId"`
	RequesterID string    `json:"requesterId"`
	OwnerID     string    `json:"ownerId"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// PendingLocalStatus is the optimistic status shown while a change
	// is in flight. Zero when no mutation is pending. Never
	// authoritative: the server's answer replaces or reverts it.
	PendingLocalStatus Status `json:"-"`

	// Updating marks an in-flight mutation so the UI can disable the
	// booking's actions.
	Updating bool `json:"-"`
}

// DisplayStatus returns the status the UI should render: the
// optimistic one while a change is in flight, the authoritative one
// otherwise.
func (b Booking) DisplayStatus() Status {
	if b.PendingLocalStatus != "" {
		return b.PendingLocalStatus
	}
	return b.Status
}

// Collection names the two booking lists the store maintains.
type Collection string

const (
	// CollectionMine holds bookings this user is a party to: requests
	// they made, plus received requests they accepted.
	CollectionMine Collection = "my-bookings"

	// CollectionReceived holds pending requests from other users
	// against this user's journeys.
	CollectionReceived Collection = "requests-received"
)
