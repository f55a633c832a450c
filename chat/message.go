// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"strings"
	"time"
)

// ConversationKey identifies a conversation by its unordered
// participant pair. The canonical form sorts the two user ids, so both
// parties derive the same key.
type ConversationKey string

// NewConversationKey returns the canonical key for the two
// participants.
func NewConversationKey(a, b string) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey(a + "|" + b)
}

// Participants returns the two user ids in canonical order.
func (k ConversationKey) Participants() (string, string) {
	a, b, _ := strings.Cut(string(k), "|")
	return a, b
}

// Other returns the participant that is not self.
func (k ConversationKey) Other(self string) string {
	a, b := k.Participants()
	if a == self {
		return b
	}
	return a
}

// Delivery is a message's local delivery state.
type Delivery string

const (
	// DeliveryOptimistic marks a message shown locally while its send
	// is in flight. It carries a temporary id and the local send time.
	DeliveryOptimistic Delivery = "optimistic"

	// DeliveryConfirmed marks a message the server has accepted; id
	// and timestamp are the server's.
	DeliveryConfirmed Delivery = "confirmed"

	// DeliveryFailed marks a message whose send failed. It stays
	// visible and can be retried.
	DeliveryFailed Delivery = "failed"
)

// Message is one chat message. The wire shape matches the server's
// JSON; Key and Delivery are local sync state.
type Message struct {
	// ID is the server-assigned id once confirmed; until then it is a
	// temporary "tmp-" id that never collides with a server id.
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`

	Key      ConversationKey `json:"-"`
	Delivery Delivery        `json:"-"`
}

// Temporary reports whether the message still carries a temporary id.
func (m Message) Temporary() bool {
	return strings.HasPrefix(m.ID, tempIDPrefix)
}

const tempIDPrefix = "tmp-"
