// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"encoding/json"
	"time"
)

// Client→server event names. These are the server-defined protocol
// vocabulary; payload shapes are JSON objects matching the entity
// shapes in the booking and chat packages.
const (
	// EventRegisterUser is the auth handshake: the first frame after
	// the transport opens, carrying the bearer token and user id.
	EventRegisterUser = "register-user"

	// EventSendMessage sends a chat message; the server acks with the
	// confirmed message (permanent id, server timestamp).
	EventSendMessage = "send-message"

	// EventTyping and EventStopTyping drive the remote typing
	// indicator for a conversation.
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"

	// EventStatusChangeNotify tells the server to broadcast a booking
	// status change to the other party.
	EventStatusChangeNotify = "status-change-notify"
)

// Server→client event names.
const (
	// EventRegistered confirms the auth handshake.
	EventRegistered = "registered"

	// EventAck carries the response to a Call, correlated by ack id.
	EventAck = "ack"

	// EventBookingRequestReceived announces a new booking request
	// against one of the current user's journeys.
	EventBookingRequestReceived = "booking-request-received"

	// EventBookingStatusChanged announces an authoritative status
	// transition on a booking this user is party to.
	EventBookingStatusChanged = "booking-status-changed"

	// EventChatMessage delivers a chat message from another user.
	EventChatMessage = "chat-message"

	// EventUserTyping signals the remote party is typing; it expires
	// locally unless refreshed. EventStopTyping clears it explicitly.
	EventUserTyping = "user-typing"

	// EventError is the server's generic error event.
	EventError = "error"
)

// Connection lifecycle event names, published locally by Conn.
const (
	// EventConnected fires when the connection (or a reconnection)
	// completes its handshake.
	EventConnected = "connect"

	// EventDisconnected fires immediately on unexpected transport
	// loss, before reconnection starts, and on caller-initiated Close.
	EventDisconnected = "disconnect"

	// EventAuthFailed fires when the handshake is rejected; the
	// session must re-authenticate, no automatic retry happens.
	EventAuthFailed = "auth-failed"

	// EventOffline fires once when reconnection attempts are
	// exhausted. The disconnected state persists until the caller
	// reconnects explicitly.
	EventOffline = "offline"
)

// Status is the connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// Event is an immutable inbound message delivered to Bus subscribers.
// Events are consumed and discarded; the bus retains nothing.
type Event struct {
	// Type is the event name (one of the constants above, or a type
	// this client version does not know — unknown types are delivered
	// and ignored by routers for forward compatibility).
	Type string

	// Payload is the raw JSON payload for the consumer to unmarshal.
	Payload json.RawMessage

	// ReceivedAt is when the frame arrived on this client.
	ReceivedAt time.Time
}

// envelope is the wire frame: every message in both directions is one
// JSON envelope. Acks correlate to Calls by AckID; the server sets
// Error instead of Payload when it rejects a Call.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	AckID   string          `json:"ack_id,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// registerPayload is the auth handshake payload.
type registerPayload struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// errorPayload is the shape of the server's generic error event.
type errorPayload struct {
	Message string `json:"message"`
}
