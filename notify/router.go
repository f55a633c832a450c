// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify routes inbound socket events to the booking and chat
// stores and raises user-facing alerts through the AlertSink. Event
// types with no subscription registered here are simply never
// delivered, so unknown server events are ignored by construction.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/packride/packride-go/booking"
	"github.com/packride/packride-go/chat"
	"github.com/packride/packride-go/realtime"
)

// Severity classifies an alert for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is one user-facing notification. BookingID and Conversation
// are navigation hints: set when the alert concerns a specific booking
// or conversation.
type Alert struct {
	Severity     Severity
	Message      string
	BookingID    string
	Conversation chat.ConversationKey
}

// AlertSink receives alerts; the rendering layer implements it.
type AlertSink interface {
	Alert(alert Alert)
}

// BookingState is the booking-store surface the router drives.
type BookingState interface {
	ApplyPush(b booking.Booking, hint booking.Collection)
}

// ChatState is the chat-store surface the router drives.
type ChatState interface {
	ApplyIncoming(m chat.Message)
	ApplyRemoteTyping(key chat.ConversationKey, typing bool)
}

// RouterConfig holds configuration for creating a Router.
type RouterConfig struct {
	// Bookings receives booking pushes. Required.
	Bookings BookingState

	// Chats receives chat messages and typing signals. Required.
	Chats ChatState

	// Sink receives user-facing alerts. Required.
	Sink AlertSink

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Router subscribes to the event bus and fans events out to the
// stores and the alert sink. One router per session; Close releases
// every subscription.
type Router struct {
	bookings BookingState
	chats    ChatState
	sink     AlertSink
	logger   *slog.Logger

	mu     sync.Mutex
	active chat.ConversationKey

	subs realtime.SubscriptionSet
}

// NewRouter creates a Router. Call Bind to attach it to a bus.
func NewRouter(config RouterConfig) (*Router, error) {
	if config.Bookings == nil {
		return nil, fmt.Errorf("notify: Bookings state is required")
	}
	if config.Chats == nil {
		return nil, fmt.Errorf("notify: Chats state is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("notify: Sink is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		bookings: config.Bookings,
		chats:    config.Chats,
		sink:     config.Sink,
		logger:   logger,
	}, nil
}

// Bind registers the router's subscriptions on the bus.
func (r *Router) Bind(bus *realtime.Bus) {
	r.subs.Add(bus.On(realtime.EventBookingRequestReceived, r.onBookingRequest))
	r.subs.Add(bus.On(realtime.EventBookingStatusChanged, r.onBookingStatus))
	r.subs.Add(bus.On(realtime.EventChatMessage, r.onChatMessage))
	r.subs.Add(bus.On(realtime.EventUserTyping, r.typingHandler(true)))
	r.subs.Add(bus.On(realtime.EventStopTyping, r.typingHandler(false)))
	r.subs.Add(bus.On(realtime.EventDisconnected, r.onDisconnected))
	r.subs.Add(bus.On(realtime.EventOffline, r.onOffline))
	r.subs.Add(bus.On(realtime.EventAuthFailed, r.onAuthFailed))
}

// Close releases every subscription the router registered.
func (r *Router) Close() {
	r.subs.Close()
}

// SetActiveConversation marks the conversation the user is currently
// viewing; message alerts for it are suppressed. Pass the zero key
// when no conversation is open.
func (r *Router) SetActiveConversation(key chat.ConversationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = key
}

func (r *Router) activeConversation() chat.ConversationKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Router) onBookingRequest(event realtime.Event) {
	var b booking.Booking
	if err := json.Unmarshal(event.Payload, &b); err != nil {
		r.dropPayload(event, err)
		return
	}
	r.bookings.ApplyPush(b, booking.CollectionReceived)
	r.sink.Alert(Alert{
		Severity:  SeverityInfo,
		Message:   "new booking request received",
		BookingID: b.ID,
	})
}

func (r *Router) onBookingStatus(event realtime.Event) {
	var b booking.Booking
	if err := json.Unmarshal(event.Payload, &b); err != nil {
		r.dropPayload(event, err)
		return
	}
	r.bookings.ApplyPush(b, booking.CollectionMine)
	r.sink.Alert(Alert{
		Severity:  statusSeverity(b.Status),
		Message:   "booking " + string(b.Status),
		BookingID: b.ID,
	})
}

// statusSeverity maps a booking status transition to its alert
// severity.
func statusSeverity(status booking.Status) Severity {
	switch status {
	case booking.StatusAccepted:
		return SeveritySuccess
	case booking.StatusRejected:
		return SeverityWarning
	case booking.StatusCancelled:
		return SeverityError
	default:
		return SeverityInfo
	}
}

func (r *Router) onChatMessage(event realtime.Event) {
	var m chat.Message
	if err := json.Unmarshal(event.Payload, &m); err != nil {
		r.dropPayload(event, err)
		return
	}
	r.chats.ApplyIncoming(m)

	key := chat.NewConversationKey(m.SenderID, m.ReceiverID)
	if key == r.activeConversation() {
		return
	}
	r.sink.Alert(Alert{
		Severity:     SeverityInfo,
		Message:      "new message",
		Conversation: key,
	})
}

func (r *Router) typingHandler(typing bool) realtime.Handler {
	return func(event realtime.Event) {
		var payload struct {
			SenderID   string `json:"senderId"`
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			r.dropPayload(event, err)
			return
		}
		key := chat.NewConversationKey(payload.SenderID, payload.ReceiverID)
		r.chats.ApplyRemoteTyping(key, typing)
	}
}

func (r *Router) onDisconnected(event realtime.Event) {
	r.sink.Alert(Alert{
		Severity: SeverityWarning,
		Message:  "connection lost, reconnecting",
	})
}

func (r *Router) onOffline(event realtime.Event) {
	r.sink.Alert(Alert{
		Severity: SeverityError,
		Message:  "you are offline",
	})
}

func (r *Router) onAuthFailed(event realtime.Event) {
	r.sink.Alert(Alert{
		Severity: SeverityError,
		Message:  "session expired, please log in again",
	})
}

func (r *Router) dropPayload(event realtime.Event, err error) {
	r.logger.Warn("dropping event payload",
		"event", event.Type,
		"error", err,
	)
}
