// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/packride/packride-go/lib/clock"
	"github.com/packride/packride-go/lib/credential"
	"github.com/packride/packride-go/realtime"
)

// Caller is the socket surface the store needs: acked round trips for
// message sends and fire-and-forget sends for typing signals.
// realtime.Conn satisfies it.
type Caller interface {
	Call(ctx context.Context, event string, payload any) (json.RawMessage, error)
	Send(event string, payload any) error
}

// History is the REST surface for one-time history fetches. api.Client
// satisfies it.
type History interface {
	Messages(ctx context.Context, senderID, receiverID string) ([]Message, error)
}

// StoreConfig holds configuration for creating a Store.
type StoreConfig struct {
	// Socket carries message sends and typing signals. Required.
	Socket Caller

	// History fetches conversation history. Required.
	History History

	// Credentials identifies the current user. Required.
	Credentials credential.Store

	// Clock drives typing expiry and message timestamps. If nil,
	// clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger

	// TypingExpiry is how long a remote typing indicator stays set
	// without a refresh. Default 2s.
	TypingExpiry time.Duration

	// TypingRefresh is the minimum interval between outgoing typing
	// events during a keystroke burst. Default 2s.
	TypingRefresh time.Duration
}

// Store holds the session's chat state, one conversation per
// participant pair: history, optimistic sends, incoming messages, and
// typing indicators in both directions.
type Store struct {
	socket        Caller
	history       History
	credentials   credential.Store
	clock         clock.Clock
	logger        *slog.Logger
	typingExpiry  time.Duration
	typingRefresh time.Duration

	mu            sync.Mutex
	conversations map[ConversationKey]*conversation
}

type conversation struct {
	messages []Message
	loaded   bool

	remoteTyping bool
	typingTimer  *clock.Timer

	localTyping   bool
	typingLimiter *rate.Limiter
}

// NewStore creates a Store.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Socket == nil {
		return nil, fmt.Errorf("chat: Socket is required")
	}
	if config.History == nil {
		return nil, fmt.Errorf("chat: History is required")
	}
	if config.Credentials == nil {
		return nil, fmt.Errorf("chat: Credentials store is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	typingExpiry := config.TypingExpiry
	if typingExpiry == 0 {
		typingExpiry = 2 * time.Second
	}
	typingRefresh := config.TypingRefresh
	if typingRefresh == 0 {
		typingRefresh = 2 * time.Second
	}

	return &Store{
		socket:        config.Socket,
		history:       config.History,
		credentials:   config.Credentials,
		clock:         clk,
		logger:        logger,
		typingExpiry:  typingExpiry,
		typingRefresh: typingRefresh,
		conversations: make(map[ConversationKey]*conversation),
	}, nil
}

// typingPayload is the wire payload for typing and stop-typing.
type typingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// sendPayload is the wire payload for send-message. The server acks
// with the confirmed message.
type sendPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// LoadHistory fetches a conversation's history once, ascending by
// server timestamp. Repeated calls for a loaded conversation are
// no-ops. Locally pending messages survive the load.
func (s *Store) LoadHistory(ctx context.Context, key ConversationKey) error {
	s.mu.Lock()
	conv := s.conversationLocked(key)
	if conv.loaded {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	self := s.credentials.UserID()
	fetched, err := s.history.Messages(ctx, self, key.Other(self))
	if err != nil {
		return fmt.Errorf("chat: loading history for %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv = s.conversationLocked(key)
	if conv.loaded {
		return nil
	}
	// Keep messages sent while the fetch was in flight.
	var pending []Message
	for _, m := range conv.messages {
		if m.Delivery != DeliveryConfirmed {
			pending = append(pending, m)
		}
	}
	conv.messages = append(fetched, pending...)
	sortMessages(conv.messages)
	conv.loaded = true
	return nil
}

// Messages returns a snapshot of the conversation in rendered order:
// non-decreasing timestamp.
func (s *Store) Messages(key ConversationKey) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[key]
	if !ok {
		return nil
	}
	return append([]Message(nil), conv.messages...)
}

// Send appends the message optimistically under a temporary id, then
// performs the socket round trip. The ack replaces the temporary entry
// in place with the server's id and timestamp; failure or timeout
// marks the message failed — it stays visible and can be retried. The
// returned message reflects the final state.
func (s *Store) Send(ctx context.Context, key ConversationKey, content string) (Message, error) {
	self := s.credentials.UserID()
	message := Message{
		ID:         tempIDPrefix + uuid.NewString(),
		SenderID:   self,
		ReceiverID: key.Other(self),
		Content:    content,
		CreatedAt:  s.clock.Now(),
		Key:        key,
		Delivery:   DeliveryOptimistic,
	}

	s.mu.Lock()
	conv := s.conversationLocked(key)
	conv.messages = append(conv.messages, message)
	s.mu.Unlock()

	return s.deliver(ctx, key, message)
}

// Retry re-sends a failed message under its temporary id. The entry
// keeps its position; a successful retry confirms it in place.
func (s *Store) Retry(ctx context.Context, key ConversationKey, tempID string) (Message, error) {
	s.mu.Lock()
	conv := s.conversationLocked(key)
	index := conv.indexOf(tempID)
	if index < 0 {
		s.mu.Unlock()
		return Message{}, fmt.Errorf("chat: no message %s to retry", tempID)
	}
	if conv.messages[index].Delivery != DeliveryFailed {
		s.mu.Unlock()
		return Message{}, fmt.Errorf("chat: message %s is not failed", tempID)
	}
	conv.messages[index].Delivery = DeliveryOptimistic
	message := conv.messages[index]
	s.mu.Unlock()

	return s.deliver(ctx, key, message)
}

// deliver performs the send round trip for an already-appended
// optimistic message and reconciles the entry.
func (s *Store) deliver(ctx context.Context, key ConversationKey, message Message) (Message, error) {
	ack, err := s.socket.Call(ctx, realtime.EventSendMessage, sendPayload{
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
	})
	if err != nil {
		s.markFailed(key, message.ID)
		message.Delivery = DeliveryFailed
		return message, fmt.Errorf("chat: sending message: %w", err)
	}

	var confirmed Message
	if err := json.Unmarshal(ack, &confirmed); err != nil {
		s.markFailed(key, message.ID)
		message.Delivery = DeliveryFailed
		return message, fmt.Errorf("chat: parsing send ack: %w", err)
	}
	if confirmed.ID == "" {
		s.markFailed(key, message.ID)
		message.Delivery = DeliveryFailed
		return message, fmt.Errorf("chat: send ack carries no message id")
	}
	confirmed.Key = key
	confirmed.Delivery = DeliveryConfirmed

	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversationLocked(key)
	if index := conv.indexOf(message.ID); index >= 0 {
		// Replace in place, then a stable re-sort applies the server
		// timestamp; only the corrected entry can move.
		conv.messages[index] = confirmed
		sortMessages(conv.messages)
	}
	return confirmed, nil
}

func (s *Store) markFailed(key ConversationKey, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversationLocked(key)
	if index := conv.indexOf(id); index >= 0 {
		conv.messages[index].Delivery = DeliveryFailed
	}
}

// ApplyIncoming merges a message pushed by the server. A message that
// confirms this client's own still-pending optimistic send replaces
// that entry instead of duplicating it; a message already merged by id
// is ignored. An incoming message from the other participant clears
// their typing indicator.
func (s *Store) ApplyIncoming(message Message) {
	key := NewConversationKey(message.SenderID, message.ReceiverID)
	message.Key = key
	message.Delivery = DeliveryConfirmed
	self := s.credentials.UserID()

	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversationLocked(key)

	if conv.indexOf(message.ID) >= 0 {
		return
	}
	if message.SenderID == self {
		// The broadcast of our own send can beat the ack: confirm the
		// pending optimistic entry instead of appending a duplicate.
		for i := range conv.messages {
			m := &conv.messages[i]
			if m.Delivery == DeliveryOptimistic && m.SenderID == self && m.Content == message.Content {
				conv.messages[i] = message
				sortMessages(conv.messages)
				return
			}
		}
	} else {
		s.clearRemoteTypingLocked(conv)
	}

	conv.messages = append(conv.messages, message)
	sortMessages(conv.messages)
}

// SetTyping reports the local user's input state for a conversation.
// Typing emissions are throttled to one per refresh interval so a
// keystroke burst does not flood the socket; typing=false sends an
// explicit stop-typing when input empties. Best effort: send failures
// are logged.
func (s *Store) SetTyping(key ConversationKey, typing bool) {
	self := s.credentials.UserID()
	payload := typingPayload{SenderID: self, ReceiverID: key.Other(self)}

	s.mu.Lock()
	conv := s.conversationLocked(key)

	if !typing {
		wasTyping := conv.localTyping
		conv.localTyping = false
		s.mu.Unlock()
		if wasTyping {
			if err := s.socket.Send(realtime.EventStopTyping, payload); err != nil {
				s.logger.Warn("stop-typing not sent", "conversation", string(key), "error", err)
			}
		}
		return
	}

	conv.localTyping = true
	if conv.typingLimiter == nil {
		conv.typingLimiter = rate.NewLimiter(rate.Every(s.typingRefresh), 1)
	}
	allowed := conv.typingLimiter.AllowN(s.clock.Now(), 1)
	s.mu.Unlock()

	if allowed {
		if err := s.socket.Send(realtime.EventTyping, payload); err != nil {
			s.logger.Warn("typing not sent", "conversation", string(key), "error", err)
		}
	}
}

// ApplyRemoteTyping sets or clears the remote party's typing
// indicator. A set indicator expires automatically after the typing
// expiry unless refreshed; an explicit clear cancels it immediately.
func (s *Store) ApplyRemoteTyping(key ConversationKey, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversationLocked(key)

	if !typing {
		s.clearRemoteTypingLocked(conv)
		return
	}

	conv.remoteTyping = true
	if conv.typingTimer != nil {
		conv.typingTimer.Reset(s.typingExpiry)
		return
	}
	conv.typingTimer = s.clock.AfterFunc(s.typingExpiry, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		conv.remoteTyping = false
	})
}

// RemoteTyping reports whether the other participant is typing.
func (s *Store) RemoteTyping(key ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[key]
	return ok && conv.remoteTyping
}

func (s *Store) clearRemoteTypingLocked(conv *conversation) {
	conv.remoteTyping = false
	if conv.typingTimer != nil {
		conv.typingTimer.Stop()
	}
}

func (s *Store) conversationLocked(key ConversationKey) *conversation {
	conv, ok := s.conversations[key]
	if !ok {
		conv = &conversation{}
		s.conversations[key] = conv
	}
	return conv
}

func (c *conversation) indexOf(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// sortMessages orders by timestamp, stably: entries with equal
// timestamps keep their relative order.
func sortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}
