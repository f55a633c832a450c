// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/packride/packride-go/lib/clock"
	"github.com/packride/packride-go/lib/credential"
)

// ConnConfig holds configuration for creating a Conn.
type ConnConfig struct {
	// URL is the websocket endpoint.
	URL string

	// Credentials supplies the bearer token and user id for the auth
	// handshake.
	Credentials credential.Store

	// Dialer establishes transports. If nil, the gorilla/websocket
	// dialer is used.
	Dialer Dialer

	// Bus receives every inbound event. If nil, a new Bus is created;
	// retrieve it with Conn.Bus.
	Bus *Bus

	// Clock is the time source. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger

	// HandshakeTimeout bounds dial plus auth handshake. Default 8s.
	HandshakeTimeout time.Duration

	// CallTimeout bounds a Call awaiting its ack. Default 10s.
	CallTimeout time.Duration

	// ReconnectAttempts bounds automatic reconnection after an
	// unexpected transport loss. Default 5.
	ReconnectAttempts int

	// ReconnectDelay is the base reconnect delay; attempt n waits
	// n × ReconnectDelay. Default 1s.
	ReconnectDelay time.Duration
}

// Conn is the single persistent connection for a session. Exactly one
// Conn exists per session; it is injected into stores rather than held
// as a package-level singleton so tests can substitute a fake
// transport.
type Conn struct {
	url               string
	credentials       credential.Store
	dialer            Dialer
	bus               *Bus
	clock             clock.Clock
	logger            *slog.Logger
	handshakeTimeout  time.Duration
	callTimeout       time.Duration
	reconnectAttempts int
	reconnectDelay    time.Duration

	mu         sync.Mutex
	status     Status
	offline    bool
	closed     bool
	generation int
	transport  Transport
	done       chan struct{}

	ackMu       sync.Mutex
	pendingAcks map[string]chan ackResult
}

type ackResult struct {
	payload json.RawMessage
	err     error
}

// NewConn creates a Conn. It does not dial; call Connect.
func NewConn(config ConnConfig) (*Conn, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("realtime: URL is required")
	}
	if config.Credentials == nil {
		return nil, fmt.Errorf("realtime: Credentials store is required")
	}

	handshakeTimeout := config.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = 8 * time.Second
	}
	callTimeout := config.CallTimeout
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}
	reconnectAttempts := config.ReconnectAttempts
	if reconnectAttempts == 0 {
		reconnectAttempts = 5
	}
	reconnectDelay := config.ReconnectDelay
	if reconnectDelay == 0 {
		reconnectDelay = 1 * time.Second
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = NewWebsocketDialer(handshakeTimeout)
	}
	bus := config.Bus
	if bus == nil {
		bus = NewBus()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Conn{
		url:               config.URL,
		credentials:       config.Credentials,
		dialer:            dialer,
		bus:               bus,
		clock:             clk,
		logger:            logger,
		handshakeTimeout:  handshakeTimeout,
		callTimeout:       callTimeout,
		reconnectAttempts: reconnectAttempts,
		reconnectDelay:    reconnectDelay,
		status:            StatusDisconnected,
		done:              make(chan struct{}),
		pendingAcks:       make(map[string]chan ackResult),
	}, nil
}

// Bus returns the bus inbound events are published on.
func (c *Conn) Bus() *Bus { return c.bus }

// Status returns the current connection status.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Offline reports whether automatic reconnection has been exhausted.
// It stays true until the caller reconnects explicitly with Connect.
func (c *Conn) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

// Connect establishes the transport and performs the auth handshake.
// Idempotent: a no-op while connected, connecting, or reconnecting.
// Authentication failure returns *AuthError, publishes the
// auth-failed lifecycle event, and is never retried automatically.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.offline = false
	c.mu.Unlock()

	transport, err := c.dialAndRegister(ctx)
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		if IsAuthError(err) {
			c.logger.Warn("authentication failed", "error", err)
			c.bus.Publish(Event{Type: EventAuthFailed, ReceivedAt: c.clock.Now()})
			return err
		}
		return err
	}

	if !c.install(transport) {
		return ErrClosed
	}
	c.bus.Publish(Event{Type: EventConnected, ReceivedAt: c.clock.Now()})
	return nil
}

// Close tears the connection down. Caller-initiated and terminal for
// this Conn: a closed Conn never reconnects. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.status = StatusDisconnected
	transport := c.transport
	c.transport = nil
	c.generation++
	close(c.done)
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	c.failPendingAcks(ErrClosed)
	c.bus.Publish(Event{Type: EventDisconnected, ReceivedAt: c.clock.Now()})
	return nil
}

// Send writes one fire-and-forget event. Fails fast with
// ErrNotConnected while the connection is down; nothing is queued.
func (c *Conn) Send(event string, payload any) error {
	data, err := c.encodeEnvelope(envelope{Event: event}, payload)
	if err != nil {
		return err
	}
	transport, err := c.currentTransport()
	if err != nil {
		return err
	}
	if err := transport.WriteMessage(data); err != nil {
		return fmt.Errorf("realtime: sending %s: %w", event, err)
	}
	return nil
}

// Call writes an event carrying an ack id and blocks until the
// server's ack arrives, ctx is done, or the call timeout elapses.
// A timed-out call is failed, never left pending. The returned
// payload is the ack's; a server rejection comes back as *AckError
// with the server's message.
func (c *Conn) Call(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	ackID := uuid.NewString()
	data, err := c.encodeEnvelope(envelope{Event: event, AckID: ackID}, payload)
	if err != nil {
		return nil, err
	}

	result := make(chan ackResult, 1)
	c.ackMu.Lock()
	c.pendingAcks[ackID] = result
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		delete(c.pendingAcks, ackID)
		c.ackMu.Unlock()
	}()

	transport, err := c.currentTransport()
	if err != nil {
		return nil, err
	}
	if err := transport.WriteMessage(data); err != nil {
		return nil, fmt.Errorf("realtime: sending %s: %w", event, err)
	}

	select {
	case res := <-result:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("realtime: call %s: %w", event, ctx.Err())
	case <-c.clock.After(c.callTimeout):
		return nil, ErrCallTimeout
	case <-c.done:
		return nil, ErrClosed
	}
}

// dialAndRegister dials a transport and completes the auth handshake.
// The first frame after registration must be the server's response:
// registered on success, an error event on rejection. Any error event
// during the handshake is an authentication failure.
func (c *Conn) dialAndRegister(ctx context.Context) (Transport, error) {
	if credential.Expired(c.credentials, c.clock.Now()) {
		return nil, &AuthError{Message: "credential missing or expired"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	transport, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	register, err := c.encodeEnvelope(envelope{Event: EventRegisterUser}, registerPayload{
		Token:  c.credentials.Token(),
		UserID: c.credentials.UserID(),
	})
	if err != nil {
		transport.Close()
		return nil, err
	}
	if err := transport.WriteMessage(register); err != nil {
		transport.Close()
		return nil, fmt.Errorf("realtime: sending handshake: %w", err)
	}

	type readOutcome struct {
		data []byte
		err  error
	}
	read := make(chan readOutcome, 1)
	go func() {
		data, err := transport.ReadMessage()
		read <- readOutcome{data, err}
	}()

	select {
	case outcome := <-read:
		if outcome.err != nil {
			transport.Close()
			return nil, fmt.Errorf("realtime: handshake read: %w", outcome.err)
		}
		var response envelope
		if err := json.Unmarshal(outcome.data, &response); err != nil {
			transport.Close()
			return nil, fmt.Errorf("realtime: handshake response: %w", err)
		}
		switch response.Event {
		case EventRegistered:
			return transport, nil
		case EventError:
			transport.Close()
			message := response.Error
			var payload errorPayload
			if message == "" && json.Unmarshal(response.Payload, &payload) == nil {
				message = payload.Message
			}
			if message == "" {
				message = "handshake rejected"
			}
			return nil, &AuthError{Message: message}
		default:
			transport.Close()
			return nil, fmt.Errorf("realtime: unexpected handshake response %q", response.Event)
		}
	case <-ctx.Done():
		transport.Close()
		return nil, fmt.Errorf("realtime: handshake: %w", ctx.Err())
	}
}

// install makes transport current and starts its read loop. Returns
// false if the Conn was closed while dialing.
func (c *Conn) install(transport Transport) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		transport.Close()
		return false
	}
	c.generation++
	generation := c.generation
	c.transport = transport
	c.status = StatusConnected
	c.offline = false
	c.mu.Unlock()

	go c.readLoop(transport, generation)
	return true
}

func (c *Conn) readLoop(transport Transport, generation int) {
	for {
		data, err := transport.ReadMessage()
		if err != nil {
			c.handleTransportLoss(generation, err)
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame decodes and dispatches one inbound frame. Malformed
// frames are logged and dropped; they never reach subscribers.
func (c *Conn) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping inbound frame",
			"error", &MalformedEventError{Reason: err.Error()})
		return
	}
	if env.Event == "" {
		c.logger.Warn("dropping inbound frame",
			"error", &MalformedEventError{Reason: "missing event type"})
		return
	}

	if env.Event == EventAck {
		c.resolveAck(env)
		return
	}

	c.bus.Publish(Event{
		Type:       env.Event,
		Payload:    env.Payload,
		ReceivedAt: c.clock.Now(),
	})
}

func (c *Conn) resolveAck(env envelope) {
	if env.AckID == "" {
		c.logger.Warn("dropping inbound frame",
			"error", &MalformedEventError{Reason: "ack without ack_id"})
		return
	}

	c.ackMu.Lock()
	result, ok := c.pendingAcks[env.AckID]
	delete(c.pendingAcks, env.AckID)
	c.ackMu.Unlock()
	if !ok {
		c.logger.Debug("ack for unknown call", "ack_id", env.AckID)
		return
	}

	if env.Error != "" {
		result <- ackResult{err: &AckError{Message: env.Error}}
		return
	}
	result <- ackResult{payload: env.Payload}
}

// handleTransportLoss runs the bounded reconnect loop after an
// unexpected read error. Caller-initiated Close and superseded read
// loops are recognized by the generation counter and do nothing.
func (c *Conn) handleTransportLoss(generation int, cause error) {
	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.status = StatusReconnecting
	c.transport = nil
	c.mu.Unlock()

	c.failPendingAcks(cause)
	c.logger.Warn("transport lost, reconnecting", "error", cause)
	c.bus.Publish(Event{Type: EventDisconnected, ReceivedAt: c.clock.Now()})

	for attempt := 1; attempt <= c.reconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-c.clock.After(time.Duration(attempt) * c.reconnectDelay):
		}

		transport, err := c.dialAndRegister(context.Background())
		if err == nil {
			if !c.install(transport) {
				return
			}
			c.logger.Info("reconnected", "attempt", attempt)
			c.bus.Publish(Event{Type: EventConnected, ReceivedAt: c.clock.Now()})
			return
		}
		if IsAuthError(err) {
			c.mu.Lock()
			c.status = StatusDisconnected
			c.mu.Unlock()
			c.logger.Warn("authentication failed during reconnect", "error", err)
			c.bus.Publish(Event{Type: EventAuthFailed, ReceivedAt: c.clock.Now()})
			return
		}
		c.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"max_attempts", c.reconnectAttempts,
			"error", err,
		)
	}

	c.mu.Lock()
	c.status = StatusDisconnected
	c.offline = true
	c.mu.Unlock()
	c.logger.Warn("reconnect attempts exhausted, offline",
		"attempts", c.reconnectAttempts)
	c.bus.Publish(Event{Type: EventOffline, ReceivedAt: c.clock.Now()})
}

func (c *Conn) failPendingAcks(cause error) {
	c.ackMu.Lock()
	pending := c.pendingAcks
	c.pendingAcks = make(map[string]chan ackResult)
	c.ackMu.Unlock()

	for _, result := range pending {
		result <- ackResult{err: cause}
	}
}

func (c *Conn) currentTransport() (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.status != StatusConnected || c.transport == nil {
		return nil, ErrNotConnected
	}
	return c.transport, nil
}

func (c *Conn) encodeEnvelope(env envelope, payload any) ([]byte, error) {
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("realtime: encoding %s payload: %w", env.Event, err)
		}
		env.Payload = encoded
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("realtime: encoding %s envelope: %w", env.Event, err)
	}
	return data, nil
}
