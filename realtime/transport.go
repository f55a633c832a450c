// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one established bidirectional connection. Conn owns
// exactly one live Transport at a time and replaces it across
// reconnects. Implementations must allow ReadMessage concurrent with
// WriteMessage; WriteMessage callers are serialized by Conn.
type Transport interface {
	// ReadMessage blocks until the next inbound frame or a transport
	// error (including peer close).
	ReadMessage() ([]byte, error)

	// WriteMessage sends one frame.
	WriteMessage(data []byte) error

	// Close tears the connection down. Unblocks a pending ReadMessage.
	Close() error
}

// Dialer establishes Transports. Tests substitute a fake; production
// uses the websocket dialer.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// NewWebsocketDialer returns the production Dialer backed by
// gorilla/websocket. handshakeTimeout bounds the protocol upgrade.
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return &websocketDialer{
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

type websocketDialer struct {
	dialer *websocket.Dialer
}

func (d *websocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dialing %s: %w", url, err)
	}
	return &websocketTransport{conn: conn}, nil
}

// websocketTransport adapts *websocket.Conn. gorilla permits one
// concurrent reader and one concurrent writer; the write mutex
// guards against Close racing a write.
type websocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (t *websocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *websocketTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *websocketTransport) Close() error {
	return t.conn.Close()
}
