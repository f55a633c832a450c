// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package rttest provides an in-memory transport and a scripted server
// for testing code built on the realtime connection.
package rttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/packride/packride-go/lib/testutil"
	"github.com/packride/packride-go/realtime"
)

// Frame is the decoded wire envelope, mirrored here so tests can
// assert on exactly what crossed the transport.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	AckID   string          `json:"ack_id,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Transport is one in-memory connection between a Conn under test and
// the scripted server. The server side pushes frames with Push and
// observes client writes with NextFrame.
type Transport struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newTransport() *Transport {
	return &Transport{
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (t *Transport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.closed:
		return nil, errors.New("rttest: transport closed")
	}
}

func (t *Transport) WriteMessage(data []byte) error {
	select {
	case <-t.closed:
		return errors.New("rttest: transport closed")
	case t.outbound <- data:
		return nil
	}
}

// Close severs the transport. A pending ReadMessage on the client side
// unblocks with an error, which triggers the reconnect path.
func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// Push delivers a server→client event with a marshaled payload.
func (t *Transport) Push(event string, payload any) {
	frame := Frame{Event: event}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("rttest: encoding %s payload: %v", event, err))
		}
		frame.Payload = encoded
	}
	t.PushFrame(frame)
}

// PushFrame delivers a server→client frame verbatim.
func (t *Transport) PushFrame(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		panic(fmt.Sprintf("rttest: encoding frame: %v", err))
	}
	t.PushRaw(data)
}

// PushRaw delivers raw bytes, for exercising malformed-frame handling.
func (t *Transport) PushRaw(data []byte) {
	select {
	case t.inbound <- data:
	case <-t.closed:
	}
}

// Ack completes a client Call successfully.
func (t *Transport) Ack(ackID string, payload any) {
	frame := Frame{Event: realtime.EventAck, AckID: ackID}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("rttest: encoding ack payload: %v", err))
		}
		frame.Payload = encoded
	}
	t.PushFrame(frame)
}

// AckError completes a client Call with a server rejection.
func (t *Transport) AckError(ackID, message string) {
	t.PushFrame(Frame{Event: realtime.EventAck, AckID: ackID, Error: message})
}

// NextFrame returns the next frame the client wrote, decoded, failing
// the test after timeout.
func (t *Transport) NextFrame(tb testutil.TB, timeout time.Duration) Frame {
	tb.Helper()
	data := testutil.RequireReceive(tb, t.outbound, timeout, "waiting for a client frame")
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		tb.Fatalf("decoding client frame: %v", err)
	}
	return frame
}

// Server is a scripted realtime.Dialer. By default every dial succeeds
// and the register-user handshake is accepted; FailDials and
// RejectAuth override the script.
type Server struct {
	mu         sync.Mutex
	dials      int
	failDials  int
	rejectWith string

	conns chan *Transport
}

// NewServer returns an empty accepting Server.
func NewServer() *Server {
	return &Server{conns: make(chan *Transport, 16)}
}

// Dial implements realtime.Dialer.
func (s *Server) Dial(ctx context.Context, url string) (realtime.Transport, error) {
	s.mu.Lock()
	s.dials++
	if s.failDials > 0 {
		s.failDials--
		s.mu.Unlock()
		return nil, errors.New("rttest: dial refused")
	}
	reject := s.rejectWith
	s.mu.Unlock()

	transport := newTransport()
	go s.serveHandshake(transport, reject)
	s.conns <- transport
	return transport, nil
}

// serveHandshake consumes the client's register-user frame and
// replies. Frames after the handshake are left for the test to read
// with NextFrame.
func (s *Server) serveHandshake(transport *Transport, reject string) {
	select {
	case data := <-transport.outbound:
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event != realtime.EventRegisterUser {
			transport.PushFrame(Frame{Event: realtime.EventError, Error: "expected register-user"})
			return
		}
		if reject != "" {
			transport.PushFrame(Frame{Event: realtime.EventError, Error: reject})
			return
		}
		transport.PushFrame(Frame{Event: realtime.EventRegistered})
	case <-transport.closed:
	}
}

// FailDials makes the next n dials fail with a transient error.
func (s *Server) FailDials(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDials = n
}

// RejectAuth makes subsequent handshakes fail with the given server
// message. Pass "" to accept again.
func (s *Server) RejectAuth(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectWith = message
}

// DialCount returns how many dials the server has seen, including
// failed ones.
func (s *Server) DialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// NextConn returns the transport for the next successful dial, failing
// the test after timeout.
func (s *Server) NextConn(tb testutil.TB, timeout time.Duration) *Transport {
	tb.Helper()
	return testutil.RequireReceive(tb, s.conns, timeout, "waiting for a dial")
}
