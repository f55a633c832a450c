// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package client assembles one synchronized session: the HTTP client,
// the realtime connection, the booking and chat stores, and the
// notification router, wired from configuration and a credential
// store. Nothing here is a singleton — each session owns exactly one
// connection, and tests build sessions against fake transports.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/packride/packride-go/api"
	"github.com/packride/packride-go/booking"
	"github.com/packride/packride-go/chat"
	"github.com/packride/packride-go/lib/clock"
	"github.com/packride/packride-go/lib/config"
	"github.com/packride/packride-go/lib/credential"
	"github.com/packride/packride-go/notify"
	"github.com/packride/packride-go/realtime"
)

// Options holds everything a session is built from.
type Options struct {
	// Config is the loaded client configuration. Required.
	Config *config.Config

	// Credentials holds the authenticated user's token and id.
	// Required.
	Credentials credential.Store

	// Sink receives user-facing alerts. Required.
	Sink notify.AlertSink

	// Clock is the time source. If nil, clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger

	// Dialer overrides the websocket dialer. Tests substitute a fake
	// transport here; production leaves it nil.
	Dialer realtime.Dialer

	// HTTPClient overrides the API's HTTP client.
	HTTPClient *http.Client
}

// Session is one user's live synchronization session.
type Session struct {
	api      *api.Client
	conn     *realtime.Conn
	bookings *booking.Store
	chats    *chat.Store
	router   *notify.Router
}

// NewSession wires a session together. It does not connect; call
// Start.
func NewSession(options Options) (*Session, error) {
	if options.Config == nil {
		return nil, fmt.Errorf("client: Config is required")
	}
	if options.Credentials == nil {
		return nil, fmt.Errorf("client: Credentials store is required")
	}
	if options.Sink == nil {
		return nil, fmt.Errorf("client: Sink is required")
	}
	if err := credential.Validate(options.Credentials); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := options.Config

	apiClient, err := api.NewClient(api.Config{
		BaseURL:        cfg.API.BaseURL,
		Credentials:    options.Credentials,
		HTTPClient:     options.HTTPClient,
		RequestTimeout: cfg.API.RequestTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	conn, err := realtime.NewConn(realtime.ConnConfig{
		URL:               cfg.Socket.URL,
		Credentials:       options.Credentials,
		Dialer:            options.Dialer,
		Clock:             clk,
		Logger:            logger,
		HandshakeTimeout:  cfg.Socket.HandshakeTimeout.Std(),
		CallTimeout:       cfg.Socket.CallTimeout.Std(),
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay.Std(),
	})
	if err != nil {
		return nil, err
	}

	bookings, err := booking.NewStore(booking.StoreConfig{
		API:    apiClient,
		Sender: conn,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	chats, err := chat.NewStore(chat.StoreConfig{
		Socket:        conn,
		History:       apiClient,
		Credentials:   options.Credentials,
		Clock:         clk,
		Logger:        logger,
		TypingExpiry:  cfg.Chat.TypingExpiry.Std(),
		TypingRefresh: cfg.Chat.TypingRefresh.Std(),
	})
	if err != nil {
		return nil, err
	}

	router, err := notify.NewRouter(notify.RouterConfig{
		Bookings: bookings,
		Chats:    chats,
		Sink:     options.Sink,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		api:      apiClient,
		conn:     conn,
		bookings: bookings,
		chats:    chats,
		router:   router,
	}, nil
}

// Start binds the router to the connection's bus and connects. The
// router binds first so no event published during the handshake is
// missed.
func (s *Session) Start(ctx context.Context) error {
	s.router.Bind(s.conn.Bus())
	if err := s.conn.Connect(ctx); err != nil {
		s.router.Close()
		return err
	}
	return nil
}

// LoadBookings fetches both booking collections.
func (s *Session) LoadBookings(ctx context.Context) error {
	if err := s.bookings.LoadInitial(ctx, booking.CollectionMine); err != nil {
		return err
	}
	return s.bookings.LoadInitial(ctx, booking.CollectionReceived)
}

// Close tears the session down in reverse construction order.
// Idempotent.
func (s *Session) Close() error {
	s.router.Close()
	return s.conn.Close()
}

// API returns the HTTP client.
func (s *Session) API() *api.Client { return s.api }

// Conn returns the realtime connection.
func (s *Session) Conn() *realtime.Conn { return s.conn }

// Bookings returns the booking store.
func (s *Session) Bookings() *booking.Store { return s.bookings }

// Chats returns the chat store.
func (s *Session) Chats() *chat.Store { return s.chats }

// Router returns the notification router.
func (s *Session) Router() *notify.Router { return s.router }
