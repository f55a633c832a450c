// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

// Store is the opaque credential collaborator: a bearer token and the
// user identifier it belongs to. The engine reads both to authenticate
// the connection and to tell "my" messages and bookings from others'.
type Store interface {
	// Token returns the bearer token, or "" when logged out.
	Token() string

	// UserID returns the authenticated user's identifier, or "" when
	// logged out.
	UserID() string

	// Set replaces the stored credential.
	Set(token, userID string)

	// Clear removes the stored credential.
	Clear()
}

// Memory is an in-memory Store. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	token  string
	userID string
}

// NewMemory returns a Memory store holding the given credential.
func NewMemory(token, userID string) *Memory {
	return &Memory{token: token, userID: userID}
}

// Token implements Store.
func (m *Memory) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// UserID implements Store.
func (m *Memory) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// Set implements Store.
func (m *Memory) Set(token, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.userID = userID
}

// Clear implements Store.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.userID = ""
}

// Expired reports whether the stored bearer token is missing or
// carries an exp claim in the past. The token is parsed without
// signature verification — the server remains the authority; this is
// only a fast local check so an obviously dead credential fails as an
// authentication error before a round trip.
//
// Tokens that are not JWTs, or JWTs without an exp claim, are treated
// as not expired and left for the server to judge.
func Expired(store Store, now time.Time) bool {
	token := store.Token()
	if token == "" {
		return true
	}

	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	return now.After(time.Unix(int64(exp), 0))
}

// Validate returns an error when the store holds no usable credential.
func Validate(store Store) error {
	if store.Token() == "" {
		return fmt.Errorf("credential: no bearer token stored")
	}
	if store.UserID() == "" {
		return fmt.Errorf("credential: no user id stored")
	}
	return nil
}
