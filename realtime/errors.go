// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"errors"
	"fmt"
)

// AuthError reports a rejected auth handshake: the credential is
// invalid or expired. Fatal for the session — the caller must
// re-authenticate; Conn never retries it.
type AuthError struct {
	// Message is the server's description, or a local one when the
	// credential was rejected before dialing.
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("realtime: authentication failed: %s", e.Message)
}

// IsAuthError reports whether err is an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// AckError reports a Call the server completed but rejected. The
// message is the server's, verbatim.
type AckError struct {
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("realtime: server rejected call: %s", e.Message)
}

// MalformedEventError reports an inbound frame that failed shape
// validation. It is logged and dropped inside Conn — it never reaches
// stores or the UI.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("realtime: malformed event: %s", e.Reason)
}

// ErrNotConnected is returned by Send and Call when the connection is
// not in the connected state. Mutations attempted while offline fail
// fast instead of queuing.
var ErrNotConnected = errors.New("realtime: not connected")

// ErrClosed is returned after caller-initiated Close; a closed Conn
// is terminal for the session.
var ErrClosed = errors.New("realtime: connection closed")

// ErrCallTimeout is returned by Call when the server's ack does not
// arrive within the call timeout. The call is treated as failed, not
// left pending.
var ErrCallTimeout = errors.New("realtime: call timed out awaiting ack")
