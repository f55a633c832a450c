// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package realtime owns the single persistent bidirectional connection
// to the marketplace server and the typed event fan-out built on it.
//
// [Conn] manages the websocket lifecycle: dial, auth handshake,
// bounded automatic reconnection with linearly increasing delay, and
// caller-initiated teardown. It never interprets event payloads —
// every inbound frame is decoded, shape-validated, and published on
// the [Bus] for stores to consume. Outbound traffic goes through
// [Conn.Send] (fire-and-forget) or [Conn.Call] (round trip awaiting
// the server's ack, correlated by ack id and bounded by a timeout).
//
// [Bus] is a typed publish/subscribe layer: handlers for one event
// type run in registration order, subscription returns a disposer
// that is safe to call mid-dispatch, and there is no replay — a
// handler registered after an event was published never sees it.
// Views collect disposers in a [SubscriptionSet] and release them all
// on teardown.
//
// Authentication failure during the handshake is fatal for the
// session ([*AuthError], no automatic retry). Transient transport
// loss is retried silently up to the configured bound; exhaustion
// leaves the connection disconnected with [Conn.Offline] reporting
// true until the caller reconnects explicitly.
package realtime
