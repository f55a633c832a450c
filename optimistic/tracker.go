// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package optimistic tracks in-flight optimistic mutations so stores
// can show local edits immediately and reconcile them when the server
// answers.
//
// One mutation may be in flight per entity at a time. A server push
// that arrives for an entity while its mutation is unresolved is not
// applied immediately and not dropped: it is buffered (latest push
// wins) and applied after the mutation resolves, on both the confirm
// and the rollback path.
package optimistic

import (
	"context"
	"fmt"
	"sync"
)

// ConcurrentMutationError reports a second mutation attempted on an
// entity whose first mutation has not resolved. The attempt is
// rejected up front; the first mutation is unaffected.
type ConcurrentMutationError struct {
	EntityID string
}

func (e *ConcurrentMutationError) Error() string {
	return fmt.Sprintf("optimistic: mutation already in flight for entity %s", e.EntityID)
}

// Tracker records one in-flight mutation per entity, keyed by entity
// id, together with the snapshot needed to roll it back. S is the
// snapshot type. Safe for concurrent use; the buffered-push and
// restore callbacks run outside the tracker's lock.
type Tracker[S any] struct {
	mu       sync.Mutex
	inflight map[string]*mutation[S]
}

type mutation[S any] struct {
	snapshot S
	buffered func()
}

// NewTracker returns an empty Tracker.
func NewTracker[S any]() *Tracker[S] {
	return &Tracker[S]{inflight: make(map[string]*mutation[S])}
}

// Begin marks a mutation in flight for the entity, keeping snapshot
// for rollback. Returns *ConcurrentMutationError if one is already in
// flight; the caller must not apply its optimistic change in that
// case.
func (t *Tracker[S]) Begin(entityID string, snapshot S) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[entityID]; ok {
		return &ConcurrentMutationError{EntityID: entityID}
	}
	t.inflight[entityID] = &mutation[S]{snapshot: snapshot}
	return nil
}

// InFlight reports whether the entity has an unresolved mutation.
func (t *Tracker[S]) InFlight(entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inflight[entityID]
	return ok
}

// Confirm resolves the entity's mutation as accepted: the optimistic
// state stands, and a push buffered while the mutation was in flight
// is applied now. A Confirm with no mutation in flight is a no-op.
func (t *Tracker[S]) Confirm(entityID string) {
	t.mu.Lock()
	m, ok := t.inflight[entityID]
	delete(t.inflight, entityID)
	t.mu.Unlock()

	if ok && m.buffered != nil {
		m.buffered()
	}
}

// Rollback resolves the entity's mutation as rejected: restore is
// called with the snapshot taken at Begin, then a push buffered while
// the mutation was in flight is applied on top. The buffered push
// lands after the restore so the entity converges on the server's
// state, not the stale snapshot. A Rollback with no mutation in flight
// is a no-op.
func (t *Tracker[S]) Rollback(entityID string, restore func(S)) {
	t.mu.Lock()
	m, ok := t.inflight[entityID]
	delete(t.inflight, entityID)
	t.mu.Unlock()

	if !ok {
		return
	}
	if restore != nil {
		restore(m.snapshot)
	}
	if m.buffered != nil {
		m.buffered()
	}
}

// Mutation describes one optimistic mutation end to end. Apply runs
// the pieces in order; stores usually call Apply rather than the
// Begin/Confirm/Rollback primitives directly.
type Mutation[S any] struct {
	// EntityID keys the in-flight mark.
	EntityID string

	// Snapshot returns the pre-mutation state kept for rollback. It
	// runs after the in-flight mark is taken, so a push racing the
	// mutation start is buffered rather than read into the snapshot.
	// Nil keeps the zero value.
	Snapshot func() S

	// LocalUpdate applies the optimistic change; it runs immediately
	// after the in-flight mark is taken, before the request.
	LocalUpdate func()

	// Request performs the server round trip.
	Request func(ctx context.Context) error

	// OnConfirm merges the authoritative result when the request
	// succeeds. It runs before any buffered push is applied.
	OnConfirm func()

	// OnRollback restores from Snapshot when the request fails.
	OnRollback func(S)
}

// Apply runs a mutation: in-flight mark, snapshot capture, optimistic
// local update, server request, then confirm or rollback. The
// request's error is returned as-is on the rollback path. A second
// Apply for the same entity before the first resolves returns
// *ConcurrentMutationError without touching the entity.
func (t *Tracker[S]) Apply(ctx context.Context, m Mutation[S]) error {
	t.mu.Lock()
	if _, ok := t.inflight[m.EntityID]; ok {
		t.mu.Unlock()
		return &ConcurrentMutationError{EntityID: m.EntityID}
	}
	mut := &mutation[S]{}
	t.inflight[m.EntityID] = mut
	t.mu.Unlock()

	if m.Snapshot != nil {
		snapshot := m.Snapshot()
		t.mu.Lock()
		mut.snapshot = snapshot
		t.mu.Unlock()
	}
	if m.LocalUpdate != nil {
		m.LocalUpdate()
	}
	if err := m.Request(ctx); err != nil {
		t.Rollback(m.EntityID, m.OnRollback)
		return err
	}
	if m.OnConfirm != nil {
		m.OnConfirm()
	}
	t.Confirm(m.EntityID)
	return nil
}

// DeliverPush routes a server push for the entity. With no mutation in
// flight, apply runs immediately. With one in flight, apply is
// buffered until the mutation resolves; only the latest buffered push
// is kept, since each push carries the entity's full authoritative
// state.
func (t *Tracker[S]) DeliverPush(entityID string, apply func()) {
	t.mu.Lock()
	if m, ok := t.inflight[entityID]; ok {
		m.buffered = apply
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	apply()
}
