// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/packride/packride-go/lib/clock"
	"github.com/packride/packride-go/optimistic"
	"github.com/packride/packride-go/realtime"
)

// API is the REST surface the store consumes. api.Client satisfies it.
type API interface {
	MyBookings(ctx context.Context) ([]Booking, error)
	RequestsReceived(ctx context.Context) ([]Booking, error)
	CreateBooking(ctx context.Context, journeyID string) (Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status Status) (Booking, error)
}

// Sender is the socket half the store needs: fire-and-forget event
// emission. realtime.Conn satisfies it.
type Sender interface {
	Send(event string, payload any) error
}

// loadRetries is how many times LoadInitial retries a failed fetch
// before surfacing the error. Retry n waits n seconds.
const loadRetries = 2

// StoreConfig holds configuration for creating a Store.
type StoreConfig struct {
	// API performs initial loads and mutation requests. Required.
	API API

	// Sender emits the status-change-notify event after a confirmed
	// status change, so the server broadcasts it to the other party.
	// Optional; nil disables notification.
	Sender Sender

	// Clock drives the load retry backoff. If nil, clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Store holds the session's booking state: the bookings this user is a
// party to and the pending requests received against their journeys.
// All mutations are optimistic through the tracker; server pushes are
// the authoritative source and always win once no mutation is in
// flight.
type Store struct {
	api     API
	sender  Sender
	clock   clock.Clock
	logger  *slog.Logger
	tracker *optimistic.Tracker[Booking]

	mu       sync.Mutex
	mine     []Booking
	received []Booking
}

// NewStore creates a Store.
func NewStore(config StoreConfig) (*Store, error) {
	if config.API == nil {
		return nil, fmt.Errorf("booking: API is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:     config.API,
		sender:  config.Sender,
		clock:   clk,
		logger:  logger,
		tracker: optimistic.NewTracker[Booking](),
	}, nil
}

// LoadInitial fetches one collection wholesale from the API, replacing
// the store's copy. A failed fetch is retried up to twice, waiting 1s
// then 2s; the last error is surfaced if all attempts fail.
func (s *Store) LoadInitial(ctx context.Context, collection Collection) error {
	var bookings []Booking
	for attempt := 0; ; attempt++ {
		var err error
		bookings, err = s.fetch(ctx, collection)
		if err == nil {
			break
		}
		if attempt == loadRetries {
			return fmt.Errorf("booking: loading %s: %w", collection, err)
		}
		delay := time.Duration(attempt+1) * time.Second
		s.logger.Warn("initial booking load failed, retrying",
			"collection", string(collection),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("booking: loading %s: %w", collection, ctx.Err())
		case <-s.clock.After(delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch collection {
	case CollectionMine:
		s.mine = bookings
	case CollectionReceived:
		s.received = bookings
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, collection Collection) ([]Booking, error) {
	switch collection {
	case CollectionMine:
		return s.api.MyBookings(ctx)
	case CollectionReceived:
		return s.api.RequestsReceived(ctx)
	default:
		return nil, fmt.Errorf("booking: unknown collection %q", collection)
	}
}

// Mine returns a snapshot of the user's bookings.
func (s *Store) Mine() []Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Booking(nil), s.mine...)
}

// Received returns a snapshot of the pending requests received.
func (s *Store) Received() []Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Booking(nil), s.received...)
}

// Get returns the booking with the given id from either collection.
func (s *Store) Get(id string) (Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, _, ok := s.findLocked(id); ok {
		return *b, true
	}
	return Booking{}, false
}

// Create books a parcel slot on a journey. The created pending booking
// enters the user's bookings from the response; if the server's push
// for it arrived first, the merge is id-idempotent and nothing
// duplicates.
func (s *Store) Create(ctx context.Context, journeyID string) (Booking, error) {
	created, err := s.api.CreateBooking(ctx, journeyID)
	if err != nil {
		return Booking{}, err
	}
	s.mu.Lock()
	s.mergeLocked(created, CollectionMine)
	s.mu.Unlock()
	return created, nil
}

// ApplyStatusChange transitions a booking optimistically: the pending
// local status shows immediately, the server request runs, and the
// result either confirms (authoritative booking merged, accepted
// received-requests relocated into the user's bookings) or rolls back
// to exactly the prior state. A second change on the same booking
// before the first resolves returns *optimistic.ConcurrentMutationError.
// Failed changes are not retried automatically.
func (s *Store) ApplyStatusChange(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("booking: invalid status %q", status)
	}

	s.mu.Lock()
	_, _, ok := s.findLocked(id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("booking: unknown booking %s", id)
	}

	var updated Booking
	return s.tracker.Apply(ctx, optimistic.Mutation[Booking]{
		EntityID: id,
		Snapshot: func() Booking {
			s.mu.Lock()
			defer s.mu.Unlock()
			if b, _, ok := s.findLocked(id); ok {
				return *b
			}
			return Booking{ID: id}
		},
		LocalUpdate: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if b, _, ok := s.findLocked(id); ok {
				b.PendingLocalStatus = status
				b.Updating = true
			}
		},
		Request: func(ctx context.Context) error {
			result, err := s.api.UpdateBookingStatus(ctx, id, status)
			if err != nil {
				return err
			}
			updated = result
			return nil
		},
		OnConfirm: func() {
			s.mu.Lock()
			s.mergeLocked(updated, CollectionMine)
			s.mu.Unlock()
			s.notifyStatusChange(updated)
		},
		OnRollback: func(snapshot Booking) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if b, _, ok := s.findLocked(id); ok {
				*b = snapshot
			}
		},
	})
}

// ApplyPush merges an authoritative booking from a server push. While
// a mutation is in flight for that booking, the push is buffered and
// applied after the mutation resolves. hint names the collection a
// previously unseen booking enters.
func (s *Store) ApplyPush(b Booking, hint Collection) {
	s.tracker.DeliverPush(b.ID, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.mergeLocked(b, hint)
	})
}

// mergeLocked applies an authoritative booking. Existing entries are
// replaced in place to keep list positions stable; an accepted
// received-request relocates into the user's bookings; other terminal
// statuses leave the received list. The user's bookings retain
// terminal entries for the session. Unseen bookings prepend into hint.
func (s *Store) mergeLocked(b Booking, hint Collection) {
	b.PendingLocalStatus = ""
	b.Updating = false

	for i := range s.received {
		if s.received[i].ID != b.ID {
			continue
		}
		switch {
		case b.Status == StatusAccepted:
			s.received = append(s.received[:i], s.received[i+1:]...)
			s.upsertMineLocked(b)
		case b.Status.Terminal():
			s.received = append(s.received[:i], s.received[i+1:]...)
		default:
			s.received[i] = b
		}
		return
	}

	for i := range s.mine {
		if s.mine[i].ID == b.ID {
			s.mine[i] = b
			return
		}
	}

	switch hint {
	case CollectionReceived:
		s.received = append([]Booking{b}, s.received...)
	default:
		s.mine = append([]Booking{b}, s.mine...)
	}
}

func (s *Store) upsertMineLocked(b Booking) {
	for i := range s.mine {
		if s.mine[i].ID == b.ID {
			s.mine[i] = b
			return
		}
	}
	s.mine = append([]Booking{b}, s.mine...)
}

func (s *Store) findLocked(id string) (*Booking, Collection, bool) {
	for i := range s.mine {
		if s.mine[i].ID == id {
			return &s.mine[i], CollectionMine, true
		}
	}
	for i := range s.received {
		if s.received[i].ID == id {
			return &s.received[i], CollectionReceived, true
		}
	}
	return nil, "", false
}

// notifyStatusChange tells the server to broadcast a confirmed status
// change to the other party. Best effort: a send failure is logged,
// the mutation itself already succeeded.
func (s *Store) notifyStatusChange(b Booking) {
	if s.sender == nil {
		return
	}
	payload := struct {
		BookingID string `json:"bookingId"`
		Status    Status `json:"status"`
	}{BookingID: b.ID, Status: b.Status}

	if err := s.sender.Send(realtime.EventStatusChangeNotify, payload); err != nil {
		s.logger.Warn("status change notification not sent",
			"booking_id", b.ID,
			"status", string(b.Status),
			"error", err,
		)
	}
}
