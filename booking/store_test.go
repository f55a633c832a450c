// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/packride/packride-go/lib/clock"
	"github.com/packride/packride-go/lib/testutil"
	"github.com/packride/packride-go/optimistic"
	"github.com/packride/packride-go/realtime"
)

type fakeAPI struct {
	myBookings          func(ctx context.Context) ([]Booking, error)
	requestsReceived    func(ctx context.Context) ([]Booking, error)
	createBooking       func(ctx context.Context, journeyID string) (Booking, error)
	updateBookingStatus func(ctx context.Context, id string, status Status) (Booking, error)
}

func (f *fakeAPI) MyBookings(ctx context.Context) ([]Booking, error) {
	return f.myBookings(ctx)
}

func (f *fakeAPI) RequestsReceived(ctx context.Context) ([]Booking, error) {
	return f.requestsReceived(ctx)
}

func (f *fakeAPI) CreateBooking(ctx context.Context, journeyID string) (Booking, error) {
	return f.createBooking(ctx, journeyID)
}

func (f *fakeAPI) UpdateBookingStatus(ctx context.Context, id string, status Status) (Booking, error) {
	return f.updateBookingStatus(ctx, id, status)
}

type fakeSender struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSender) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newTestStore(t *testing.T, api *fakeAPI, clk clock.Clock) (*Store, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	store, err := NewStore(StoreConfig{
		API:    api,
		Sender: sender,
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, sender
}

// seedStore loads the store with fixed collections through the normal
// initial-load path.
func seedStore(t *testing.T, store *Store, api *fakeAPI, mine, received []Booking) {
	t.Helper()
	api.myBookings = func(context.Context) ([]Booking, error) { return mine, nil }
	api.requestsReceived = func(context.Context) ([]Booking, error) { return received, nil }
	if err := store.LoadInitial(context.Background(), CollectionMine); err != nil {
		t.Fatalf("LoadInitial(mine): %v", err)
	}
	if err := store.LoadInitial(context.Background(), CollectionReceived); err != nil {
		t.Fatalf("LoadInitial(received): %v", err)
	}
}

func TestLoadInitialRetriesWithBackoff(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	calls := 0
	api := &fakeAPI{
		myBookings: func(context.Context) ([]Booking, error) {
			calls++
			if calls < 3 {
				return nil, fmt.Errorf("connection refused")
			}
			return []Booking{{ID: "bk-1", Status: StatusPending}}, nil
		},
	}
	store, _ := newTestStore(t, api, clk)

	result := make(chan error, 1)
	go func() { result <- store.LoadInitial(context.Background(), CollectionMine) }()

	// First retry after 1s, second after a further 2s.
	clk.WaitForWaiters(1)
	if calls != 1 {
		t.Fatalf("calls = %d before any backoff elapsed, want 1", calls)
	}
	clk.Advance(time.Second)
	clk.WaitForWaiters(1)
	if calls != 2 {
		t.Fatalf("calls = %d after 1s, want 2", calls)
	}
	clk.Advance(2 * time.Second)

	if err := testutil.RequireReceive(t, result, time.Second, "waiting for LoadInitial"); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if mine := store.Mine(); len(mine) != 1 || mine[0].ID != "bk-1" {
		t.Errorf("Mine() = %+v", mine)
	}
}

func TestLoadInitialSurfacesErrorAfterRetries(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	calls := 0
	fetchErr := fmt.Errorf("server unavailable")
	api := &fakeAPI{
		requestsReceived: func(context.Context) ([]Booking, error) {
			calls++
			return nil, fetchErr
		},
	}
	store, _ := newTestStore(t, api, clk)

	result := make(chan error, 1)
	go func() { result <- store.LoadInitial(context.Background(), CollectionReceived) }()

	clk.WaitForWaiters(1)
	clk.Advance(time.Second)
	clk.WaitForWaiters(1)
	clk.Advance(2 * time.Second)

	err := testutil.RequireReceive(t, result, time.Second, "waiting for LoadInitial")
	if !errors.Is(err, fetchErr) {
		t.Errorf("LoadInitial error = %v, want the fetch error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestStatusChangeConfirmRelocatesAccepted(t *testing.T) {
	api := &fakeAPI{}
	store, sender := newTestStore(t, api, clock.Real())
	seedStore(t, store, api, nil, []Booking{
		{ID: "bk-1", JourneyID: "j-1", Status: StatusPending},
	})

	entered := make(chan struct{})
	release := make(chan error)
	api.updateBookingStatus = func(_ context.Context, id string, status Status) (Booking, error) {
		close(entered)
		if err := <-release; err != nil {
			return Booking{}, err
		}
		return Booking{ID: id, JourneyID: "j-1", Status: status}, nil
	}

	result := make(chan error, 1)
	go func() {
		result <- store.ApplyStatusChange(context.Background(), "bk-1", StatusAccepted)
	}()
	testutil.RequireClosed(t, entered, time.Second, "waiting for the update request")

	// The optimistic state is visible while the request is in flight.
	b, ok := store.Get("bk-1")
	if !ok {
		t.Fatalf("booking disappeared during mutation")
	}
	if b.DisplayStatus() != StatusAccepted || !b.Updating {
		t.Errorf("in-flight booking = %+v, want optimistic accepted", b)
	}
	if b.Status != StatusPending {
		t.Errorf("authoritative status = %q changed before confirmation", b.Status)
	}

	release <- nil
	if err := testutil.RequireReceive(t, result, time.Second, "waiting for the mutation"); err != nil {
		t.Fatalf("ApplyStatusChange: %v", err)
	}

	// Accepted received-request relocated into the user's bookings.
	if received := store.Received(); len(received) != 0 {
		t.Errorf("Received() = %+v after accept, want empty", received)
	}
	mine := store.Mine()
	if len(mine) != 1 || mine[0].ID != "bk-1" || mine[0].Status != StatusAccepted {
		t.Errorf("Mine() = %+v after accept", mine)
	}
	if mine[0].Updating || mine[0].PendingLocalStatus != "" {
		t.Errorf("confirmed booking still carries optimistic marks: %+v", mine[0])
	}

	events := sender.sent()
	if len(events) != 1 || events[0] != realtime.EventStatusChangeNotify {
		t.Errorf("sent events = %v, want one status-change-notify", events)
	}
}

func TestStatusChangeRollbackRestoresExactly(t *testing.T) {
	api := &fakeAPI{}
	store, sender := newTestStore(t, api, clock.Real())
	seedStore(t, store, api, nil, []Booking{
		{ID: "bk-1", Status: StatusPending},
	})

	api.updateBookingStatus = func(context.Context, string, Status) (Booking, error) {
		return Booking{}, fmt.Errorf("journey already departed")
	}

	err := store.ApplyStatusChange(context.Background(), "bk-1", StatusAccepted)
	if err == nil {
		t.Fatalf("ApplyStatusChange succeeded, want the server error")
	}

	b, ok := store.Get("bk-1")
	if !ok {
		t.Fatalf("booking disappeared after rollback")
	}
	if b.Status != StatusPending || b.PendingLocalStatus != "" || b.Updating {
		t.Errorf("booking = %+v after rollback, want exactly the prior pending state", b)
	}
	if received := store.Received(); len(received) != 1 {
		t.Errorf("Received() = %+v after rollback, want the request kept", received)
	}
	if events := sender.sent(); len(events) != 0 {
		t.Errorf("sent events = %v after a failed mutation, want none", events)
	}
}

func TestPushBufferedDuringMutation(t *testing.T) {
	api := &fakeAPI{}
	store, _ := newTestStore(t, api, clock.Real())
	seedStore(t, store, api, []Booking{
		{ID: "bk-1", Status: StatusPending},
	}, nil)

	entered := make(chan struct{})
	release := make(chan error)
	api.updateBookingStatus = func(context.Context, string, Status) (Booking, error) {
		close(entered)
		return Booking{}, <-release
	}

	result := make(chan error, 1)
	go func() {
		result <- store.ApplyStatusChange(context.Background(), "bk-1", StatusCancelled)
	}()
	testutil.RequireClosed(t, entered, time.Second, "waiting for the update request")

	// A push arriving mid-mutation is not applied yet.
	store.ApplyPush(Booking{ID: "bk-1", Status: StatusRejected}, CollectionMine)
	if b, _ := store.Get("bk-1"); b.Status != StatusPending {
		t.Fatalf("push applied while the mutation was in flight: %+v", b)
	}

	// The mutation fails: rollback runs, then the buffered push lands
	// on top, converging on the server's state.
	release <- fmt.Errorf("too late")
	if err := testutil.RequireReceive(t, result, time.Second, "waiting for the mutation"); err == nil {
		t.Fatalf("ApplyStatusChange succeeded, want the server error")
	}

	b, ok := store.Get("bk-1")
	if !ok {
		t.Fatalf("booking disappeared")
	}
	if b.Status != StatusRejected || b.PendingLocalStatus != "" || b.Updating {
		t.Errorf("booking = %+v, want the buffered push applied after rollback", b)
	}
}

func TestConcurrentStatusChangeRejected(t *testing.T) {
	api := &fakeAPI{}
	store, _ := newTestStore(t, api, clock.Real())
	seedStore(t, store, api, []Booking{
		{ID: "bk-1", Status: StatusPending},
	}, nil)

	entered := make(chan struct{})
	release := make(chan error)
	api.updateBookingStatus = func(_ context.Context, id string, status Status) (Booking, error) {
		close(entered)
		if err := <-release; err != nil {
			return Booking{}, err
		}
		return Booking{ID: id, Status: status}, nil
	}

	result := make(chan error, 1)
	go func() {
		result <- store.ApplyStatusChange(context.Background(), "bk-1", StatusAccepted)
	}()
	testutil.RequireClosed(t, entered, time.Second, "waiting for the update request")

	err := store.ApplyStatusChange(context.Background(), "bk-1", StatusCancelled)
	var concurrent *optimistic.ConcurrentMutationError
	if !errors.As(err, &concurrent) {
		t.Fatalf("second change = %v, want *ConcurrentMutationError", err)
	}

	// The first mutation is unaffected.
	release <- nil
	if err := testutil.RequireReceive(t, result, time.Second, "waiting for the first mutation"); err != nil {
		t.Errorf("first ApplyStatusChange: %v", err)
	}
	if b, _ := store.Get("bk-1"); b.Status != StatusAccepted {
		t.Errorf("booking = %+v, want the first mutation confirmed", b)
	}
}

func TestApplyPushUnseenBookingEntersHintedCollection(t *testing.T) {
	api := &fakeAPI{}
	store, _ := newTestStore(t, api, clock.Real())
	seedStore(t, store, api, nil, []Booking{
		{ID: "bk-old", Status: StatusPending},
	})

	store.ApplyPush(Booking{ID: "bk-new", Status: StatusPending}, CollectionReceived)

	received := store.Received()
	if len(received) != 2 || received[0].ID != "bk-new" {
		t.Errorf("Received() = %+v, want the new request prepended", received)
	}
}

func TestCreateIdempotentWithPush(t *testing.T) {
	api := &fakeAPI{}
	store, _ := newTestStore(t, api, clock.Real())
	seedStore(t, store, api, nil, nil)

	created := Booking{ID: "bk-1", JourneyID: "j-1", Status: StatusPending}
	api.createBooking = func(context.Context, string) (Booking, error) { return created, nil }

	// The server's push beats the HTTP response.
	store.ApplyPush(created, CollectionMine)

	if _, err := store.Create(context.Background(), "j-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if mine := store.Mine(); len(mine) != 1 {
		t.Errorf("Mine() = %+v, want exactly one entry", mine)
	}
}
