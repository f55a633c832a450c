// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/packride/packride-go/booking"
	"github.com/packride/packride-go/chat"
	"github.com/packride/packride-go/lib/credential"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:     server.URL,
		Credentials: credential.NewMemory("token-abc", "user-1"),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestMyBookings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/booking/my-bookings" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode([]booking.Booking{
			{ID: "bk-1", JourneyID: "j-1", Status: booking.StatusPending},
			{ID: "bk-2", JourneyID: "j-2", Status: booking.StatusAccepted},
		})
	})

	bookings, err := client.MyBookings(context.Background())
	if err != nil {
		t.Fatalf("MyBookings: %v", err)
	}
	if len(bookings) != 2 || bookings[0].ID != "bk-1" || bookings[1].Status != booking.StatusAccepted {
		t.Errorf("unexpected bookings: %+v", bookings)
	}
}

func TestCreateBooking(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/booking/book" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		var request struct {
			JourneyID string `json:"journeyId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if request.JourneyID != "j-7" {
			t.Errorf("journeyId = %q, want %q", request.JourneyID, "j-7")
		}
		json.NewEncoder(w).Encode(booking.Booking{
			ID:        "bk-9",
			JourneyID: request.JourneyID,
			Status:    booking.StatusPending,
		})
	})

	created, err := client.CreateBooking(context.Background(), "j-7")
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if created.ID != "bk-9" || created.Status != booking.StatusPending {
		t.Errorf("unexpected booking: %+v", created)
	}
}

func TestUpdateBookingStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/booking/bk-3/status" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		var request struct {
			Status booking.Status `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(booking.Booking{
			ID:        "bk-3",
			Status:    request.Status,
			UpdatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		})
	})

	updated, err := client.UpdateBookingStatus(context.Background(), "bk-3", booking.StatusAccepted)
	if err != nil {
		t.Fatalf("UpdateBookingStatus: %v", err)
	}
	if updated.Status != booking.StatusAccepted {
		t.Errorf("status = %q, want accepted", updated.Status)
	}
}

func TestMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("senderId") != "user-1" || query.Get("receiverId") != "user-2" {
			t.Errorf("query = %v", query)
		}
		json.NewEncoder(w).Encode([]chat.Message{
			{ID: "msg-1", SenderID: "user-2", ReceiverID: "user-1", Content: "hi"},
		})
	})

	messages, err := client.Messages(context.Background(), "user-1", "user-2")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if messages[0].Key != chat.NewConversationKey("user-1", "user-2") {
		t.Errorf("key = %q", messages[0].Key)
	}
	if messages[0].Delivery != chat.DeliveryConfirmed {
		t.Errorf("delivery = %q, want confirmed", messages[0].Delivery)
	}
}

func TestServerErrorMessageVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "journey has no remaining capacity",
		})
	})

	_, err := client.CreateBooking(context.Background(), "j-1")
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("error = %v, want *ServerError", err)
	}
	if serverErr.Message != "journey has no remaining capacity" {
		t.Errorf("message = %q, want the server's verbatim", serverErr.Message)
	}
	if serverErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", serverErr.StatusCode)
	}
}

func TestServerErrorNonJSONBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	_, err := client.MyBookings(context.Background())
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("error = %v, want *ServerError", err)
	}
	if serverErr.Message != "upstream unavailable" {
		t.Errorf("message = %q, want the raw body", serverErr.Message)
	}
}

func TestAuthFailureClassification(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
	})

	_, err := client.MyBookings(context.Background())
	if !IsAuthFailure(err) {
		t.Errorf("IsAuthFailure = false for a 401, err = %v", err)
	}
	if IsAuthFailure(&ServerError{StatusCode: http.StatusConflict}) {
		t.Errorf("IsAuthFailure = true for a 409")
	}
}
