// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/packride/packride-go/booking"
)

// MyBookings fetches the bookings this user is a party to.
func (c *Client) MyBookings(ctx context.Context) ([]booking.Booking, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/booking/my-bookings", nil, nil)
	if err != nil {
		return nil, err
	}
	var bookings []booking.Booking
	if err := json.Unmarshal(body, &bookings); err != nil {
		return nil, fmt.Errorf("api: parsing my-bookings response: %w", err)
	}
	return bookings, nil
}

// RequestsReceived fetches pending booking requests against this
// user's journeys.
func (c *Client) RequestsReceived(ctx context.Context) ([]booking.Booking, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/booking/requests-received", nil, nil)
	if err != nil {
		return nil, err
	}
	var bookings []booking.Booking
	if err := json.Unmarshal(body, &bookings); err != nil {
		return nil, fmt.Errorf("api: parsing requests-received response: %w", err)
	}
	return bookings, nil
}

// CreateBooking requests a parcel slot on a journey. The server
// returns the created booking in pending status.
func (c *Client) CreateBooking(ctx context.Context, journeyID string) (booking.Booking, error) {
	request := struct {
		JourneyID string `json:"journeyId"`
	}{JourneyID: journeyID}

	body, err := c.doRequest(ctx, http.MethodPost, "/booking/book", request, nil)
	if err != nil {
		return booking.Booking{}, err
	}
	var created booking.Booking
	if err := json.Unmarshal(body, &created); err != nil {
		return booking.Booking{}, fmt.Errorf("api: parsing book response: %w", err)
	}
	return created, nil
}

// UpdateBookingStatus transitions a booking and returns the
// authoritative updated booking.
func (c *Client) UpdateBookingStatus(ctx context.Context, id string, status booking.Status) (booking.Booking, error) {
	request := struct {
		Status booking.Status `json:"status"`
	}{Status: status}

	path := "/booking/" + url.PathEscape(id) + "/status"
	body, err := c.doRequest(ctx, http.MethodPatch, path, request, nil)
	if err != nil {
		return booking.Booking{}, err
	}
	var updated booking.Booking
	if err := json.Unmarshal(body, &updated); err != nil {
		return booking.Booking{}, fmt.Errorf("api: parsing status update response: %w", err)
	}
	return updated, nil
}
