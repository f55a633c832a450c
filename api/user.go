// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/packride/packride-go/chat"
)

// Messages fetches the message history between two users, ascending by
// server timestamp. The returned messages carry the canonical
// conversation key and confirmed delivery state.
func (c *Client) Messages(ctx context.Context, senderID, receiverID string) ([]chat.Message, error) {
	query := url.Values{
		"senderId":   {senderID},
		"receiverId": {receiverID},
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/user/messages", nil, query)
	if err != nil {
		return nil, err
	}

	var messages []chat.Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("api: parsing messages response: %w", err)
	}

	key := chat.NewConversationKey(senderID, receiverID)
	for i := range messages {
		messages[i].Key = key
		messages[i].Delivery = chat.DeliveryConfirmed
	}
	return messages, nil
}

// UserProfile is the mutable part of a user's profile.
type UserProfile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// UpdateProfile replaces the user's profile fields.
func (c *Client) UpdateProfile(ctx context.Context, profile UserProfile) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/user/update", profile, nil)
	return err
}
