// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP client for the marketplace's REST API. The
// realtime engine uses it for initial loads and for the request half
// of optimistic mutations; pushes arrive over the socket, not here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/packride/packride-go/lib/credential"
)

// maxResponseBytes bounds how much of a response body is read. The
// API's largest responses are booking and message lists; 8 MiB is far
// above any legitimate payload.
const maxResponseBytes = 8 << 20

// ServerError is a non-2xx API response. Message is the server's
// `message` field verbatim — it is what the UI shows the user on a
// rolled-back mutation.
type ServerError struct {
	Message    string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("api: server rejected request (%d): %s", e.StatusCode, e.Message)
}

// IsAuthFailure reports whether err is a 401 from the server. Auth
// failures are fatal for the session and never retried.
func IsAuthFailure(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.StatusCode == http.StatusUnauthorized
}

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.packride.example".
	BaseURL string

	// Credentials supplies the bearer token attached to every request.
	Credentials credential.Store

	// HTTPClient overrides the default client. If nil, a client with
	// the request timeout is created.
	HTTPClient *http.Client

	// RequestTimeout bounds each request. Default 10s. Ignored when
	// HTTPClient is set.
	RequestTimeout time.Duration

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Client is a bearer-token JSON client for the marketplace API.
type Client struct {
	baseURL     string
	credentials credential.Store
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a Client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if config.Credentials == nil {
		return nil, fmt.Errorf("api: Credentials store is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.RequestTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:     config.BaseURL,
		credentials: config.Credentials,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// doRequest performs one request and returns the response body. On
// 2xx, returns the body. On any other status, returns a *ServerError
// carrying the server's message verbatim. query may be nil.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("api: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token := c.credentials.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("api: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All API error responses share the {message} shape.
	var errorBody struct {
		Message string `json:"message"`
	}
	if jsonErr := json.Unmarshal(responseBody, &errorBody); jsonErr != nil || errorBody.Message == "" {
		// Non-JSON error body. Fail loud with the raw payload rather
		// than hiding it.
		errorBody.Message = string(responseBody)
	}

	return nil, &ServerError{Message: errorBody.Message, StatusCode: response.StatusCode}
}
