// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the packride
// client. Configuration comes from a single YAML file specified by:
//   - PACKRIDE_CONFIG environment variable, or
//   - an explicit path passed to LoadFile
//
// There are no fallbacks or automatic discovery. Defaults exist so
// every field has a sensible zero-value before the file is applied.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the packride client.
type Config struct {
	// API configures the HTTP collaborator used for initial loads and
	// mutations.
	API APIConfig `yaml:"api"`

	// Socket configures the persistent bidirectional connection.
	Socket SocketConfig `yaml:"socket"`

	// Chat configures typing-indicator behavior.
	Chat ChatConfig `yaml:"chat"`
}

// APIConfig configures the HTTP API client.
type APIConfig struct {
	// BaseURL is the HTTP API base URL (e.g., "http://localhost:8000").
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds each HTTP request. Default: 10s.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// SocketConfig configures the websocket connection.
type SocketConfig struct {
	// URL is the websocket endpoint (e.g., "ws://localhost:8000/socket").
	URL string `yaml:"url"`

	// HandshakeTimeout bounds the dial plus auth handshake. Default: 8s.
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	// CallTimeout bounds a round-trip awaiting a server ack. Default: 10s.
	CallTimeout Duration `yaml:"call_timeout"`

	// ReconnectAttempts is the number of automatic reconnects after an
	// unexpected transport loss before giving up. Default: 5.
	ReconnectAttempts int `yaml:"reconnect_attempts"`

	// ReconnectDelay is the base delay between reconnect attempts; the
	// actual delay is attempt × ReconnectDelay. Default: 1s.
	ReconnectDelay Duration `yaml:"reconnect_delay"`
}

// ChatConfig configures typing-indicator behavior.
type ChatConfig struct {
	// TypingExpiry is how long a remote typing indicator stays set
	// without a refresh. Default: 2s.
	TypingExpiry Duration `yaml:"typing_expiry"`

	// TypingRefresh is the minimum interval between outgoing typing
	// events during one keystroke burst. Default: 2s.
	TypingRefresh Duration `yaml:"typing_refresh"`
}

// Default returns the default configuration. URLs are empty and must
// come from the config file.
func Default() *Config {
	return &Config{
		API: APIConfig{
			RequestTimeout: Duration(10 * time.Second),
		},
		Socket: SocketConfig{
			HandshakeTimeout:  Duration(8 * time.Second),
			CallTimeout:       Duration(10 * time.Second),
			ReconnectAttempts: 5,
			ReconnectDelay:    Duration(1 * time.Second),
		},
		Chat: ChatConfig{
			TypingExpiry:  Duration(2 * time.Second),
			TypingRefresh: Duration(2 * time.Second),
		},
	}
}

// Load loads configuration from the file named by PACKRIDE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("PACKRIDE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: PACKRIDE_CONFIG environment variable not set; " +
			"set it to the path of your packride.yaml config file")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.base_url is required"))
	}
	if c.Socket.URL == "" {
		errs = append(errs, fmt.Errorf("socket.url is required"))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("api.request_timeout must be positive"))
	}
	if c.Socket.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("socket.handshake_timeout must be positive"))
	}
	if c.Socket.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("socket.call_timeout must be positive"))
	}
	if c.Socket.ReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("socket.reconnect_attempts must not be negative"))
	}
	if c.Socket.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("socket.reconnect_delay must be positive"))
	}
	if c.Chat.TypingExpiry <= 0 {
		errs = append(errs, fmt.Errorf("chat.typing_expiry must be positive"))
	}
	if c.Chat.TypingRefresh <= 0 {
		errs = append(errs, fmt.Errorf("chat.typing_refresh must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
