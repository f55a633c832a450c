// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "packride.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://localhost:8000
socket:
  url: ws://localhost:8000/socket
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Socket.ReconnectAttempts != 5 {
		t.Errorf("ReconnectAttempts = %d, want default 5", cfg.Socket.ReconnectAttempts)
	}
	if cfg.Socket.ReconnectDelay.Std() != time.Second {
		t.Errorf("ReconnectDelay = %v, want default 1s", cfg.Socket.ReconnectDelay)
	}
	if cfg.Chat.TypingExpiry.Std() != 2*time.Second {
		t.Errorf("TypingExpiry = %v, want default 2s", cfg.Chat.TypingExpiry)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://api.example.com
  request_timeout: 3s
socket:
  url: wss://api.example.com/socket
  reconnect_attempts: 2
  reconnect_delay: 500ms
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.API.RequestTimeout.Std() != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.API.RequestTimeout)
	}
	if cfg.Socket.ReconnectAttempts != 2 {
		t.Errorf("ReconnectAttempts = %d, want 2", cfg.Socket.ReconnectAttempts)
	}
	if cfg.Socket.ReconnectDelay.Std() != 500*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 500ms", cfg.Socket.ReconnectDelay)
	}
}

func TestValidateRejectsMissingURLs(t *testing.T) {
	path := writeConfig(t, `
api:
  request_timeout: 3s
`)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for missing base_url and socket url")
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("PACKRIDE_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when PACKRIDE_CONFIG is unset")
	}
}
