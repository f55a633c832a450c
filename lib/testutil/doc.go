// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by tests: channel
// receive/close assertions with timeout safety valves.
package testutil
