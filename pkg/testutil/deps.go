// Package testutil provides test helpers and fixtures for system testing.
//
// This file imports test infrastructure dependencies to ensure they are
// tracked in go.mod. These are used by the Incus fixture and golden
// file helpers.
package testutil

import (
	// Incus Go client for VM management in integration tests
	_ "github.com/lxc/incus/v6/client"

	// Goldie for golden file testing with -update flag support
	_ "github.com/sebdah/goldie/v2"
)
