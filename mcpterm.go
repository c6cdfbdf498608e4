// Package mcpterm provides a minimal public API for embedding mct's
// history storage in other tools.
//
// Most integrations should shell out to the mct binary; this package
// exports only the types and constructors needed to read or write the
// same history stores programmatically.
package mcpterm

import (
	"context"

	"github.com/mcpterm/mcpterm/internal/config"
	"github.com/mcpterm/mcpterm/internal/storage"
	"github.com/mcpterm/mcpterm/internal/storage/local"
	"github.com/mcpterm/mcpterm/internal/storage/remote"
	"github.com/mcpterm/mcpterm/internal/types"
)

// Core types for working with history.
type (
	HistoryEntry  = types.HistoryEntry
	HistoryFilter = types.HistoryFilter
	Meta          = types.Meta
	Status        = types.Status
	Scope         = types.Scope
)

// Status constants.
const (
	StatusPending    = types.StatusPending
	StatusProcessing = types.StatusProcessing
	StatusCompleted  = types.StatusCompleted
	StatusCancelled  = types.StatusCancelled
	StatusError      = types.StatusError
)

// Scope constants.
const (
	ScopeGlobal  = types.ScopeGlobal
	ScopeUser    = types.ScopeUser
	ScopeMachine = types.ScopeMachine
	ScopeHybrid  = types.ScopeHybrid
)

// LocalStore and RemoteStore are the two history backends.
type (
	LocalStore  = storage.Local
	RemoteStore = storage.Remote
)

// RemoteConfig mirrors ~/.mcp-terminal/turso-config.json.
type RemoteConfig = config.Config

// OpenLocal opens (or creates) the embedded history cache at path.
func OpenLocal(ctx context.Context, path string) (LocalStore, error) {
	return local.New(ctx, path)
}

// OpenRemote dials the shared history database described by cfg.
func OpenRemote(ctx context.Context, cfg *RemoteConfig) (RemoteStore, error) {
	return remote.New(ctx, cfg)
}
