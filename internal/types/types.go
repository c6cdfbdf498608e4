// Package types defines the core data structures shared across mcpterm.
package types

import (
	"time"
)

// Status tracks a history entry through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// CanTransitionTo reports whether a transition from s to next is legal.
// The state machine is a DAG: pending -> processing -> {completed, cancelled,
// error}, with cancelled also reachable directly from pending. Terminal
// states never transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// SyncStatus tracks whether a local row has been uploaded.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Scope selects which remote history table(s) a write or read targets.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeUser    Scope = "user"
	ScopeMachine Scope = "machine"
	// ScopeHybrid fans writes out to global + machine (+ user when set) and
	// unions the three scopes on read.
	ScopeHybrid Scope = "hybrid"
)

// ParseScope validates a scope string, defaulting to hybrid.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeGlobal, ScopeUser, ScopeMachine, ScopeHybrid:
		return Scope(s), true
	case "":
		return ScopeHybrid, true
	}
	return "", false
}

// Limits applied before persisting history rows.
const (
	MaxCommandLen  = 10 * 1024  // question text
	MaxResponseLen = 100 * 1024 // AI answer
	MaxErrorLen    = 500        // sync_queue.last_error

	// TruncationMarker is appended when an oversized field is cut.
	TruncationMarker = "…[truncated]"
)

// Truncate cuts s to max bytes, appending the truncation marker when it does.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + TruncationMarker
}

// CancelledResponse is the response text persisted for user cancellations.
const CancelledResponse = "[Cancelled by user]"

// InterruptionMarker is the synthetic assistant turn injected into AI
// conversation history wherever a prior cancellation was recorded.
const InterruptionMarker = "[Message processing was interrupted by user]"

// User is an account row in the remote store. Username is the sole
// external key; admin operations are the only mutators.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
}

// Machine describes one physical installation, auto-registered on first use.
type Machine struct {
	MachineID     string    `json:"machine_id"`
	Hostname      string    `json:"hostname"`
	IP            string    `json:"ip"`
	OSInfo        string    `json:"os_info"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	TotalCommands int64     `json:"total_commands"`
}

// HistoryEntry is the central entity, logically identical in the local
// and remote stores.
type HistoryEntry struct {
	ID        string `json:"id"`         // locally-assigned stable hex id
	RequestID string `json:"request_id"` // req_<ts>_<rand>, unique per question
	Command   string `json:"command"`
	Response  string `json:"response,omitempty"`
	Status    Status `json:"status"`

	UserID    *int64 `json:"user_id,omitempty"`
	MachineID string `json:"machine_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Timestamp   int64  `json:"timestamp"` // seconds since epoch
	UpdatedAt   int64  `json:"updated_at,omitempty"`
	CompletedAt *int64 `json:"completed_at,omitempty"`

	TokensUsed      int64 `json:"tokens_used,omitempty"`
	ExecutionTimeMs int64 `json:"execution_time_ms,omitempty"`

	// Local-only replication bookkeeping.
	SyncStatus SyncStatus `json:"sync_status,omitempty"`
	LastSynced int64      `json:"last_synced,omitempty"`
}

// Meta carries the ownership and telemetry attributes of a save.
type Meta struct {
	// EntryUUID pins the command_uuid of the row; empty means allocate.
	EntryUUID       string
	RequestID       string
	UserID          *int64
	MachineID       string
	SessionID       string
	Status          Status
	TokensUsed      int64
	ExecutionTimeMs int64
	Timestamp       int64 // optional; zero means now
}

// StatusExtras carries the optional fields of a status transition.
type StatusExtras struct {
	// Response overrides the stored response text when non-nil.
	Response        *string
	TokensUsed      int64
	ExecutionTimeMs int64
}

// SyncOp is the kind of mutation a queue item replays remotely.
type SyncOp string

const (
	OpInsert SyncOp = "insert"
	OpUpdate SyncOp = "update"
	OpDelete SyncOp = "delete"
)

// SyncQueueItem is one pending upload, local-only. FIFO within a priority
// class; retried up to the engine's max before being parked.
type SyncQueueItem struct {
	ID         int64  `json:"id"`
	Op         SyncOp `json:"op"`
	Table      string `json:"table"`
	RecordID   string `json:"record_id"` // command_uuid of the history row
	Payload    string `json:"payload"`   // JSON-encoded HistoryEntry
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// ConflictResolution names the outcome recorded in the conflict log.
type ConflictResolution string

const (
	ResolutionKeptLocal  ConflictResolution = "kept_local"
	ResolutionKeptRemote ConflictResolution = "kept_remote"
	ResolutionSkipped    ConflictResolution = "skipped"
)

// ConflictLogEntry records one resolved (or skipped) divergence between the
// local and remote copy of a history row.
type ConflictLogEntry struct {
	CommandUUID string             `json:"command_uuid"`
	LocalData   string             `json:"local_data"`
	RemoteData  string             `json:"remote_data"`
	Resolution  ConflictResolution `json:"resolution"`
	ResolvedAt  int64              `json:"resolved_at"`
}

// HistoryFilter narrows GetHistory reads.
type HistoryFilter struct {
	UserID    *int64
	MachineID string
	SessionID string
	Search    string
	Since     int64 // unix seconds, 0 = no lower bound
}
