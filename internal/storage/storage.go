// Package storage defines the store contracts implemented by the local
// (embedded sqlite) and remote (libsql) backends.
package storage

import (
	"context"
	"time"

	"github.com/mcpterm/mcpterm/internal/types"
)

// Local is the embedded cache store: history, sync queue, sync metadata,
// and the conflict log.
type Local interface {
	// SaveCommand inserts or replaces a history row by command_uuid and
	// enqueues an upload. Returns the row's command_uuid.
	SaveCommand(ctx context.Context, cmd, resp string, meta types.Meta) (string, error)

	// GetHistory returns rows newest-first, filterable by owner keys.
	GetHistory(ctx context.Context, filter types.HistoryFilter, limit, offset int) ([]types.HistoryEntry, error)

	// GetByUUID returns a single row or types.ErrNotFound.
	GetByUUID(ctx context.Context, uuid string) (*types.HistoryEntry, error)

	// UpdateStatusByRequestID applies a status transition to the cached row.
	UpdateStatusByRequestID(ctx context.Context, requestID string, status types.Status, extras types.StatusExtras) error

	// GetPendingSync returns queue items ordered by (priority DESC,
	// created_at ASC), skipping items at or past maxRetries.
	GetPendingSync(ctx context.Context, limit, maxRetries int) ([]types.SyncQueueItem, error)

	// MarkSynced flips sync_status to synced for the given uuids.
	MarkSynced(ctx context.Context, uuids []string) error

	// ClearSyncQueue removes uploaded queue items.
	ClearSyncQueue(ctx context.Context, ids []int64) error

	// IncrementRetryCount bumps retry_count and records the last error.
	IncrementRetryCount(ctx context.Context, id int64, errMsg string) error

	// ImportHistory performs an idempotent insert-or-ignore by command_uuid,
	// marking imported rows synced. Returns the number of new rows.
	ImportHistory(ctx context.Context, entries []types.HistoryEntry) (int, error)

	// RecordConflict appends to the conflict log.
	RecordConflict(ctx context.Context, entry types.ConflictLogEntry) error

	// Cleanup deletes synced rows older than daysToKeep.
	Cleanup(ctx context.Context, daysToKeep int) (int64, error)

	// PurgeFailedQueueItems removes permanently-failed queue rows older
	// than the given age.
	PurgeFailedQueueItems(ctx context.Context, maxRetries int, olderThan time.Duration) (int64, error)

	// GetMeta / SetMeta access sync_metadata (e.g. the sync watermark).
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	Close() error
}

// Remote is the shared network store with scope-aware history tables.
type Remote interface {
	// SaveGlobal / SaveUser / SaveMachine write to one history scope and
	// return the remote row id. Duplicate command_uuids update in place.
	SaveGlobal(ctx context.Context, cmd, resp string, meta types.Meta) (int64, error)
	SaveUser(ctx context.Context, cmd, resp string, meta types.Meta) (int64, error)
	SaveMachine(ctx context.Context, cmd, resp string, meta types.Meta) (int64, error)

	// Save routes by scope; hybrid fans out and returns the primary row id.
	Save(ctx context.Context, scope types.Scope, cmd, resp string, meta types.Meta) (int64, error)

	// UpdateStatusByRequestID transitions status across all scope tables,
	// setting updated_at and (for terminal states) completed_at. Returns
	// rows affected.
	UpdateStatusByRequestID(ctx context.Context, requestID string, status types.Status, extras types.StatusExtras) (int64, error)

	// UpdateStatusByRowID is the zero-rows fallback keyed on the row id
	// recorded at insert time.
	UpdateStatusByRowID(ctx context.Context, scope types.Scope, id int64, status types.Status, extras types.StatusExtras) error

	// GetHistory reads one scope; hybrid unions the three scopes over the
	// last seven days, newest-first.
	GetHistory(ctx context.Context, scope types.Scope, filter types.HistoryFilter, limit, offset int) ([]types.HistoryEntry, error)

	// GetUserByUsername resolves the sole external user key.
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)

	// UpsertMachine registers or refreshes a machine row.
	UpsertMachine(ctx context.Context, m *types.Machine) error

	Close() error
}
