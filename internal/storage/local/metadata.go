package local

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mcpterm/mcpterm/internal/types"
)

// MetaLastSyncTime is the sync watermark key.
const MetaLastSyncTime = "last_sync_time"

// GetMeta returns a sync_metadata value, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM sync_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, wrapDBError("local: get meta", err)
}

// SetMeta upserts a sync_metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	return wrapDBError("local: set meta", err)
}

// RecordConflict appends to the conflict log.
func (s *Store) RecordConflict(ctx context.Context, entry types.ConflictLogEntry) error {
	resolvedAt := entry.ResolvedAt
	if resolvedAt == 0 {
		resolvedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflict_log (command_uuid, local_data, remote_data, resolution, resolved_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.CommandUUID, entry.LocalData, entry.RemoteData, string(entry.Resolution), resolvedAt)
	return wrapDBError("local: record conflict", err)
}

// GetConflicts returns the most recent conflict log entries.
func (s *Store) GetConflicts(ctx context.Context, limit int) ([]types.ConflictLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT command_uuid, local_data, remote_data, resolution, resolved_at
		FROM conflict_log ORDER BY resolved_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, wrapDBError("local: get conflicts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ConflictLogEntry
	for rows.Next() {
		var e types.ConflictLogEntry
		var resolution string
		if err := rows.Scan(&e.CommandUUID, &e.LocalData, &e.RemoteData,
			&resolution, &e.ResolvedAt); err != nil {
			return nil, wrapDBError("local: get conflicts", err)
		}
		e.Resolution = types.ConflictResolution(resolution)
		out = append(out, e)
	}
	return out, rows.Err()
}
