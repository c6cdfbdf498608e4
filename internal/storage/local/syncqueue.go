package local

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/mcpterm/mcpterm/internal/types"
)

// GetPendingSync returns up to limit queue items ordered by
// (priority DESC, created_at ASC), skipping items at or past maxRetries.
func (s *Store) GetPendingSync(ctx context.Context, limit, maxRetries int) ([]types.SyncQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, table_name, record_id, payload, priority, retry_count,
		       COALESCE(last_error, ''), created_at
		FROM sync_queue
		WHERE retry_count < ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?
	`, maxRetries, limit)
	if err != nil {
		return nil, wrapDBError("local: get pending sync", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.SyncQueueItem
	for rows.Next() {
		var item types.SyncQueueItem
		var op string
		if err := rows.Scan(&item.ID, &op, &item.Table, &item.RecordID,
			&item.Payload, &item.Priority, &item.RetryCount,
			&item.LastError, &item.CreatedAt); err != nil {
			return nil, wrapDBError("local: get pending sync", err)
		}
		item.Op = types.SyncOp(op)
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkSynced flips sync_status to synced for the given uuids and stamps
// last_synced, transactionally.
func (s *Store) MarkSynced(ctx context.Context, uuids []string) error {
	if len(uuids) == 0 {
		return nil
	}
	now := time.Now().Unix()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE history_cache SET sync_status = 'synced', last_synced = ?
			WHERE command_uuid = ?`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for _, uuid := range uuids {
			if _, err := stmt.ExecContext(ctx, now, uuid); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearSyncQueue removes uploaded queue items by id, transactionally.
func (s *Store) ClearSyncQueue(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM sync_queue WHERE id IN ("+placeholders+")", args...)
		return err
	})
}

// IncrementRetryCount bumps retry_count and records the last error,
// truncated to the error length cap.
func (s *Store) IncrementRetryCount(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > types.MaxErrorLen {
		errMsg = errMsg[:types.MaxErrorLen]
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ?
		WHERE id = ?
	`, errMsg, id)
	return wrapDBError("local: increment retry", err)
}

// PendingSyncCount returns the number of uploadable queue items.
func (s *Store) PendingSyncCount(ctx context.Context, maxRetries int) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue WHERE retry_count < ?", maxRetries).Scan(&n)
	return n, wrapDBError("local: pending count", err)
}

// PurgeFailedQueueItems removes permanently-failed queue rows older than
// the given age. Returns rows deleted.
func (s *Store) PurgeFailedQueueItems(ctx context.Context, maxRetries int, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE retry_count >= ? AND created_at < ?
	`, maxRetries, cutoff)
	if err != nil {
		return 0, wrapDBError("local: purge failed queue items", err)
	}
	return res.RowsAffected()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("local: begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrapDBError("local: tx", err)
	}
	return wrapDBError("local: commit", tx.Commit())
}
