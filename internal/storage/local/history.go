package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcpterm/mcpterm/internal/idgen"
	"github.com/mcpterm/mcpterm/internal/types"
)

// SaveCommand inserts or replaces a history row by command_uuid and
// enqueues an insert op in the sync queue at priority 0. Oversized inputs
// are truncated with an explicit marker. Returns the row's command_uuid.
func (s *Store) SaveCommand(ctx context.Context, cmd, resp string, meta types.Meta) (string, error) {
	if strings.TrimSpace(cmd) == "" {
		return "", fmt.Errorf("local: save command: %w: empty command", types.ErrBadInput)
	}

	cmd = types.Truncate(cmd, types.MaxCommandLen)
	resp = types.Truncate(resp, types.MaxResponseLen)

	ts := meta.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	status := meta.Status
	if status == "" {
		status = types.StatusPending
	}
	var completedAt *int64
	if status.IsTerminal() {
		now := time.Now().Unix()
		if now < ts {
			now = ts
		}
		completedAt = &now
	}

	uuid := meta.EntryUUID
	if uuid == "" {
		uuid = idgen.NewEntryID()
	}
	entry := types.HistoryEntry{
		ID:              uuid,
		RequestID:       meta.RequestID,
		Command:         cmd,
		Response:        resp,
		Status:          status,
		UserID:          meta.UserID,
		MachineID:       meta.MachineID,
		SessionID:       meta.SessionID,
		Timestamp:       ts,
		UpdatedAt:       ts,
		CompletedAt:     completedAt,
		TokensUsed:      meta.TokensUsed,
		ExecutionTimeMs: meta.ExecutionTimeMs,
		SyncStatus:      types.SyncPending,
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("local: marshal payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", wrapDBError("local: save command", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO history_cache
			(command_uuid, request_id, command, response, status, user_id,
			 machine_id, session_id, timestamp, updated_at, completed_at,
			 tokens_used, execution_time_ms, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')
	`, entry.ID, nullStr(entry.RequestID), entry.Command, nullStr(entry.Response),
		string(entry.Status), entry.UserID, nullStr(entry.MachineID),
		nullStr(entry.SessionID), entry.Timestamp, entry.UpdatedAt,
		entry.CompletedAt, entry.TokensUsed, entry.ExecutionTimeMs)
	if err != nil {
		return "", wrapDBError("local: save command", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_queue (op, table_name, record_id, payload, priority, created_at)
		VALUES ('insert', 'history_cache', ?, ?, 0, ?)
	`, entry.ID, string(payload), time.Now().Unix())
	if err != nil {
		return "", wrapDBError("local: enqueue sync", err)
	}

	if err := tx.Commit(); err != nil {
		return "", wrapDBError("local: save command", err)
	}
	return uuid, nil
}

// UpdateStatusByRequestID applies a status transition to the cached row and
// re-marks it for upload.
func (s *Store) UpdateStatusByRequestID(ctx context.Context, requestID string, status types.Status, extras types.StatusExtras) error {
	now := time.Now().Unix()
	var completedAt *int64
	if status.IsTerminal() {
		completedAt = &now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE history_cache
		SET status = ?,
		    updated_at = ?,
		    completed_at = COALESCE(?, completed_at),
		    response = COALESCE(?, response),
		    tokens_used = CASE WHEN ? > 0 THEN ? ELSE tokens_used END,
		    execution_time_ms = CASE WHEN ? > 0 THEN ? ELSE execution_time_ms END,
		    sync_status = 'pending'
		WHERE request_id = ?
	`, string(status), now, completedAt, truncatedResponse(extras.Response),
		extras.TokensUsed, extras.TokensUsed,
		extras.ExecutionTimeMs, extras.ExecutionTimeMs,
		requestID)
	return wrapDBError("local: update status", err)
}

func truncatedResponse(resp *string) *string {
	if resp == nil {
		return nil
	}
	t := types.Truncate(*resp, types.MaxResponseLen)
	return &t
}

const historyColumns = `command_uuid, request_id, command, response, status,
	user_id, machine_id, session_id, timestamp, updated_at, completed_at,
	tokens_used, execution_time_ms, sync_status, last_synced`

// GetHistory returns rows newest-first, filterable by user, machine, and
// session, with optional substring search and time lower bound.
func (s *Store) GetHistory(ctx context.Context, filter types.HistoryFilter, limit, offset int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var where []string
	var args []interface{}
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.MachineID != "" {
		where = append(where, "machine_id = ?")
		args = append(args, filter.MachineID)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Search != "" {
		where = append(where, "(command LIKE ? OR response LIKE ?)")
		pat := "%" + filter.Search + "%"
		args = append(args, pat, pat)
	}
	if filter.Since > 0 {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since)
	}

	query := "SELECT " + historyColumns + " FROM history_cache"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, command_uuid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("local: get history", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

// GetByUUID returns a single row or types.ErrNotFound.
func (s *Store) GetByUUID(ctx context.Context, uuid string) (*types.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+historyColumns+" FROM history_cache WHERE command_uuid = ?", uuid)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, wrapDBError("local: get by uuid", err)
	}
	return entry, nil
}

// ImportHistory performs an idempotent insert-or-ignore by command_uuid and
// marks imported rows synced. Returns the number of newly inserted rows.
func (s *Store) ImportHistory(ctx context.Context, entries []types.HistoryEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapDBError("local: import history", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	inserted := 0
	for _, e := range entries {
		if e.ID == "" || e.Command == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO history_cache
				(command_uuid, request_id, command, response, status, user_id,
				 machine_id, session_id, timestamp, updated_at, completed_at,
				 tokens_used, execution_time_ms, sync_status, last_synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?)
		`, e.ID, nullStr(e.RequestID), types.Truncate(e.Command, types.MaxCommandLen),
			nullStr(types.Truncate(e.Response, types.MaxResponseLen)),
			string(e.Status), e.UserID, nullStr(e.MachineID), nullStr(e.SessionID),
			e.Timestamp, e.UpdatedAt, e.CompletedAt, e.TokensUsed,
			e.ExecutionTimeMs, now)
		if err != nil {
			return 0, wrapDBError("local: import history", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapDBError("local: import history", err)
	}
	return inserted, nil
}

// ReplaceFromRemote overwrites the local row with the remote winner of a
// conflict, keeping it marked synced.
func (s *Store) ReplaceFromRemote(ctx context.Context, e types.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO history_cache
			(command_uuid, request_id, command, response, status, user_id,
			 machine_id, session_id, timestamp, updated_at, completed_at,
			 tokens_used, execution_time_ms, sync_status, last_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'synced', ?)
	`, e.ID, nullStr(e.RequestID), types.Truncate(e.Command, types.MaxCommandLen),
		nullStr(types.Truncate(e.Response, types.MaxResponseLen)),
		string(e.Status), e.UserID, nullStr(e.MachineID), nullStr(e.SessionID),
		e.Timestamp, e.UpdatedAt, e.CompletedAt, e.TokensUsed,
		e.ExecutionTimeMs, time.Now().Unix())
	return wrapDBError("local: replace from remote", err)
}

// Cleanup deletes synced rows older than daysToKeep. Returns rows deleted.
func (s *Store) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep).Unix()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM history_cache WHERE sync_status = 'synced' AND timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, wrapDBError("local: cleanup", err)
	}
	return res.RowsAffected()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*types.HistoryEntry, error) {
	var e types.HistoryEntry
	var requestID, response, machineID, sessionID, syncStatus sql.NullString
	var userID, updatedAt, completedAt, lastSynced sql.NullInt64

	err := row.Scan(&e.ID, &requestID, &e.Command, &response, &e.Status,
		&userID, &machineID, &sessionID, &e.Timestamp, &updatedAt,
		&completedAt, &e.TokensUsed, &e.ExecutionTimeMs, &syncStatus, &lastSynced)
	if err != nil {
		return nil, err
	}

	e.RequestID = requestID.String
	e.Response = response.String
	e.MachineID = machineID.String
	e.SessionID = sessionID.String
	e.SyncStatus = types.SyncStatus(syncStatus.String)
	if userID.Valid {
		e.UserID = &userID.Int64
	}
	if updatedAt.Valid {
		e.UpdatedAt = updatedAt.Int64
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Int64
	}
	if lastSynced.Valid {
		e.LastSynced = lastSynced.Int64
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]types.HistoryEntry, error) {
	var out []types.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
