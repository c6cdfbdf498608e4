package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mcpterm/mcpterm/internal/idgen"
	"github.com/mcpterm/mcpterm/internal/types"
)

// hybridWindowDays bounds the union read in hybrid mode.
const hybridWindowDays = 7

var scopeTables = map[types.Scope]string{
	types.ScopeGlobal:  "history_global",
	types.ScopeUser:    "history_user",
	types.ScopeMachine: "history_machine",
}

const historyColumns = `command_uuid, request_id, command, response, status,
	user_id, machine_id, session_id, timestamp, updated_at, completed_at,
	tokens_used, execution_time_ms`

// SaveGlobal writes to the global history scope. Duplicate command_uuids
// update in place so retried uploads stay idempotent.
func (s *Store) SaveGlobal(ctx context.Context, cmd, resp string, meta types.Meta) (int64, error) {
	return s.saveScope(ctx, "history_global", cmd, resp, meta)
}

// SaveUser writes to the per-user history scope.
func (s *Store) SaveUser(ctx context.Context, cmd, resp string, meta types.Meta) (int64, error) {
	return s.saveScope(ctx, "history_user", cmd, resp, meta)
}

// SaveMachine writes to the per-machine history scope.
func (s *Store) SaveMachine(ctx context.Context, cmd, resp string, meta types.Meta) (int64, error) {
	return s.saveScope(ctx, "history_machine", cmd, resp, meta)
}

func (s *Store) saveScope(ctx context.Context, table, cmd, resp string, meta types.Meta) (int64, error) {
	if strings.TrimSpace(cmd) == "" {
		return 0, fmt.Errorf("remote: save: %w: empty command", types.ErrBadInput)
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

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO `+table+`
			(command_uuid, request_id, command, response, status, user_id,
			 machine_id, session_id, timestamp, updated_at, completed_at,
			 tokens_used, execution_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (command_uuid) DO UPDATE SET
			response = excluded.response,
			status = excluded.status,
			updated_at = excluded.updated_at,
			completed_at = COALESCE(excluded.completed_at, completed_at),
			tokens_used = excluded.tokens_used,
			execution_time_ms = excluded.execution_time_ms
		RETURNING id
	`, uuid, nullStr(meta.RequestID), cmd, nullStr(resp), string(status),
		meta.UserID, nullStr(meta.MachineID), nullStr(meta.SessionID),
		ts, ts, completedAt, meta.TokensUsed, meta.ExecutionTimeMs).Scan(&id)
	if err != nil {
		return 0, wrapRemoteErr("remote: save "+table, err)
	}
	return id, nil
}

// Save routes a write by scope. Hybrid fans out to global + machine
// (+ user when set); the returned id is the primary row's: user scope when
// a user is set, else machine, else global.
func (s *Store) Save(ctx context.Context, scope types.Scope, cmd, resp string, meta types.Meta) (int64, error) {
	switch scope {
	case types.ScopeGlobal:
		return s.SaveGlobal(ctx, cmd, resp, meta)
	case types.ScopeUser:
		return s.SaveUser(ctx, cmd, resp, meta)
	case types.ScopeMachine:
		return s.SaveMachine(ctx, cmd, resp, meta)
	case types.ScopeHybrid:
		globalID, err := s.SaveGlobal(ctx, cmd, resp, meta)
		if err != nil {
			return 0, err
		}
		primary := globalID
		if meta.MachineID != "" {
			machineID, err := s.SaveMachine(ctx, cmd, resp, meta)
			if err != nil {
				return 0, err
			}
			primary = machineID
		}
		if meta.UserID != nil {
			userID, err := s.SaveUser(ctx, cmd, resp, meta)
			if err != nil {
				return 0, err
			}
			primary = userID
		}
		return primary, nil
	}
	return 0, fmt.Errorf("remote: save: %w: unknown scope %q", types.ErrBadInput, scope)
}

// UpdateStatusByRequestID transitions status across all three scope tables,
// atomically per table. updated_at is always stamped; terminal states also
// set completed_at. A non-nil extras.Response overrides the stored text.
// Returns total rows affected; repeated updates with the same terminal
// status remain idempotent.
func (s *Store) UpdateStatusByRequestID(ctx context.Context, requestID string, status types.Status, extras types.StatusExtras) (int64, error) {
	if requestID == "" {
		return 0, fmt.Errorf("remote: update status: %w: empty request id", types.ErrBadInput)
	}
	var total int64
	for _, table := range []string{"history_global", "history_user", "history_machine"} {
		n, err := s.updateStatus(ctx, table, "request_id = ?", requestID, status, extras)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// UpdateStatusByRowID is the fallback used when a request_id update matched
// zero rows: it keys on the row id recorded at insert time.
func (s *Store) UpdateStatusByRowID(ctx context.Context, scope types.Scope, id int64, status types.Status, extras types.StatusExtras) error {
	table, ok := scopeTables[scope]
	if !ok {
		return fmt.Errorf("remote: update by row id: %w: scope %q", types.ErrBadInput, scope)
	}
	_, err := s.updateStatus(ctx, table, "id = ?", id, status, extras)
	return err
}

func (s *Store) updateStatus(ctx context.Context, table, whereClause string, key interface{}, status types.Status, extras types.StatusExtras) (int64, error) {
	now := time.Now().Unix()
	var completedAt *int64
	if status.IsTerminal() {
		completedAt = &now
	}
	var resp interface{}
	if extras.Response != nil {
		resp = types.Truncate(*extras.Response, types.MaxResponseLen)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = ?,
		    updated_at = ?,
		    completed_at = COALESCE(?, completed_at),
		    response = COALESCE(?, response),
		    tokens_used = CASE WHEN ? > 0 THEN ? ELSE tokens_used END,
		    execution_time_ms = CASE WHEN ? > 0 THEN ? ELSE execution_time_ms END
		WHERE `+whereClause+`
		  AND status NOT IN ('completed', 'cancelled', 'error')
	`, string(status), now, completedAt, resp,
		extras.TokensUsed, extras.TokensUsed,
		extras.ExecutionTimeMs, extras.ExecutionTimeMs, key)
	if err != nil {
		return 0, wrapRemoteErr("remote: update status "+table, err)
	}
	return res.RowsAffected()
}

// GetHistory reads one scope; hybrid unions the three scopes over the last
// seven days, newest-first.
func (s *Store) GetHistory(ctx context.Context, scope types.Scope, filter types.HistoryFilter, limit, offset int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if scope == types.ScopeHybrid {
		return s.getHybrid(ctx, filter, limit, offset)
	}
	table, ok := scopeTables[scope]
	if !ok {
		return nil, fmt.Errorf("remote: get history: %w: scope %q", types.ErrBadInput, scope)
	}

	where, args := filterClauses(filter)
	query := "SELECT " + historyColumns + " FROM " + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapRemoteErr("remote: get history "+table, err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

func (s *Store) getHybrid(ctx context.Context, filter types.HistoryFilter, limit, offset int) ([]types.HistoryEntry, error) {
	since := filter.Since
	cutoff := time.Now().AddDate(0, 0, -hybridWindowDays).Unix()
	if since < cutoff {
		since = cutoff
	}
	where, args := filterClauses(types.HistoryFilter{
		UserID:    filter.UserID,
		MachineID: filter.MachineID,
		Search:    filter.Search,
		Since:     since,
	})
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var parts []string
	var allArgs []interface{}
	for _, table := range []string{"history_global", "history_user", "history_machine"} {
		parts = append(parts, "SELECT "+historyColumns+" FROM "+table+clause)
		allArgs = append(allArgs, args...)
	}
	// UNION deduplicates fan-out rows sharing a command_uuid.
	query := strings.Join(parts, " UNION ") +
		" ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	allArgs = append(allArgs, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, wrapRemoteErr("remote: get hybrid history", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// GetHistorySince pages one scope forward from a watermark, oldest-first,
// for the sync download phase.
func (s *Store) GetHistorySince(ctx context.Context, scope types.Scope, since int64, limit, offset int) ([]types.HistoryEntry, error) {
	table, ok := scopeTables[scope]
	if !ok {
		return nil, fmt.Errorf("remote: get since: %w: scope %q", types.ErrBadInput, scope)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM `+table+`
		WHERE COALESCE(updated_at, timestamp) >= ?
		ORDER BY COALESCE(updated_at, timestamp) ASC, id ASC
		LIMIT ? OFFSET ?
	`, since, limit, offset)
	if err != nil {
		return nil, wrapRemoteErr("remote: get since "+table, err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

func filterClauses(filter types.HistoryFilter) ([]string, []interface{}) {
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
	if filter.Search != "" {
		where = append(where, "(command LIKE ? OR response LIKE ?)")
		pat := "%" + filter.Search + "%"
		args = append(args, pat, pat)
	}
	if filter.Since > 0 {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since)
	}
	return where, args
}

func scanEntries(rows *sql.Rows) ([]types.HistoryEntry, error) {
	var out []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		var uuid, requestID, response, machineID, sessionID sql.NullString
		var userID, updatedAt, completedAt sql.NullInt64
		if err := rows.Scan(&uuid, &requestID, &e.Command, &response, &e.Status,
			&userID, &machineID, &sessionID, &e.Timestamp, &updatedAt,
			&completedAt, &e.TokensUsed, &e.ExecutionTimeMs); err != nil {
			return nil, err
		}
		e.ID = uuid.String
		e.RequestID = requestID.String
		e.Response = response.String
		e.MachineID = machineID.String
		e.SessionID = sessionID.String
		if userID.Valid {
			e.UserID = &userID.Int64
		}
		if updatedAt.Valid {
			e.UpdatedAt = updatedAt.Int64
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Int64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
