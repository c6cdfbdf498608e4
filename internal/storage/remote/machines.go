package remote

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mcpterm/mcpterm/internal/types"
)

// UpsertMachine registers a machine on first use and refreshes last_seen,
// hostname, ip, and os_info on every subsequent call.
func (s *Store) UpsertMachine(ctx context.Context, m *types.Machine) error {
	if m.MachineID == "" {
		return fmt.Errorf("remote: upsert machine: %w: empty machine id", types.ErrBadInput)
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO machines (machine_id, hostname, ip, os_info, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (machine_id) DO UPDATE SET
			hostname = excluded.hostname,
			ip = excluded.ip,
			os_info = excluded.os_info,
			last_seen = excluded.last_seen
	`, m.MachineID, m.Hostname, m.IP, m.OSInfo, now, now)
	return wrapRemoteErr("remote: upsert machine", err)
}

// GetMachine returns one machine row.
func (s *Store) GetMachine(ctx context.Context, machineID string) (*types.Machine, error) {
	var m types.Machine
	var firstSeen, lastSeen int64
	err := s.db.QueryRowContext(ctx, `
		SELECT machine_id, hostname, ip, os_info, first_seen, last_seen, total_commands
		FROM machines WHERE machine_id = ?
	`, machineID).Scan(&m.MachineID, &m.Hostname, &m.IP, &m.OSInfo,
		&firstSeen, &lastSeen, &m.TotalCommands)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("remote: machine %q: %w", machineID, types.ErrNotFound)
	}
	if err != nil {
		return nil, wrapRemoteErr("remote: get machine", err)
	}
	m.FirstSeen = time.Unix(firstSeen, 0)
	m.LastSeen = time.Unix(lastSeen, 0)
	return &m, nil
}

// TouchMachine bumps total_commands and last_seen after a persisted command.
func (s *Store) TouchMachine(ctx context.Context, machineID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE machines SET total_commands = total_commands + 1, last_seen = ?
		WHERE machine_id = ?
	`, time.Now().Unix(), machineID)
	return wrapRemoteErr("remote: touch machine", err)
}

// StartSession records a session row at chat start.
func (s *Store) StartSession(ctx context.Context, sessionID string, userID *int64, machineID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, machine_id, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, userID, nullStr(machineID), time.Now().Unix())
	return wrapRemoteErr("remote: start session", err)
}

// EndSession closes a session row with its command count.
func (s *Store) EndSession(ctx context.Context, sessionID string, commands int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, commands = ? WHERE session_id = ?
	`, time.Now().Unix(), commands, sessionID)
	return wrapRemoteErr("remote: end session", err)
}

// CacheResponse stores a completed answer keyed by command hash.
func (s *Store) CacheResponse(ctx context.Context, command, response string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_cache (command_hash, command, response, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (command_hash) DO UPDATE SET
			response = excluded.response, updated_at = excluded.updated_at
	`, commandHash(command), types.Truncate(command, types.MaxCommandLen),
		types.Truncate(response, types.MaxResponseLen), now, now)
	return wrapRemoteErr("remote: cache response", err)
}

// CachedResponse looks up a prior answer for an identical command, bumping
// the hit counter. Returns types.ErrNotFound on miss.
func (s *Store) CachedResponse(ctx context.Context, command string) (string, error) {
	hash := commandHash(command)
	var response string
	err := s.db.QueryRowContext(ctx,
		"SELECT response FROM command_cache WHERE command_hash = ?", hash).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("remote: command cache: %w", types.ErrNotFound)
	}
	if err != nil {
		return "", wrapRemoteErr("remote: command cache", err)
	}
	_, _ = s.db.ExecContext(ctx,
		"UPDATE command_cache SET hit_count = hit_count + 1 WHERE command_hash = ?", hash)
	return response, nil
}

func commandHash(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}
