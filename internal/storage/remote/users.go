package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcpterm/mcpterm/internal/types"
)

// CreateUser inserts a new active user. Username is the external key.
func (s *Store) CreateUser(ctx context.Context, username, name, email string) (*types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("remote: create user: %w: empty username", types.ErrBadInput)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, name, email, active, created_at)
		VALUES (?, ?, ?, 1, ?)
		RETURNING id
	`, username, name, email, time.Now().Unix()).Scan(&id)
	if err != nil {
		return nil, wrapRemoteErr("remote: create user", err)
	}
	return &types.User{ID: id, Username: username, Name: name, Email: email, Active: true}, nil
}

// GetUserByUsername resolves a username to its row, active or not.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	var u types.User
	var active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, email, active FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.Name, &u.Email, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("remote: get user %q: %w", username, types.ErrNotFound)
	}
	if err != nil {
		return nil, wrapRemoteErr("remote: get user", err)
	}
	u.Active = active != 0
	return &u, nil
}

// ListUsers returns all users, active first, then by username.
func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, name, email, active FROM users
		ORDER BY active DESC, username ASC
	`)
	if err != nil {
		return nil, wrapRemoteErr("remote: list users", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.User
	for rows.Next() {
		var u types.User
		var active int
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &active); err != nil {
			return nil, wrapRemoteErr("remote: list users", err)
		}
		u.Active = active != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeactivateUser soft-deletes by flipping active off. History rows survive.
func (s *Store) DeactivateUser(ctx context.Context, username string) error {
	return s.setUserActive(ctx, username, false)
}

// ReactivateUser restores a deactivated account.
func (s *Store) ReactivateUser(ctx context.Context, username string) error {
	return s.setUserActive(ctx, username, true)
}

func (s *Store) setUserActive(ctx context.Context, username string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET active = ? WHERE username = ?", v, username)
	if err != nil {
		return wrapRemoteErr("remote: set user active", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remote: user %q: %w", username, types.ErrNotFound)
	}
	return nil
}

// UserStats summarizes one user's history volume.
type UserStats struct {
	Username      string
	TotalCommands int64
	Completed     int64
	Cancelled     int64
	Errors        int64
	LastActivity  int64
}

// GetUserStats aggregates the user-scope history for one user.
func (s *Store) GetUserStats(ctx context.Context, username string) (*UserStats, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	stats := &UserStats{Username: username}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(timestamp), 0)
		FROM history_user WHERE user_id = ?
	`, u.ID).Scan(&stats.TotalCommands, &stats.Completed, &stats.Cancelled,
		&stats.Errors, &stats.LastActivity)
	if err != nil {
		return nil, wrapRemoteErr("remote: user stats", err)
	}
	return stats, nil
}
