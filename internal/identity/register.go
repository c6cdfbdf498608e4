package identity

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mcpterm/mcpterm/internal/types"
)

// MachineRegistry is the store surface needed to upsert a Machine row.
type MachineRegistry interface {
	UpsertMachine(ctx context.Context, m *types.Machine) error
}

// UserLookup is the store surface needed to resolve a username.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
}

// RegisterMachine upserts this machine's row, refreshing last_seen,
// hostname, ip, and os_info.
func RegisterMachine(ctx context.Context, store MachineRegistry, machineID string) error {
	hostname, _ := os.Hostname()
	m := &types.Machine{
		MachineID: machineID,
		Hostname:  hostname,
		IP:        LocalIP(),
		OSInfo:    OSInfo(),
	}
	if err := store.UpsertMachine(ctx, m); err != nil {
		return fmt.Errorf("identity: register machine: %w", err)
	}
	return nil
}

// ResolveUser returns the active User row for username.
func ResolveUser(ctx context.Context, store UserLookup, username string) (*types.User, error) {
	if username == "" {
		return nil, fmt.Errorf("identity: %w: empty username", types.ErrBadInput)
	}
	u, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("identity: %q: %w", username, types.ErrUserNotFound)
		}
		return nil, fmt.Errorf("identity: resolve user: %w", err)
	}
	return u, nil
}
