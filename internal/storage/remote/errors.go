package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/mcpterm/mcpterm/internal/types"
)

// wrapRemoteErr adds operation context, converting sql.ErrNoRows to
// types.ErrNotFound and network-shaped failures to ErrNetworkTransient so
// callers can degrade to local-only saves.
func wrapRemoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	if isNetworkErr(err) {
		return fmt.Errorf("%s: %w: %v", op, types.ErrNetworkTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNetworkErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
