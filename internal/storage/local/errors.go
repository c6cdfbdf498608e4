package local

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcpterm/mcpterm/internal/types"
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to types.ErrNotFound.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
