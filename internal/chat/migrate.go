package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/idgen"
	"github.com/mcpterm/mcpterm/internal/storage"
	"github.com/mcpterm/mcpterm/internal/types"
)

// LegacyHistoryFile is the pre-sqlite history file, imported once.
const LegacyHistoryFile = "history.json"

// legacyEntry mirrors the old flat-file record. Unknown fields are ignored.
type legacyEntry struct {
	Command   string `json:"command"`
	Response  string `json:"response"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// MigrateLegacyHistory imports ~/.mcp-terminal/history.json into the local
// store and renames the file to history.json.imported so the import runs
// exactly once. Returns the number of rows imported.
func MigrateLegacyHistory(ctx context.Context, dir string, store storage.Local, machineID string) (int, error) {
	path := filepath.Join(dir, LegacyHistoryFile)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("chat: read legacy history: %w", err)
	}

	var legacy []legacyEntry
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return 0, fmt.Errorf("chat: parse legacy history: %w", err)
	}

	entries := make([]types.HistoryEntry, 0, len(legacy))
	for _, le := range legacy {
		if le.Command == "" {
			continue
		}
		status := types.Status(le.Status)
		switch status {
		case types.StatusCompleted, types.StatusCancelled, types.StatusError:
		default:
			status = types.StatusCompleted
		}
		entries = append(entries, types.HistoryEntry{
			ID:        idgen.NewEntryID(),
			RequestID: idgen.NewRequestID(),
			Command:   le.Command,
			Response:  le.Response,
			Status:    status,
			MachineID: machineID,
			Timestamp: le.Timestamp,
		})
	}

	n, err := store.ImportHistory(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("chat: import legacy history: %w", err)
	}

	if err := os.Rename(path, path+".imported"); err != nil {
		return n, fmt.Errorf("chat: retire legacy history: %w", err)
	}
	debug.Logf("chat: imported %d legacy history rows", n)
	return n, nil
}
