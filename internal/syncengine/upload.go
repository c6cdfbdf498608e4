package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/types"
)

// uploadAttempts is how many times one queue item is tried within a single
// cycle before its retry count is bumped.
const uploadAttempts = 3

// upload drains the sync queue in (priority, FIFO) order. Each item is
// replayed from the current local row rather than the enqueue-time payload,
// so a row that went pending -> completed between cycles uploads once with
// its final state.
func (e *Engine) upload(ctx context.Context, stats *Stats) error {
	items, err := e.local.GetPendingSync(ctx, e.cfg.BatchSize, e.cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("sync: drain queue: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	var doneUUIDs []string
	var doneIDs []int64
	var firstErr error

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		entry, err := e.local.GetByUUID(ctx, item.RecordID)
		if errors.Is(err, types.ErrNotFound) {
			// Row was pruned locally; nothing left to upload.
			doneIDs = append(doneIDs, item.ID)
			continue
		}
		if err != nil {
			return fmt.Errorf("sync: read queued row %s: %w", item.RecordID, err)
		}

		if err := e.pushEntry(ctx, entry); err != nil {
			stats.UploadFailed++
			if firstErr == nil {
				firstErr = err
			}
			if rerr := e.local.IncrementRetryCount(ctx, item.ID, err.Error()); rerr != nil {
				debug.Logf("sync: record upload failure: %v", rerr)
			}
			continue
		}
		stats.Uploaded++
		doneUUIDs = append(doneUUIDs, entry.ID)
		doneIDs = append(doneIDs, item.ID)
	}

	if len(doneUUIDs) > 0 {
		if err := e.local.MarkSynced(ctx, doneUUIDs); err != nil {
			return fmt.Errorf("sync: mark synced: %w", err)
		}
	}
	if len(doneIDs) > 0 {
		if err := e.local.ClearSyncQueue(ctx, doneIDs); err != nil {
			return fmt.Errorf("sync: clear queue: %w", err)
		}
	}
	return firstErr
}

// pushEntry upserts one history row remotely, retrying transient failures
// with exponential backoff inside the cycle.
func (e *Engine) pushEntry(ctx context.Context, entry *types.HistoryEntry) error {
	meta := types.Meta{
		EntryUUID:       entry.ID,
		RequestID:       entry.RequestID,
		UserID:          entry.UserID,
		MachineID:       entry.MachineID,
		SessionID:       entry.SessionID,
		Status:          entry.Status,
		TokensUsed:      entry.TokensUsed,
		ExecutionTimeMs: entry.ExecutionTimeMs,
		Timestamp:       entry.Timestamp,
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
	), uploadAttempts-1)

	return backoff.Retry(func() error {
		_, err := e.remote.Save(ctx, types.ScopeHybrid, entry.Command, entry.Response, meta)
		if err != nil && !errors.Is(err, types.ErrNetworkTransient) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
