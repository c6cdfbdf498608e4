package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/types"
)

// download pulls rows changed since the watermark from the user and machine
// scopes, resolves divergences, and imports the rest. The watermark itself
// is advanced by the cycle, and only when both phases succeeded.
func (e *Engine) download(ctx context.Context, started time.Time, stats *Stats) error {
	since := e.watermark(ctx, started)

	var mu sync.Mutex
	var fetched []types.HistoryEntry

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.UserID != nil {
		uid := *e.cfg.UserID
		g.Go(func() error {
			rows, err := e.fetchScope(gctx, types.ScopeUser, since)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, r := range rows {
				if r.UserID != nil && *r.UserID == uid {
					fetched = append(fetched, r)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if e.cfg.MachineID != "" {
		g.Go(func() error {
			rows, err := e.fetchScope(gctx, types.ScopeMachine, since)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, r := range rows {
				if r.MachineID == e.cfg.MachineID {
					fetched = append(fetched, r)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sync: download: %w", err)
	}

	var fresh []types.HistoryEntry
	seen := make(map[string]bool, len(fetched))
	for _, remote := range fetched {
		if remote.ID == "" || seen[remote.ID] {
			continue
		}
		seen[remote.ID] = true

		localRow, err := e.local.GetByUUID(ctx, remote.ID)
		if err != nil {
			fresh = append(fresh, remote)
			continue
		}
		if !diverged(localRow, &remote) {
			continue
		}
		if err := e.resolve(ctx, localRow, &remote, stats); err != nil {
			return err
		}
	}

	n, err := e.local.ImportHistory(ctx, fresh)
	if err != nil {
		return fmt.Errorf("sync: import: %w", err)
	}
	stats.Downloaded = n
	return nil
}

// fetchScope pages one scope forward from the watermark. Paging stops on a
// short page or once twice the batch size has been read, leaving the rest
// for the next cycle.
func (e *Engine) fetchScope(ctx context.Context, scope types.Scope, since int64) ([]types.HistoryEntry, error) {
	pageSize := e.cfg.BatchSize
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	budget := 2 * e.cfg.BatchSize

	var all []types.HistoryEntry
	for offset := 0; len(all) < budget; offset += pageSize {
		page, err := e.remote.GetHistorySince(ctx, scope, since, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	return all, nil
}

// diverged reports whether the two copies of a row disagree on anything
// user-visible.
func diverged(a, b *types.HistoryEntry) bool {
	return a.Command != b.Command || a.Response != b.Response || a.Status != b.Status
}

// resolve applies the configured conflict strategy. LWW keeps whichever
// side changed last; the losing local copy is overwritten and the winning
// local copy re-uploads through its still-queued item. Manual mode only
// records the divergence.
func (e *Engine) resolve(ctx context.Context, localRow, remoteRow *types.HistoryEntry, stats *Stats) error {
	stats.Conflicts++

	localBlob, _ := json.Marshal(localRow)
	remoteBlob, _ := json.Marshal(remoteRow)
	logEntry := types.ConflictLogEntry{
		CommandUUID: remoteRow.ID,
		LocalData:   string(localBlob),
		RemoteData:  string(remoteBlob),
		ResolvedAt:  time.Now().Unix(),
	}

	if e.cfg.Strategy == StrategyManual {
		stats.Skipped++
		logEntry.Resolution = types.ResolutionSkipped
		return e.local.RecordConflict(ctx, logEntry)
	}

	if changedAt(remoteRow) > changedAt(localRow) {
		if err := e.local.ReplaceFromRemote(ctx, *remoteRow); err != nil {
			return fmt.Errorf("sync: apply remote winner %s: %w", remoteRow.ID, err)
		}
		logEntry.Resolution = types.ResolutionKeptRemote
	} else {
		logEntry.Resolution = types.ResolutionKeptLocal
	}
	debug.Logf("sync: conflict %s resolved %s", remoteRow.ID, logEntry.Resolution)
	return e.local.RecordConflict(ctx, logEntry)
}

func changedAt(e *types.HistoryEntry) int64 {
	if e.UpdatedAt > e.Timestamp {
		return e.UpdatedAt
	}
	return e.Timestamp
}
