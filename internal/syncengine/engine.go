// Package syncengine replicates history between the local cache and the
// remote store: queued uploads, watermark-based downloads, conflict
// resolution, and periodic cleanup.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/storage/local"
	"github.com/mcpterm/mcpterm/internal/telemetry"
	"github.com/mcpterm/mcpterm/internal/types"
)

const (
	// DefaultInterval is the background sync cadence.
	DefaultInterval = 30 * time.Second
	// DefaultBatchSize bounds both the upload drain and a download page.
	DefaultBatchSize = 50
	// DefaultMaxRetries parks a queue item after this many failed uploads.
	DefaultMaxRetries = 5
	// DefaultKeepDays is the local retention for synced rows.
	DefaultKeepDays = 30
	// DefaultDownloadWindow bounds the first download when no watermark
	// exists yet.
	DefaultDownloadWindow = 7 * 24 * time.Hour

	// failedQueueAge is how long a permanently-failed queue item lingers
	// before cleanup removes it.
	failedQueueAge = 24 * time.Hour

	// maxPageSize caps one download page regardless of batch size.
	maxPageSize = 100
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	// StrategyLWW keeps whichever side changed last.
	StrategyLWW Strategy = "lww"
	// StrategyManual never auto-resolves; divergent rows are logged and
	// skipped until a person decides.
	StrategyManual Strategy = "manual"
)

// LocalStore is the slice of the local cache the engine drives.
type LocalStore interface {
	GetPendingSync(ctx context.Context, limit, maxRetries int) ([]types.SyncQueueItem, error)
	GetByUUID(ctx context.Context, uuid string) (*types.HistoryEntry, error)
	MarkSynced(ctx context.Context, uuids []string) error
	ClearSyncQueue(ctx context.Context, ids []int64) error
	IncrementRetryCount(ctx context.Context, id int64, errMsg string) error
	ImportHistory(ctx context.Context, entries []types.HistoryEntry) (int, error)
	ReplaceFromRemote(ctx context.Context, e types.HistoryEntry) error
	RecordConflict(ctx context.Context, entry types.ConflictLogEntry) error
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	Cleanup(ctx context.Context, daysToKeep int) (int64, error)
	PurgeFailedQueueItems(ctx context.Context, maxRetries int, olderThan time.Duration) (int64, error)
	PendingSyncCount(ctx context.Context, maxRetries int) (int64, error)
}

// RemoteStore is the slice of the remote store the engine drives.
type RemoteStore interface {
	Save(ctx context.Context, scope types.Scope, cmd, resp string, meta types.Meta) (int64, error)
	GetHistorySince(ctx context.Context, scope types.Scope, since int64, limit, offset int) ([]types.HistoryEntry, error)
}

// Config tunes one engine. Zero values take the defaults above.
type Config struct {
	Interval       time.Duration
	BatchSize      int
	MaxRetries     int
	KeepDays       int
	DownloadWindow time.Duration
	Strategy       Strategy

	UserID    *int64
	MachineID string
}

func (c *Config) fill() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.KeepDays <= 0 {
		c.KeepDays = DefaultKeepDays
	}
	if c.DownloadWindow <= 0 {
		c.DownloadWindow = DefaultDownloadWindow
	}
	if c.Strategy == "" {
		c.Strategy = StrategyLWW
	}
}

// Stats summarizes one sync cycle.
type Stats struct {
	Uploaded     int
	UploadFailed int
	Downloaded   int
	Conflicts    int
	Skipped      int
	PurgedQueue  int64
	PrunedRows   int64
	Duration     time.Duration
}

// Engine runs the bidirectional sync loop.
type Engine struct {
	local  LocalStore
	remote RemoteStore
	cfg    Config

	syncing atomic.Bool
	force   chan chan syncOutcome

	mu       sync.Mutex
	last     Stats
	lastErr  error
	lastTime time.Time
}

type syncOutcome struct {
	stats Stats
	err   error
}

// New builds an engine. Both stores are required.
func New(localStore LocalStore, remoteStore RemoteStore, cfg Config) (*Engine, error) {
	if localStore == nil || remoteStore == nil {
		return nil, errors.New("syncengine: both stores required")
	}
	cfg.fill()
	syncMetricsOnce.Do(initSyncMetrics)
	return &Engine{
		local:  localStore,
		remote: remoteStore,
		cfg:    cfg,
		force:  make(chan chan syncOutcome),
	}, nil
}

var syncMetrics struct {
	uploaded   metric.Int64Counter
	downloaded metric.Int64Counter
	conflicts  metric.Int64Counter
}

var syncMetricsOnce sync.Once

func initSyncMetrics() {
	m := telemetry.Meter("github.com/mcpterm/mcpterm/internal/syncengine")
	syncMetrics.uploaded, _ = m.Int64Counter("mct.sync.uploaded",
		metric.WithDescription("History rows uploaded to the remote store"))
	syncMetrics.downloaded, _ = m.Int64Counter("mct.sync.downloaded",
		metric.WithDescription("History rows imported from the remote store"))
	syncMetrics.conflicts, _ = m.Int64Counter("mct.sync.conflicts",
		metric.WithDescription("Divergent rows detected during sync"))
}

// Run loops until ctx is done: one cycle per interval, plus on-demand
// cycles requested through ForceSync. Cycles never overlap.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	// Prime the watermark path with an initial cycle.
	e.cycle(ctx, nil)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cycle(ctx, nil)
		case reply := <-e.force:
			e.cycle(ctx, reply)
		}
	}
}

// ForceSync runs one cycle immediately and returns its outcome. Used by
// `mct sync now` and by the chat session before exit.
func (e *Engine) ForceSync(ctx context.Context) (Stats, error) {
	// Without a Run loop (CLI one-shot), sync inline.
	reply := make(chan syncOutcome, 1)
	select {
	case e.force <- reply:
		select {
		case out := <-reply:
			return out.stats, out.err
		case <-ctx.Done():
			return Stats{}, ctx.Err()
		}
	default:
		out := e.runCycle(ctx)
		return out.stats, out.err
	}
}

// Status reports the engine's last cycle and current queue depth.
type Status struct {
	Syncing  bool
	LastSync time.Time
	LastErr  error
	Last     Stats
	Pending  int64
}

// Status returns a snapshot for `mct sync status`.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.local.PendingSyncCount(ctx, e.cfg.MaxRetries)
	if err != nil {
		return Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Syncing:  e.syncing.Load(),
		LastSync: e.lastTime,
		LastErr:  e.lastErr,
		Last:     e.last,
		Pending:  pending,
	}, nil
}

func (e *Engine) cycle(ctx context.Context, reply chan syncOutcome) {
	out := e.runCycle(ctx)
	if reply != nil {
		reply <- out
	}
}

func (e *Engine) runCycle(ctx context.Context) syncOutcome {
	if !e.syncing.CompareAndSwap(false, true) {
		debug.Logf("sync: cycle already running, skipping")
		return syncOutcome{}
	}
	defer e.syncing.Store(false)

	started := time.Now()
	var stats Stats

	upErr := e.upload(ctx, &stats)
	downErr := e.download(ctx, started, &stats)
	err := errors.Join(upErr, downErr)

	// The watermark moves only after a fully clean cycle; a partial failure
	// leaves it in place so the next cycle re-covers the same window.
	if err == nil {
		if werr := e.local.SetMeta(ctx, local.MetaLastSyncTime,
			strconv.FormatInt(started.Unix(), 10)); werr != nil {
			err = fmt.Errorf("sync: advance watermark: %w", werr)
		}
	}
	e.cleanup(ctx, &stats)

	stats.Duration = time.Since(started)

	if syncMetrics.uploaded != nil {
		syncMetrics.uploaded.Add(ctx, int64(stats.Uploaded))
		syncMetrics.downloaded.Add(ctx, int64(stats.Downloaded))
		syncMetrics.conflicts.Add(ctx, int64(stats.Conflicts))
	}

	e.mu.Lock()
	e.last = stats
	e.lastErr = err
	e.lastTime = started
	e.mu.Unlock()

	debug.Logf("sync: cycle up=%d(fail %d) down=%d conflicts=%d skipped=%d in %s",
		stats.Uploaded, stats.UploadFailed, stats.Downloaded, stats.Conflicts,
		stats.Skipped, stats.Duration)
	return syncOutcome{stats: stats, err: err}
}

func (e *Engine) cleanup(ctx context.Context, stats *Stats) {
	purged, err := e.local.PurgeFailedQueueItems(ctx, e.cfg.MaxRetries, failedQueueAge)
	if err != nil {
		debug.Logf("sync: purge failed queue: %v", err)
	}
	pruned, err := e.local.Cleanup(ctx, e.cfg.KeepDays)
	if err != nil {
		debug.Logf("sync: cleanup: %v", err)
	}
	stats.PurgedQueue = purged
	stats.PrunedRows = pruned
}

// watermark returns the download lower bound: the stored last_sync_time,
// or now minus the download window on first sync.
func (e *Engine) watermark(ctx context.Context, now time.Time) int64 {
	raw, err := e.local.GetMeta(ctx, local.MetaLastSyncTime)
	if err != nil || raw == "" {
		return now.Add(-e.cfg.DownloadWindow).Unix()
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return now.Add(-e.cfg.DownloadWindow).Unix()
	}
	return ts
}
