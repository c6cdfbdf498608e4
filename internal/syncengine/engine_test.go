package syncengine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpterm/mcpterm/internal/storage/local"
	"github.com/mcpterm/mcpterm/internal/storage/remote"
	"github.com/mcpterm/mcpterm/internal/types"
)

func newStores(t *testing.T) (*local.Store, *remote.Store) {
	t.Helper()
	loc, err := local.New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loc.Close() })

	db, err := sql.Open("sqlite3", "file:sync"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(remote.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return loc, remote.NewWithDB(db)
}

func newEngine(t *testing.T, loc *local.Store, rem *remote.Store, strategy Strategy) *Engine {
	t.Helper()
	uid := int64(7)
	eng, err := New(loc, rem, Config{
		MachineID: "m1",
		UserID:    &uid,
		Strategy:  strategy,
	})
	require.NoError(t, err)
	return eng
}

// drainQueue empties the upload queue so a test can stage conflict state
// without the upload phase interfering.
func drainQueue(t *testing.T, loc *local.Store) {
	t.Helper()
	ctx := context.Background()
	items, err := loc.GetPendingSync(ctx, 100, 100)
	require.NoError(t, err)
	var uuids []string
	var ids []int64
	for _, it := range items {
		uuids = append(uuids, it.RecordID)
		ids = append(ids, it.ID)
	}
	if len(uuids) > 0 {
		require.NoError(t, loc.MarkSynced(ctx, uuids))
		require.NoError(t, loc.ClearSyncQueue(ctx, ids))
	}
}

func TestSyncUploadsQueuedRows(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()
	uid := int64(7)

	_, err := loc.SaveCommand(ctx, "how big is /var", "", types.Meta{
		RequestID: "req_1_aaaaaaaaa", UserID: &uid, MachineID: "m1",
		Status: types.StatusPending,
	})
	require.NoError(t, err)

	stats, err := eng.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Zero(t, stats.UploadFailed)

	entries, err := rem.GetHistory(ctx, types.ScopeMachine, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "how big is /var", entries[0].Command)

	pending, err := loc.PendingSyncCount(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSyncUploadsFinalStateNotEnqueueSnapshot(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()

	_, err := loc.SaveCommand(ctx, "question", "", types.Meta{
		RequestID: "req_2_bbbbbbbbb", MachineID: "m1", Status: types.StatusPending,
	})
	require.NoError(t, err)
	resp := "the answer"
	require.NoError(t, loc.UpdateStatusByRequestID(ctx, "req_2_bbbbbbbbb",
		types.StatusProcessing, types.StatusExtras{}))
	require.NoError(t, loc.UpdateStatusByRequestID(ctx, "req_2_bbbbbbbbb",
		types.StatusCompleted, types.StatusExtras{Response: &resp}))

	_, err = eng.ForceSync(ctx)
	require.NoError(t, err)

	entries, err := rem.GetHistory(ctx, types.ScopeMachine, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.StatusCompleted, entries[0].Status)
	assert.Equal(t, "the answer", entries[0].Response)
}

func TestSyncDownloadsRemoteRows(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()

	_, err := rem.SaveMachine(ctx, "asked elsewhere", "remote answer", types.Meta{
		EntryUUID: "00000000000000000000000000000001",
		RequestID: "req_3_ccccccccc",
		MachineID: "m1",
		Status:    types.StatusCompleted,
	})
	require.NoError(t, err)

	stats, err := eng.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloaded)

	row, err := loc.GetByUUID(ctx, "00000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "asked elsewhere", row.Command)
	assert.Equal(t, types.SyncSynced, row.SyncStatus)
}

func TestSyncIgnoresOtherMachines(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()

	_, err := rem.SaveMachine(ctx, "not ours", "", types.Meta{
		EntryUUID: "00000000000000000000000000000002",
		RequestID: "req_4_ddddddddd",
		MachineID: "m-other",
		Status:    types.StatusCompleted,
	})
	require.NoError(t, err)

	stats, err := eng.ForceSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Downloaded)
}

func TestSyncWatermarkAdvances(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()

	_, err := eng.ForceSync(ctx)
	require.NoError(t, err)

	raw, err := loc.GetMeta(ctx, local.MetaLastSyncTime)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

// saveRejectingRemote fails every upload while leaving downloads intact.
type saveRejectingRemote struct {
	*remote.Store
}

func (r saveRejectingRemote) Save(context.Context, types.Scope, string, string, types.Meta) (int64, error) {
	return 0, assert.AnError
}

func TestSyncWatermarkHeldWhenUploadFails(t *testing.T) {
	loc, rem := newStores(t)
	uid := int64(7)
	eng, err := New(loc, saveRejectingRemote{rem}, Config{
		MachineID: "m1",
		UserID:    &uid,
		Strategy:  StrategyLWW,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = loc.SaveCommand(ctx, "stuck question", "", types.Meta{
		RequestID: "req_9_iiiiiiiii", MachineID: "m1", Status: types.StatusPending,
	})
	require.NoError(t, err)

	stats, err := eng.ForceSync(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, stats.UploadFailed)

	raw, err := loc.GetMeta(ctx, local.MetaLastSyncTime)
	require.NoError(t, err)
	assert.Empty(t, raw, "watermark must not move after a failed upload phase")

	// The next clean cycle still covers the same window.
	clean := newEngine(t, loc, rem, StrategyLWW)
	drainQueue(t, loc)
	_, err = clean.ForceSync(ctx)
	require.NoError(t, err)
	raw, err = loc.GetMeta(ctx, local.MetaLastSyncTime)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestConflictRemoteWins(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()
	uuid := "00000000000000000000000000000003"
	old := time.Now().Add(-time.Hour).Unix()

	_, err := loc.SaveCommand(ctx, "same question", "stale local answer", types.Meta{
		EntryUUID: uuid, RequestID: "req_5_eeeeeeeee", MachineID: "m1",
		Status: types.StatusCompleted, Timestamp: old,
	})
	require.NoError(t, err)
	drainQueue(t, loc)

	_, err = rem.SaveMachine(ctx, "same question", "fresh remote answer", types.Meta{
		EntryUUID: uuid, RequestID: "req_5_eeeeeeeee", MachineID: "m1",
		Status: types.StatusCompleted,
	})
	require.NoError(t, err)

	stats, err := eng.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Conflicts)

	row, err := loc.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "fresh remote answer", row.Response)

	conflicts, err := loc.GetConflicts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ResolutionKeptRemote, conflicts[0].Resolution)
}

func TestConflictLocalWins(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()
	uuid := "00000000000000000000000000000004"
	old := time.Now().Add(-time.Hour).Unix()

	_, err := loc.SaveCommand(ctx, "same question", "fresh local answer", types.Meta{
		EntryUUID: uuid, RequestID: "req_6_fffffffff", MachineID: "m1",
		Status: types.StatusCompleted,
	})
	require.NoError(t, err)
	drainQueue(t, loc)

	_, err = rem.SaveMachine(ctx, "same question", "stale remote answer", types.Meta{
		EntryUUID: uuid, RequestID: "req_6_fffffffff", MachineID: "m1",
		Status: types.StatusCompleted, Timestamp: old,
	})
	require.NoError(t, err)

	stats, err := eng.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Conflicts)

	row, err := loc.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "fresh local answer", row.Response)

	conflicts, err := loc.GetConflicts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ResolutionKeptLocal, conflicts[0].Resolution)
}

func TestConflictManualSkips(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyManual)
	ctx := context.Background()
	uuid := "00000000000000000000000000000005"

	_, err := loc.SaveCommand(ctx, "same question", "local answer", types.Meta{
		EntryUUID: uuid, RequestID: "req_7_ggggggggg", MachineID: "m1",
		Status: types.StatusCompleted,
	})
	require.NoError(t, err)
	drainQueue(t, loc)

	_, err = rem.SaveMachine(ctx, "same question", "remote answer", types.Meta{
		EntryUUID: uuid, RequestID: "req_7_ggggggggg", MachineID: "m1",
		Status: types.StatusCompleted,
	})
	require.NoError(t, err)

	stats, err := eng.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)

	// The local copy stays untouched until a person decides.
	row, err := loc.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "local answer", row.Response)

	conflicts, err := loc.GetConflicts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ResolutionSkipped, conflicts[0].Resolution)
}

func TestStatusReportsQueueDepth(t *testing.T) {
	loc, rem := newStores(t)
	eng := newEngine(t, loc, rem, StrategyLWW)
	ctx := context.Background()

	_, err := loc.SaveCommand(ctx, "queued question", "", types.Meta{
		RequestID: "req_8_hhhhhhhhh", MachineID: "m1", Status: types.StatusPending,
	})
	require.NoError(t, err)

	st, err := eng.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Pending)
	assert.False(t, st.Syncing)
}
