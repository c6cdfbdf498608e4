package local

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpterm/mcpterm/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveCommandRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveCommand(context.Background(), "   ", "", types.Meta{})
	assert.ErrorIs(t, err, types.ErrBadInput)
}

func TestSaveCommandEnqueuesUpload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	uuid, err := store.SaveCommand(ctx, "list files", "", types.Meta{
		RequestID: "req_1_abc", MachineID: "m1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, uuid)

	entry, err := store.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, entry.Status)
	assert.Equal(t, types.SyncPending, entry.SyncStatus)
	assert.Equal(t, "req_1_abc", entry.RequestID)

	items, err := store.GetPendingSync(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, types.OpInsert, items[0].Op)
	assert.Equal(t, uuid, items[0].RecordID)
	assert.Contains(t, items[0].Payload, "list files")
}

func TestSaveCommandTruncatesOversizedInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	big := strings.Repeat("q", types.MaxCommandLen+500)
	uuid, err := store.SaveCommand(ctx, big, "", types.Meta{})
	require.NoError(t, err)

	entry, err := store.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(entry.Command, types.TruncationMarker))
	assert.LessOrEqual(t, len(entry.Command), types.MaxCommandLen+len(types.TruncationMarker))
}

func TestGetHistoryNewestFirstWithFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	uid := int64(7)

	for i, cmd := range []string{"first", "second", "third"} {
		_, err := store.SaveCommand(ctx, cmd, "", types.Meta{
			UserID:    &uid,
			MachineID: "m1",
			Timestamp: int64(100 + i),
		})
		require.NoError(t, err)
	}
	_, err := store.SaveCommand(ctx, "other machine", "", types.Meta{
		MachineID: "m2", Timestamp: 400,
	})
	require.NoError(t, err)

	all, err := store.GetHistory(ctx, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "other machine", all[0].Command)
	assert.Equal(t, "third", all[1].Command)

	byUser, err := store.GetHistory(ctx, types.HistoryFilter{UserID: &uid}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, byUser, 3)

	byMachine, err := store.GetHistory(ctx, types.HistoryFilter{MachineID: "m2"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, byMachine, 1)
	assert.Equal(t, "other machine", byMachine[0].Command)

	searched, err := store.GetHistory(ctx, types.HistoryFilter{Search: "seco"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, "second", searched[0].Command)
}

func TestUpdateStatusByRequestID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	uuid, err := store.SaveCommand(ctx, "q", "", types.Meta{RequestID: "req_9_zzz"})
	require.NoError(t, err)

	resp := "the answer"
	err = store.UpdateStatusByRequestID(ctx, "req_9_zzz", types.StatusCompleted,
		types.StatusExtras{Response: &resp, TokensUsed: 42})
	require.NoError(t, err)

	entry, err := store.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, entry.Status)
	assert.Equal(t, "the answer", entry.Response)
	assert.EqualValues(t, 42, entry.TokensUsed)
	require.NotNil(t, entry.CompletedAt)
	assert.GreaterOrEqual(t, *entry.CompletedAt, entry.Timestamp)
	assert.Equal(t, types.SyncPending, entry.SyncStatus)
}

func TestGetPendingSyncOrderAndRetrySkip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, cmd := range []string{"a", "b", "c"} {
		_, err := store.SaveCommand(ctx, cmd, "", types.Meta{})
		require.NoError(t, err)
	}
	items, err := store.GetPendingSync(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	// FIFO within the same priority class.
	assert.Contains(t, items[0].Payload, `"command":"a"`)
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	// Exhaust retries on the first item; it must vanish from reads.
	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncrementRetryCount(ctx, ids[0], "dial error"))
	}
	items, err = store.GetPendingSync(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Contains(t, items[0].Payload, `"command":"b"`)
}

func TestIncrementRetryCountTruncatesError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveCommand(ctx, "x", "", types.Meta{})
	require.NoError(t, err)
	items, err := store.GetPendingSync(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)

	long := strings.Repeat("e", types.MaxErrorLen+100)
	require.NoError(t, store.IncrementRetryCount(ctx, items[0].ID, long))

	items, err = store.GetPendingSync(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Len(t, items[0].LastError, types.MaxErrorLen)
	assert.Equal(t, 1, items[0].RetryCount)
}

func TestMarkSyncedAndClearQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	uuid, err := store.SaveCommand(ctx, "sync me", "", types.Meta{})
	require.NoError(t, err)
	items, err := store.GetPendingSync(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, store.MarkSynced(ctx, []string{uuid}))
	require.NoError(t, store.ClearSyncQueue(ctx, []int64{items[0].ID}))

	entry, err := store.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, types.SyncSynced, entry.SyncStatus)
	assert.Greater(t, entry.LastSynced, int64(0))

	remaining, err := store.GetPendingSync(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestImportHistoryIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []types.HistoryEntry{
		{ID: "aaa", Command: "imported one", Status: types.StatusCompleted, Timestamp: 100},
		{ID: "bbb", Command: "imported two", Status: types.StatusCompleted, Timestamp: 200},
	}

	n, err := store.ImportHistory(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Import twice: same final state, zero new rows.
	n, err = store.ImportHistory(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := store.GetHistory(ctx, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		assert.Equal(t, types.SyncSynced, e.SyncStatus)
	}

	// Imported rows must not enqueue uploads.
	items, err := store.GetPendingSync(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCleanupDeletesOldSyncedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -40).Unix()
	_, err := store.ImportHistory(ctx, []types.HistoryEntry{
		{ID: "old", Command: "ancient", Status: types.StatusCompleted, Timestamp: old},
		{ID: "new", Command: "recent", Status: types.StatusCompleted, Timestamp: time.Now().Unix()},
	})
	require.NoError(t, err)

	// An unsynced old row must survive.
	_, err = store.SaveCommand(ctx, "unsynced old", "", types.Meta{Timestamp: old})
	require.NoError(t, err)

	deleted, err := store.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	all, err := store.GetHistory(ctx, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPurgeFailedQueueItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveCommand(ctx, "doomed", "", types.Meta{})
	require.NoError(t, err)
	items, err := store.GetPendingSync(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.IncrementRetryCount(ctx, items[0].ID, "nope"))
	}

	// Not old enough yet.
	purged, err := store.PurgeFailedQueueItems(ctx, 5, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, purged)

	purged, err = store.PurgeFailedQueueItems(ctx, 5, -time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestMetaRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.GetMeta(ctx, MetaLastSyncTime)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, store.SetMeta(ctx, MetaLastSyncTime, "12345"))
	require.NoError(t, store.SetMeta(ctx, MetaLastSyncTime, "67890"))

	v, err = store.GetMeta(ctx, MetaLastSyncTime)
	require.NoError(t, err)
	assert.Equal(t, "67890", v)
}

func TestConflictLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordConflict(ctx, types.ConflictLogEntry{
		CommandUUID: "X",
		LocalData:   `{"response":"local"}`,
		RemoteData:  `{"response":"remote"}`,
		Resolution:  types.ResolutionKeptRemote,
	}))

	conflicts, err := store.GetConflicts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "X", conflicts[0].CommandUUID)
	assert.Equal(t, types.ResolutionKeptRemote, conflicts[0].Resolution)
	assert.Greater(t, conflicts[0].ResolvedAt, int64(0))
}
