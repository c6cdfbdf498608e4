package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

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

	db, err := sql.Open("sqlite3", "file:hist"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(remote.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return loc, remote.NewWithDB(db)
}

func TestGetPrefersRemoteAndCaches(t *testing.T) {
	loc, rem := newStores(t)
	ctx := context.Background()

	_, err := rem.SaveMachine(ctx, "remote question", "remote answer", types.Meta{
		EntryUUID: "00000000000000000000000000000010",
		RequestID: "req_1_aaaaaaaaa",
		MachineID: "m1",
		Status:    types.StatusCompleted,
	})
	require.NoError(t, err)

	v := New(loc, rem, types.ScopeMachine)
	entries, err := v.Get(ctx, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "remote question", entries[0].Command)

	// The page landed in the local cache.
	row, err := loc.GetByUUID(ctx, "00000000000000000000000000000010")
	require.NoError(t, err)
	assert.Equal(t, "remote answer", row.Response)
}

func TestGetFallsBackToLocal(t *testing.T) {
	loc, _ := newStores(t)
	ctx := context.Background()

	_, err := loc.SaveCommand(ctx, "cached question", "cached answer", types.Meta{
		RequestID: "req_2_bbbbbbbbb", MachineID: "m1", Status: types.StatusCompleted,
	})
	require.NoError(t, err)

	v := New(loc, nil, types.ScopeMachine)
	entries, err := v.Get(ctx, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cached question", entries[0].Command)
}

func TestGetFallsBackWhenRemoteBroken(t *testing.T) {
	loc, _ := newStores(t)
	ctx := context.Background()

	// Remote over an empty schema fails every query.
	db, err := sql.Open("sqlite3", "file:histbroken"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	broken := remote.NewWithDB(db)

	_, err = loc.SaveCommand(ctx, "offline question", "", types.Meta{
		RequestID: "req_3_ccccccccc", MachineID: "m1", Status: types.StatusCompleted,
	})
	require.NoError(t, err)

	v := New(loc, broken, types.ScopeMachine)
	entries, err := v.Get(ctx, types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "offline question", entries[0].Command)
}

func TestSearchFiltersByText(t *testing.T) {
	loc, rem := newStores(t)
	ctx := context.Background()

	for i, q := range []string{"how to use grep", "restart nginx", "grep with context"} {
		_, err := rem.SaveMachine(ctx, q, "", types.Meta{
			EntryUUID: "0000000000000000000000000000002" + string(rune('0'+i)),
			RequestID: "req_4_ddddddd0" + string(rune('0'+i)),
			MachineID: "m1",
			Status:    types.StatusCompleted,
		})
		require.NoError(t, err)
	}

	v := New(loc, rem, types.ScopeMachine)
	entries, err := v.Search(ctx, "grep", types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Contains(t, e.Command, "grep")
	}
}
