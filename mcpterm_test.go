package mcpterm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenLocal(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	uuid, err := store.SaveCommand(ctx, "embedded question", "embedded answer", Meta{
		RequestID: "req_1_embedtest",
		MachineID: "m-embed",
		Status:    StatusCompleted,
	})
	require.NoError(t, err)

	entry, err := store.GetByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "embedded question", entry.Command)
	assert.Equal(t, StatusCompleted, entry.Status)
}
