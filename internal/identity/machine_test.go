package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpterm/mcpterm/internal/types"
)

func TestMachineIDStableAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := MachineID(dir)
	require.NoError(t, err)
	assert.Len(t, first, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, first)

	second, err := MachineID(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMachineIDCacheIsOwnerReadOnly(t *testing.T) {
	dir := t.TempDir()
	_, err := MachineID(dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, CacheFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm())
}

func TestLoadIgnoresMalformedCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CacheFileName), []byte("garbage"), 0o600))

	fp, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, fp.ID, 64)
	assert.NotEqual(t, "cache", fp.Source)
}

type fakeUserLookup struct {
	users map[string]*types.User
}

func (f *fakeUserLookup) GetUserByUsername(_ context.Context, username string) (*types.User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, types.ErrNotFound
}

func TestResolveUser(t *testing.T) {
	store := &fakeUserLookup{users: map[string]*types.User{
		"alice": {ID: 1, Username: "alice", Active: true},
	}}

	u, err := ResolveUser(context.Background(), store, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.ID)

	_, err = ResolveUser(context.Background(), store, "bob")
	assert.ErrorIs(t, err, types.ErrUserNotFound)

	_, err = ResolveUser(context.Background(), store, "")
	assert.ErrorIs(t, err, types.ErrBadInput)
}
