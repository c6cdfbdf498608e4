package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpterm/mcpterm/internal/storage/local"
	"github.com/mcpterm/mcpterm/internal/types"
)

func decodeAll(t *testing.T, input string) []Key {
	t.Helper()
	dec := NewDecoder(strings.NewReader(input))
	var keys []Key
	for {
		k, err := dec.Next()
		if err != nil {
			return keys
		}
		keys = append(keys, k)
	}
}

func TestDecoderPlainText(t *testing.T) {
	keys := decodeAll(t, "hi\r")
	require.Len(t, keys, 3)
	assert.Equal(t, Key{Type: KeyRune, Rune: 'h'}, keys[0])
	assert.Equal(t, Key{Type: KeyRune, Rune: 'i'}, keys[1])
	assert.Equal(t, KeyEnter, keys[2].Type)
}

func TestDecoderControlKeys(t *testing.T) {
	keys := decodeAll(t, "\x03\x04\x7f")
	require.Len(t, keys, 3)
	assert.Equal(t, KeyCtrlC, keys[0].Type)
	assert.Equal(t, KeyCtrlD, keys[1].Type)
	assert.Equal(t, KeyBackspace, keys[2].Type)
}

func TestDecoderArrowsAndPaste(t *testing.T) {
	keys := decodeAll(t, "\x1b[A\x1b[B\x1b[200~x\x1b[201~")
	require.Len(t, keys, 5)
	assert.Equal(t, KeyUp, keys[0].Type)
	assert.Equal(t, KeyDown, keys[1].Type)
	assert.Equal(t, KeyPasteStart, keys[2].Type)
	assert.Equal(t, Key{Type: KeyRune, Rune: 'x'}, keys[3])
	assert.Equal(t, KeyPasteEnd, keys[4].Type)
}

func TestDecoderLoneEscape(t *testing.T) {
	// A lone ESC byte with nothing behind it is the ESC key.
	keys := decodeAll(t, "\x1b")
	require.Len(t, keys, 1)
	assert.Equal(t, KeyEsc, keys[0].Type)
}

func TestDecoderSwallowsStrayControlBytes(t *testing.T) {
	// A bell or vertical tab must never land in the input buffer.
	keys := decodeAll(t, "a\x07b\x0bc")
	require.Len(t, keys, 3)
	assert.Equal(t, Key{Type: KeyRune, Rune: 'a'}, keys[0])
	assert.Equal(t, Key{Type: KeyRune, Rune: 'b'}, keys[1])
	assert.Equal(t, Key{Type: KeyRune, Rune: 'c'}, keys[2])
}

func TestDecoderUTF8(t *testing.T) {
	keys := decodeAll(t, "é")
	require.Len(t, keys, 1)
	assert.Equal(t, Key{Type: KeyRune, Rune: 'é'}, keys[0])
}

func feedKeys(keys ...Key) chan Key {
	ch := make(chan Key, len(keys))
	for _, k := range keys {
		ch <- k
	}
	close(ch)
	return ch
}

func runes(s string) []Key {
	out := make([]Key, 0, len(s))
	for _, r := range s {
		out = append(out, Key{Type: KeyRune, Rune: r})
	}
	return out
}

func TestEditorSubmitsLine(t *testing.T) {
	var out bytes.Buffer
	keys := append(runes("hello"), Key{Type: KeyEnter})
	e := NewEditor(feedKeys(keys...), &out, nil)

	line, sig, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SigLine, sig)
	assert.Equal(t, "hello", line)
}

func TestEditorBackspace(t *testing.T) {
	var out bytes.Buffer
	keys := append(runes("hexx"),
		Key{Type: KeyBackspace}, Key{Type: KeyBackspace})
	keys = append(keys, runes("y")...)
	keys = append(keys, Key{Type: KeyEnter})
	e := NewEditor(feedKeys(keys...), &out, nil)

	line, _, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hey", line)
}

func TestEditorBackslashContinuation(t *testing.T) {
	var out bytes.Buffer
	keys := append(runes(`first \`), Key{Type: KeyEnter})
	keys = append(keys, runes("second")...)
	keys = append(keys, Key{Type: KeyEnter})
	e := NewEditor(feedKeys(keys...), &out, nil)

	line, sig, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SigLine, sig)
	assert.Equal(t, "first \nsecond", line)
	assert.Contains(t, out.String(), contPrompt)
}

func TestEditorPastedNewlinesKeptVerbatim(t *testing.T) {
	var out bytes.Buffer
	keys := []Key{{Type: KeyPasteStart}}
	keys = append(keys, runes("line1")...)
	keys = append(keys, Key{Type: KeyEnter})
	keys = append(keys, runes("line2")...)
	keys = append(keys, Key{Type: KeyPasteEnd}, Key{Type: KeyEnter})
	e := NewEditor(feedKeys(keys...), &out, nil)

	line, _, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", line)
}

func TestEditorEscClearsInput(t *testing.T) {
	var out bytes.Buffer
	keys := append(runes("oops"), Key{Type: KeyEsc})
	keys = append(keys, runes("ok")...)
	keys = append(keys, Key{Type: KeyEnter})
	e := NewEditor(feedKeys(keys...), &out, nil)

	line, _, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", line)
}

func TestEditorHistoryRecall(t *testing.T) {
	var out bytes.Buffer
	first := append(runes("earlier question"), Key{Type: KeyEnter})
	second := []Key{{Type: KeyUp}, {Type: KeyEnter}}
	e := NewEditor(feedKeys(append(first, second...)...), &out, nil)

	ctx := context.Background()
	line, _, err := e.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "earlier question", line)

	line, _, err = e.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "earlier question", line)
}

func TestEditorDoubleCtrlCExits(t *testing.T) {
	var out bytes.Buffer
	e := NewEditor(feedKeys(Key{Type: KeyCtrlC}, Key{Type: KeyCtrlC}), &out, nil)

	_, sig, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SigExit, sig)
	assert.Contains(t, out.String(), "again to exit")
}

func TestEditorCtrlCClearsDraftFirst(t *testing.T) {
	var out bytes.Buffer
	keys := append(runes("draft"), Key{Type: KeyCtrlC})
	keys = append(keys, runes("real")...)
	keys = append(keys, Key{Type: KeyEnter})
	e := NewEditor(feedKeys(keys...), &out, nil)

	line, sig, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SigLine, sig)
	assert.Equal(t, "real", line)
}

func TestEditorCtrlDEOF(t *testing.T) {
	var out bytes.Buffer
	e := NewEditor(feedKeys(Key{Type: KeyCtrlD}), &out, nil)
	_, sig, err := e.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SigEOF, sig)
}

func TestMigrateLegacyHistory(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(context.Background(), filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	legacy := []legacyEntry{
		{Command: "old question", Response: "old answer", Timestamp: time.Now().Unix(), Status: "completed"},
		{Command: "cancelled one", Timestamp: time.Now().Unix(), Status: "cancelled"},
		{Command: "", Response: "orphan response"},
		{Command: "odd status", Response: "kept", Timestamp: time.Now().Unix(), Status: "weird"},
	}
	blob, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyHistoryFile), blob, 0o600))

	n, err := MigrateLegacyHistory(context.Background(), dir, store, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// The file is retired so the import never repeats.
	_, err = os.Stat(filepath.Join(dir, LegacyHistoryFile))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, LegacyHistoryFile+".imported"))
	assert.NoError(t, err)

	n, err = MigrateLegacyHistory(context.Background(), dir, store, "m1")
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := store.GetHistory(context.Background(), types.HistoryFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Unknown statuses normalize to completed.
	var odd *types.HistoryEntry
	for i := range entries {
		if entries[i].Command == "odd status" {
			odd = &entries[i]
		}
	}
	require.NotNil(t, odd)
	assert.Equal(t, types.StatusCompleted, odd.Status)
}
