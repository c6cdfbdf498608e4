package idgen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestIDPattern = regexp.MustCompile(`^req_\d{13}_[a-z0-9]{9}$`)

func TestNewRequestIDFormat(t *testing.T) {
	id := NewRequestID()
	assert.Regexp(t, requestIDPattern, id)
}

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRequestID()
		require.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}

func TestNewEntryID(t *testing.T) {
	id := NewEntryID()
	assert.Len(t, id, 32)
	assert.Regexp(t, `^[0-9a-f]{32}$`, id)
	assert.NotEqual(t, id, NewEntryID())
}
