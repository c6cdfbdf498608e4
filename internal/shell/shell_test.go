package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	r := NewRunner()
	out, err := r.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRunNonZeroExitKeepsOutput(t *testing.T) {
	r := NewRunner()
	out, err := r.Run(context.Background(), "echo partial; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "partial", out)
}

func TestRunNonZeroNoOutputErrors(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), "exit 7")
	assert.Error(t, err)
}

func TestRunTimeout(t *testing.T) {
	r := &ExecRunner{Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := r.Run(context.Background(), "sleep 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunTimeoutWithBackgroundChild(t *testing.T) {
	// The grandchild inherits the pipes; Run must still return once the
	// deadline plus the kill grace has passed.
	r := &ExecRunner{Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := r.Run(context.Background(), "sleep 5 & wait")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}
