package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcpterm/mcpterm/internal/types"
)

func TestSessionFatalOnMissingSchema(t *testing.T) {
	a := &app{remoteErr: fmt.Errorf("remote: missing tables: users: %w", types.ErrSchemaMissing)}
	err := a.sessionFatal()
	assert.ErrorIs(t, err, types.ErrSchemaMissing)
}

func TestSessionContinuesOnTransientRemoteFailure(t *testing.T) {
	a := &app{remoteErr: fmt.Errorf("remote: connect: %w", types.ErrNetworkTransient)}
	assert.NoError(t, a.sessionFatal())
}

func TestSessionFatalOnUnknownUser(t *testing.T) {
	a := &app{userErr: fmt.Errorf("user %q: %w", "ghost", types.ErrUserNotFound)}
	assert.ErrorIs(t, a.sessionFatal(), types.ErrUserNotFound)
}
