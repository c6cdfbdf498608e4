// Package history is the read path over the two stores: remote when
// reachable for the freshest cross-machine view, local cache otherwise.
package history

import (
	"context"

	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/storage"
	"github.com/mcpterm/mcpterm/internal/types"
)

// View reads history remote-first with a local fallback. Remote pages are
// opportunistically imported into the cache so the next offline read still
// sees them.
type View struct {
	local  storage.Local
	remote storage.Remote
	scope  types.Scope
}

// New builds a view. remote may be nil for local-only sessions.
func New(local storage.Local, remote storage.Remote, scope types.Scope) *View {
	if scope == "" {
		scope = types.ScopeHybrid
	}
	return &View{local: local, remote: remote, scope: scope}
}

// Get returns history newest-first. The remote store is authoritative when
// reachable; any page it returns is folded into the local cache before
// being handed back.
func (v *View) Get(ctx context.Context, filter types.HistoryFilter, limit, offset int) ([]types.HistoryEntry, error) {
	if v.remote != nil {
		entries, err := v.remote.GetHistory(ctx, v.scope, filter, limit, offset)
		if err == nil {
			if n, ierr := v.local.ImportHistory(ctx, entries); ierr != nil {
				debug.Logf("history: cache import: %v", ierr)
			} else if n > 0 {
				debug.Logf("history: cached %d remote rows", n)
			}
			return entries, nil
		}
		debug.Logf("history: remote read failed, using cache: %v", err)
	}
	return v.local.GetHistory(ctx, filter, limit, offset)
}

// Search is Get with a substring filter over command and response text.
func (v *View) Search(ctx context.Context, query string, filter types.HistoryFilter, limit, offset int) ([]types.HistoryEntry, error) {
	filter.Search = query
	return v.Get(ctx, filter, limit, offset)
}
