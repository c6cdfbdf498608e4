package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcpterm/mcpterm/internal/config"
	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/identity"
	"github.com/mcpterm/mcpterm/internal/storage/local"
	"github.com/mcpterm/mcpterm/internal/storage/remote"
	"github.com/mcpterm/mcpterm/internal/types"
)

var (
	debugFlag bool
	userFlag  string
)

var rootCmd = &cobra.Command{
	Use:     "mct",
	Short:   "Terminal AI assistant with synced history",
	Version: Version,
	Long: `mct answers questions in your terminal and keeps the conversation
history in a local cache that syncs to a shared database, so every machine
you use sees the same history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugFlag {
			debug.SetVerbose(true)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare `mct` starts a chat session.
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "verbose debug output on stderr")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "username for shared history attribution")
}

// app is the assembled per-invocation environment.
type app struct {
	dir       string
	cfg       *config.Config
	local     *local.Store
	remote    *remote.Store // nil when unconfigured or unreachable
	remoteErr error
	machineID string
	user      *types.User
	userErr   error
}

// openApp assembles stores and identity. Remote problems are not fatal
// here: commands decide how hard to fail.
func openApp(ctx context.Context) (*app, error) {
	dir, err := config.AppDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	machineID, err := identity.MachineID(dir)
	if err != nil {
		return nil, fmt.Errorf("machine identity: %w", err)
	}

	loc, err := local.New(ctx, filepath.Join(dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}

	a := &app{dir: dir, cfg: cfg, local: loc, machineID: machineID}

	if cfg.URL != "" {
		rem, rerr := remote.New(ctx, cfg)
		if rerr != nil {
			a.remoteErr = rerr
			debug.Logf("remote unavailable: %v", rerr)
		} else {
			a.remote = rem
		}
	}

	a.resolveUser(ctx)
	return a, nil
}

// resolveUser maps --user (or USER_OVERRIDE) to a remote account. An
// unknown user is fatal for attribution correctness; no user means
// anonymous machine-scoped history.
func (a *app) resolveUser(ctx context.Context) {
	username := userFlag
	if username == "" {
		username = config.UserOverride()
	}
	if username == "" || a.remote == nil {
		return
	}
	u, err := identity.ResolveUser(ctx, a.remote, username)
	if err != nil {
		a.userErr = fmt.Errorf("user %q: %w", username, err)
		return
	}
	a.user = u
}

func (a *app) close() {
	if a.remote != nil {
		_ = a.remote.Close()
	}
	_ = a.local.Close()
}

// sessionFatal returns the error that must stop a chat session before it
// starts. A missing remote schema is fatal: continuing would write local
// rows that can never reconcile. Transient remote trouble only degrades
// the session to local history.
func (a *app) sessionFatal() error {
	if a.userErr != nil {
		return a.userErr
	}
	if errors.Is(a.remoteErr, types.ErrSchemaMissing) {
		return a.remoteErr
	}
	return nil
}

// requireRemote returns the remote store or the reason it is absent.
func (a *app) requireRemote() (*remote.Store, error) {
	if a.remote != nil {
		return a.remote, nil
	}
	if a.remoteErr != nil {
		return nil, a.remoteErr
	}
	return nil, errors.New("no remote database configured (set REMOTE_DB_URL or write " + config.ConfigFileName + ")")
}
