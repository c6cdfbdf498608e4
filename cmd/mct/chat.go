package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcpterm/mcpterm/internal/ai"
	"github.com/mcpterm/mcpterm/internal/chat"
	"github.com/mcpterm/mcpterm/internal/config"
	"github.com/mcpterm/mcpterm/internal/controller"
	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/eventbus"
	"github.com/mcpterm/mcpterm/internal/history"
	"github.com/mcpterm/mcpterm/internal/identity"
	"github.com/mcpterm/mcpterm/internal/patterns"
	"github.com/mcpterm/mcpterm/internal/shell"
	"github.com/mcpterm/mcpterm/internal/storage"
	"github.com/mcpterm/mcpterm/internal/syncengine"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.sessionFatal(); err != nil {
		return err
	}

	provider, err := ai.NewClient("")
	if err != nil {
		return err
	}

	if n, err := chat.MigrateLegacyHistory(ctx, a.dir, a.local, a.machineID); err != nil {
		debug.Logf("legacy migration: %v", err)
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "Imported %d entries from legacy history.json\n", n)
	}

	registry := patterns.NewRegistry()
	patterns.RegisterBuiltins(registry)
	if err := patterns.LoadFile(registry, filepath.Join(a.dir, patterns.PatternsFileName)); err != nil {
		debug.Logf("user patterns: %v", err)
	}

	bus := eventbus.New()
	bus.Register(debugHandler())

	sessionID := uuid.NewString()
	scope := a.cfg.Mode()

	// A nil *remote.Store must stay a nil interface downstream.
	var rem storage.Remote
	if a.remote != nil {
		rem = a.remote
	}

	ctrl, err := controller.New(controller.Options{
		Local:     a.local,
		Remote:    rem,
		AI:        provider,
		Patterns:  registry,
		Shell:     shell.NewRunner(),
		Bus:       bus,
		User:      a.user,
		MachineID: a.machineID,
		SessionID: sessionID,
		Scope:     scope,
	})
	if err != nil {
		return err
	}

	view := history.New(a.local, rem, scope)

	var engine *syncengine.Engine
	if a.remote != nil {
		var uid *int64
		if a.user != nil {
			uid = &a.user.ID
		}
		engine, err = syncengine.New(a.local, a.remote, syncengine.Config{
			Interval:  a.cfg.Interval(),
			UserID:    uid,
			MachineID: a.machineID,
		})
		if err != nil {
			return err
		}
		go engine.Run(ctx)

		registerIdentity(ctx, a)
		startRemoteSession(ctx, a, sessionID)
		defer endRemoteSession(a, sessionID, ctrl)
	}

	// Hot-reload the remote config so a token rotation does not require
	// restarting the session.
	go func() {
		if err := config.Watch(ctx, a.dir, func(c *config.Config) {
			debug.Logf("config reloaded: sync interval %s, mode %s", c.Interval(), c.Mode())
		}); err != nil {
			debug.Logf("config watch: %v", err)
		}
	}()

	username := ""
	if a.user != nil {
		username = a.user.Username
	}
	session, err := chat.NewSession(chat.Options{
		Controller: ctrl,
		View:       view,
		Engine:     engine,
		Bus:        bus,
		Username:   username,
	})
	if err != nil {
		return err
	}
	return session.Run(ctx)
}

// registerIdentity upserts this machine and opens a session row, best
// effort.
func registerIdentity(ctx context.Context, a *app) {
	regCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := identity.RegisterMachine(regCtx, a.remote, a.machineID); err != nil {
		debug.Logf("register machine: %v", err)
	}
}

func startRemoteSession(ctx context.Context, a *app, sessionID string) {
	var uid *int64
	if a.user != nil {
		uid = &a.user.ID
	}
	if err := a.remote.StartSession(ctx, sessionID, uid, a.machineID); err != nil {
		debug.Logf("start session: %v", err)
	}
}

func endRemoteSession(a *app, sessionID string, ctrl *controller.Controller) {
	ctrl.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.remote.EndSession(ctx, sessionID, 0); err != nil {
		debug.Logf("end session: %v", err)
	}
}

// debugHandler mirrors every bus event to the debug log.
func debugHandler() eventbus.Handler {
	return &eventbus.HandlerFunc{
		Name: "debug-log",
		Types: []eventbus.EventType{
			eventbus.EventStatusChange,
			eventbus.EventProgress,
			eventbus.EventPasteDetected,
			eventbus.EventMultilineBegin,
			eventbus.EventMultilineEnd,
			eventbus.EventError,
		},
		Prio: 0,
		Fn: func(e eventbus.Event) error {
			debug.Logf("event %s request=%s status=%s->%s %s",
				e.Type, e.RequestID, e.OldStatus, e.Status, e.Message)
			return nil
		},
	}
}
