package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/mcpterm/mcpterm/internal/debug"
)

// Watch re-loads the config file on every write and invokes onChange with
// the fresh config. Used to hot-reload the sync interval and history mode
// without restarting the session. Runs until ctx is cancelled.
func Watch(ctx context.Context, dir string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(dir)
				if err != nil {
					debug.Logf("config: reload failed: %v", err)
					continue
				}
				debug.Logf("config: reloaded (interval=%ds mode=%s)", cfg.SyncInterval, cfg.HistoryMode)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				debug.Logf("config: watch error: %v", err)
			}
		}
	}()

	// Watch the directory, not the file: editors replace files on save.
	return watcher.Add(dir)
}
