// Package local implements the embedded cache store using SQLite.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
)

// DBFileName is the cache database under the app dir.
const DBFileName = "cache.db"

// Store is the embedded SQLite store. Single writer + WAL readers.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// setupWASMCache configures WASM compilation caching so the sqlite driver
// does not re-JIT on every process start. Falls back to an in-memory cache
// when the filesystem cache cannot be created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "mcpterm", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (and migrates) the cache store at path. ":memory:" opens a
// shared in-memory database for tests.
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:"
	if isInMemory {
		// WAL does not work with shared in-memory databases; use DELETE mode.
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("local: create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("local: open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are isolated per connection by default.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(runtime.NumCPU() + 1) // 1 writer + N readers
		db.SetMaxIdleConns(2)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("local: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("local: init schema: %w", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close checkpoints the WAL and closes the handle. Idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !strings.Contains(s.dbPath, ":memory:") {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
