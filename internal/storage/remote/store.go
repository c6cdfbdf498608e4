// Package remote implements the shared history store over libsql (Turso).
package remote

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/mcpterm/mcpterm/internal/config"
	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/types"
)

// probeTimeout bounds the startup connectivity check.
const probeTimeout = 5 * time.Second

// Store is the network-backed SQL store. One long-lived handle; every
// statement carries explicit parameters.
type Store struct {
	db *sql.DB
}

// New dials the configured libsql database, probes it, and validates the
// schema. An admin-flagged config may create missing tables; everyone else
// gets types.ErrSchemaMissing.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote: %w: no REMOTE_DB_URL configured", types.ErrBadInput)
	}

	db, err := sql.Open("libsql", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("remote: open: %w", err)
	}

	s := &Store{db: db}
	if err := s.probe(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	missing, err := s.missingTables(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if len(missing) > 0 {
		if !cfg.IsAdminConfig {
			_ = db.Close()
			return nil, fmt.Errorf("remote: tables %s: %w",
				strings.Join(missing, ", "), types.ErrSchemaMissing)
		}
		debug.Logf("remote: admin config, creating %d missing tables", len(missing))
		if _, err := db.ExecContext(ctx, Schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("remote: create schema: %w", err)
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (tests run the same SQL against an
// in-memory sqlite database).
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func dsn(cfg *config.Config) string {
	u := cfg.URL
	if cfg.Token != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "authToken=" + url.QueryEscape(cfg.Token)
	}
	return u
}

// probe runs SELECT 1 with a bounded timeout.
func (s *Store) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("remote: probe: %w: %v", types.ErrNetworkTransient, err)
	}
	return nil
}

func (s *Store) missingTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, fmt.Errorf("remote: list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("remote: list tables: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("remote: list tables: %w", err)
	}

	var missing []string
	for _, t := range requiredTables {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// Close releases the handle.
func (s *Store) Close() error {
	return s.db.Close()
}
