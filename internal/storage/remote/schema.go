package remote

// requiredTables is what a provisioned remote database must contain.
// Clients refuse to proceed when any are absent; creation is the
// administrator's responsibility (or an admin-flagged config).
var requiredTables = []string{
	"users",
	"machines",
	"history_global",
	"history_user",
	"history_machine",
	"command_cache",
	"sessions",
}

// Schema is the authoritative remote schema, applied by admin provisioning.
// Each history table carries a UNIQUE(request_id) so status updates stay
// idempotent under retry, and UNIQUE(command_uuid) so repeated uploads
// update in place.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TABLE IF NOT EXISTS machines (
    machine_id TEXT PRIMARY KEY,
    hostname TEXT NOT NULL DEFAULT '',
    ip TEXT NOT NULL DEFAULT '',
    os_info TEXT NOT NULL DEFAULT '',
    first_seen INTEGER NOT NULL,
    last_seen INTEGER NOT NULL,
    total_commands INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS history_global (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    command_uuid TEXT UNIQUE,
    request_id TEXT UNIQUE,
    command TEXT NOT NULL,
    response TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    user_id INTEGER,
    machine_id TEXT,
    session_id TEXT,
    timestamp INTEGER NOT NULL,
    updated_at INTEGER,
    completed_at INTEGER,
    tokens_used INTEGER DEFAULT 0,
    execution_time_ms INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS history_user (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    command_uuid TEXT UNIQUE,
    request_id TEXT UNIQUE,
    command TEXT NOT NULL,
    response TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    user_id INTEGER,
    machine_id TEXT,
    session_id TEXT,
    timestamp INTEGER NOT NULL,
    updated_at INTEGER,
    completed_at INTEGER,
    tokens_used INTEGER DEFAULT 0,
    execution_time_ms INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS history_machine (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    command_uuid TEXT UNIQUE,
    request_id TEXT UNIQUE,
    command TEXT NOT NULL,
    response TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    user_id INTEGER,
    machine_id TEXT,
    session_id TEXT,
    timestamp INTEGER NOT NULL,
    updated_at INTEGER,
    completed_at INTEGER,
    tokens_used INTEGER DEFAULT 0,
    execution_time_ms INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_hg_timestamp ON history_global(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_hu_timestamp ON history_user(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_hu_user ON history_user(user_id);
CREATE INDEX IF NOT EXISTS idx_hm_timestamp ON history_machine(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_hm_machine ON history_machine(machine_id);

CREATE TABLE IF NOT EXISTS command_cache (
    command_hash TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    response TEXT NOT NULL,
    hit_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    user_id INTEGER,
    machine_id TEXT,
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    commands INTEGER NOT NULL DEFAULT 0
);
`
