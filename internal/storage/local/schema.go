package local

const schema = `
CREATE TABLE IF NOT EXISTS history_cache (
    command_uuid TEXT PRIMARY KEY,
    request_id TEXT,
    command TEXT NOT NULL,
    response TEXT,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'processing', 'completed', 'cancelled', 'error')),
    user_id INTEGER,
    machine_id TEXT,
    session_id TEXT,
    timestamp INTEGER NOT NULL,
    updated_at INTEGER,
    completed_at INTEGER,
    tokens_used INTEGER DEFAULT 0,
    execution_time_ms INTEGER DEFAULT 0,
    sync_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(sync_status IN ('pending', 'synced', 'failed')),
    last_synced INTEGER
);

CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history_cache(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_history_user ON history_cache(user_id);
CREATE INDEX IF NOT EXISTS idx_history_machine ON history_cache(machine_id);
CREATE INDEX IF NOT EXISTS idx_history_sync_status ON history_cache(sync_status);

CREATE TABLE IF NOT EXISTS sync_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    op TEXT NOT NULL CHECK(op IN ('insert', 'update', 'delete')),
    table_name TEXT NOT NULL,
    record_id TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    priority INTEGER NOT NULL DEFAULT 0,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_order ON sync_queue(priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conflict_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    command_uuid TEXT NOT NULL,
    local_data TEXT NOT NULL,
    remote_data TEXT NOT NULL,
    resolution TEXT NOT NULL,
    resolved_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conflict_uuid ON conflict_log(command_uuid);
`
