package sqlite

const schema = `
-- Append-only event log
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    ts INTEGER NOT NULL,
    writer TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '{}',
    metadata TEXT NOT NULL DEFAULT '{}',
    payload TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts, id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, ts);
CREATE INDEX IF NOT EXISTS idx_events_writer ON events(writer, ts);

-- Tag index: one row per (event, tag). Queries by tag join through here
-- instead of scanning the events table.
CREATE TABLE IF NOT EXISTS event_tags (
    event_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (event_id, tag),
    FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_event_tags_lookup ON event_tags(tag, value, event_id);

-- Per-writer timestamp high-water marks, updated in the same transaction as
-- the event insert.
CREATE TABLE IF NOT EXISTS event_writers (
    writer TEXT PRIMARY KEY,
    last_ts INTEGER NOT NULL
);

-- Monitoring session history
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    resource_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    started_at INTEGER NOT NULL,
    last_checked_at INTEGER,
    ended_at INTEGER,
    last_known TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_resource ON sessions(resource_id, status);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

-- Arena: at most one active session per resource. The primary key is the
-- uniqueness guarantee; rows exist only while the session is active.
CREATE TABLE IF NOT EXISTS active_sessions (
    resource_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL
);

-- Escalations. Resolution columns stay NULL until resolved; the
-- resolved_at IS NULL guard makes resolution a one-shot update.
CREATE TABLE IF NOT EXISTS escalations (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    resource_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    operation_id TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    retry_history TEXT,
    created_at INTEGER NOT NULL,
    resolved_at INTEGER,
    resolved_by TEXT,
    resolution_action TEXT,
    resolution_desc TEXT,
    resolution_channel TEXT
);

CREATE INDEX IF NOT EXISTS idx_escalations_resource ON escalations(resource_id, created_at);
CREATE INDEX IF NOT EXISTS idx_escalations_open ON escalations(resolved_at, severity);

-- Config key-value store
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
