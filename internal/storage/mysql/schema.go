package mysql

// MySQL will not add indexes via CREATE INDEX IF NOT EXISTS, so every index
// rides inside its CREATE TABLE as a KEY clause.
const schema = `
-- Append-only event log
CREATE TABLE IF NOT EXISTS events (
    id VARCHAR(64) PRIMARY KEY,
    type VARCHAR(255) NOT NULL,
    ts BIGINT NOT NULL,
    writer VARCHAR(255) NOT NULL,
    tags TEXT NOT NULL,
    metadata TEXT NOT NULL,
    payload MEDIUMTEXT,
    KEY idx_events_ts (ts, id),
    KEY idx_events_type (type, ts),
    KEY idx_events_writer (writer, ts)
);

-- Tag index: one row per (event, tag)
CREATE TABLE IF NOT EXISTS event_tags (
    event_id VARCHAR(64) NOT NULL,
    tag VARCHAR(191) NOT NULL,
    value VARCHAR(512) NOT NULL,
    PRIMARY KEY (event_id, tag),
    KEY idx_event_tags_lookup (tag, value(191), event_id)
);

-- Per-writer timestamp high-water marks
CREATE TABLE IF NOT EXISTS event_writers (
    writer VARCHAR(255) PRIMARY KEY,
    last_ts BIGINT NOT NULL
);

-- Monitoring session history
CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(64) PRIMARY KEY,
    resource_id VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT 'active',
    started_at BIGINT NOT NULL,
    last_checked_at BIGINT,
    ended_at BIGINT,
    last_known MEDIUMTEXT,
    KEY idx_sessions_resource (resource_id, status),
    KEY idx_sessions_started_at (started_at)
);

-- Arena: at most one active session per resource
CREATE TABLE IF NOT EXISTS active_sessions (
    resource_id VARCHAR(255) PRIMARY KEY,
    session_id VARCHAR(64) NOT NULL
);

-- Escalations
CREATE TABLE IF NOT EXISTS escalations (
    id VARCHAR(64) PRIMARY KEY,
    type VARCHAR(64) NOT NULL,
    severity VARCHAR(16) NOT NULL,
    resource_id VARCHAR(255) NOT NULL DEFAULT '',
    session_id VARCHAR(64) NOT NULL DEFAULT '',
    operation_id VARCHAR(255) NOT NULL DEFAULT '',
    reason TEXT,
    retry_history MEDIUMTEXT,
    created_at BIGINT NOT NULL,
    resolved_at BIGINT,
    resolved_by VARCHAR(255),
    resolution_action VARCHAR(32),
    resolution_desc TEXT,
    resolution_channel VARCHAR(64),
    KEY idx_escalations_resource (resource_id, created_at),
    KEY idx_escalations_open (resolved_at, severity)
);

-- Config key-value store
CREATE TABLE IF NOT EXISTS config (
    ` + "`key`" + ` VARCHAR(191) PRIMARY KEY,
    ` + "`value`" + ` TEXT NOT NULL
);
`
