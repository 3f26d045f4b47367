package store

const schema = `
CREATE TABLE IF NOT EXISTS restrictions (
    target TEXT PRIMARY KEY,
    is_blocked BOOLEAN NOT NULL DEFAULT 0,
    daily_limit_ms INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    last_modified TIMESTAMP NOT NULL,
    synced BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS usage_daily (
    day TEXT NOT NULL,
    target TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (day, target)
);

CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target TEXT NOT NULL,
    start_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL,
    was_blocked BOOLEAN NOT NULL DEFAULT 0,
    synced BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS overrides (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target TEXT NOT NULL,
    day TEXT NOT NULL,
    granted_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    id TEXT PRIMARY KEY,
    current_level INTEGER NOT NULL DEFAULT 1,
    strict_mode BOOLEAN NOT NULL DEFAULT 0,
    allow_override BOOLEAN NOT NULL DEFAULT 1,
    sync_enabled BOOLEAN NOT NULL DEFAULT 0,
    last_sync TIMESTAMP,
    last_modified TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_target ON sessions(target);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);
CREATE INDEX IF NOT EXISTS idx_sessions_synced ON sessions(synced);
CREATE INDEX IF NOT EXISTS idx_overrides_day_target ON overrides(day, target);
CREATE INDEX IF NOT EXISTS idx_usage_day ON usage_daily(day);
`
