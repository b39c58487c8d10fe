package store

const schema = `
CREATE TABLE IF NOT EXISTS environments (
    id TEXT PRIMARY KEY,
    interpreter TEXT NOT NULL,
    kind TEXT NOT NULL,
    version TEXT,
    prefix TEXT,
    last_seen TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    env_id TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    taken_at TIMESTAMP NOT NULL,
    package_count INTEGER NOT NULL,
    FOREIGN KEY (env_id) REFERENCES environments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS snapshot_packages (
    env_id TEXT NOT NULL,
    name TEXT NOT NULL,
    display_name TEXT NOT NULL,
    version TEXT,
    size_bytes INTEGER,
    installed_at TIMESTAMP,
    location TEXT,
    installer TEXT,
    requires TEXT,
    top_level TEXT,
    files TEXT,
    requested BOOLEAN,
    unreadable BOOLEAN,
    PRIMARY KEY (env_id, name),
    FOREIGN KEY (env_id) REFERENCES snapshots(env_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS findings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    env_id TEXT NOT NULL,
    snapshot_hash TEXT NOT NULL,
    package TEXT NOT NULL,
    kind TEXT NOT NULL,
    severity INTEGER NOT NULL,
    detail TEXT,
    remedy TEXT,
    recorded_at TIMESTAMP NOT NULL,
    FOREIGN KEY (env_id) REFERENCES environments(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_snapshot_packages_env ON snapshot_packages(env_id);
CREATE INDEX IF NOT EXISTS idx_findings_env ON findings(env_id, snapshot_hash);
`
