package store

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    package_id TEXT NOT NULL,
    version TEXT NOT NULL,
    PRIMARY KEY (package_id, version)
);

CREATE TABLE IF NOT EXISTS usage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    package_id TEXT NOT NULL,
    version TEXT NOT NULL,
    used_at TEXT NOT NULL,
    FOREIGN KEY (package_id, version) REFERENCES entries(package_id, version) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS locks (
    package_id TEXT NOT NULL,
    version TEXT NOT NULL,
    task_id TEXT NOT NULL,
    acquired_at TEXT NOT NULL,
    pid INTEGER NOT NULL DEFAULT 0,
    hostname TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (package_id, version, task_id),
    FOREIGN KEY (package_id, version) REFERENCES entries(package_id, version) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_usage_entry ON usage(package_id, version);
CREATE INDEX IF NOT EXISTS idx_locks_entry ON locks(package_id, version);
`
