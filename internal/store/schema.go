package store

const schema = `
CREATE TABLE IF NOT EXISTS environment (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    document TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS restore_points (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TIMESTAMP NOT NULL,
    reason TEXT,
    package_count INTEGER,
    restore_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS restore_point_packages (
    restore_point_id INTEGER NOT NULL,
    package_name TEXT NOT NULL,
    version TEXT NOT NULL,
    source TEXT,
    FOREIGN KEY (restore_point_id) REFERENCES restore_points(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_restore_point_packages ON restore_point_packages(restore_point_id);
`
