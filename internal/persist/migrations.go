package persist

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "snapshots: primary snapshot log",
		SQL: `
CREATE TABLE snapshots (
    id          INTEGER PRIMARY KEY,
    created_at  INTEGER NOT NULL,
    tick        INTEGER NOT NULL,
    records     INTEGER NOT NULL,
    reason      TEXT NOT NULL DEFAULT 'interval',
    payload     BLOB NOT NULL
);

CREATE INDEX idx_snapshots_created ON snapshots(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "backups: periodic copies of primary snapshots",
		SQL: `
CREATE TABLE backups (
    id          INTEGER PRIMARY KEY,
    source_id   INTEGER NOT NULL,
    created_at  INTEGER NOT NULL,
    tick        INTEGER NOT NULL,
    records     INTEGER NOT NULL,
    payload     BLOB NOT NULL
);

CREATE INDEX idx_backups_created ON backups(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
