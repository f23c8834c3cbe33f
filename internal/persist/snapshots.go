package persist

import (
	"database/sql"
	"fmt"
	"time"
)

// Snapshot is one row of the snapshots or backups table.
type Snapshot struct {
	ID        int64
	SourceID  int64
	CreatedAt int64
	Tick      uint64
	Records   int
	Reason    string
	Payload   []byte
}

// SaveSnapshot appends a snapshot to the primary table and returns its row id.
func (db *DB) SaveSnapshot(payload []byte, tick uint64, records int, reason string, now time.Time) (int64, error) {
	if reason == "" {
		reason = "interval"
	}
	result, err := db.Exec(`
		INSERT INTO snapshots (created_at, tick, records, reason, payload)
		VALUES (?, ?, ?, ?, ?)
	`, now.UnixMilli(), int64(tick), records, reason, payload)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the most recent primary snapshot, or nil when the
// table is empty.
func (db *DB) LatestSnapshot() (*Snapshot, error) {
	var s Snapshot
	var tick int64
	err := db.QueryRow(`
		SELECT id, created_at, tick, records, reason, payload
		FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1
	`).Scan(&s.ID, &s.CreatedAt, &tick, &s.Records, &s.Reason, &s.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	s.Tick = uint64(tick)
	return &s, nil
}

// ListSnapshots returns up to limit primary snapshots, newest first, without
// payloads.
func (db *DB) ListSnapshots(limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, created_at, tick, records, reason
		FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var tick int64
		if err := rows.Scan(&s.ID, &s.CreatedAt, &tick, &s.Records, &s.Reason); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

// CopyToBackup duplicates a primary snapshot row into the backups table.
func (db *DB) CopyToBackup(snapshotID int64, now time.Time) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO backups (source_id, created_at, tick, records, payload)
		SELECT id, ?, tick, records, payload FROM snapshots WHERE id = ?
	`, now.UnixMilli(), snapshotID)
	if err != nil {
		return 0, fmt.Errorf("copy snapshot %d to backups: %w", snapshotID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backup rows affected: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("copy snapshot %d to backups: no such snapshot", snapshotID)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("backup id: %w", err)
	}
	return id, nil
}

// ListBackups returns up to limit backup rows, newest first, without
// payloads.
func (db *DB) ListBackups(limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, source_id, created_at, tick, records
		FROM backups ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var tick int64
		if err := rows.Scan(&s.ID, &s.SourceID, &s.CreatedAt, &tick, &s.Records); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

// BackupPayload returns the payload of a backup row for manual recovery.
func (db *DB) BackupPayload(backupID int64) ([]byte, error) {
	var payload []byte
	err := db.QueryRow("SELECT payload FROM backups WHERE id = ?", backupID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup %d: not found", backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("backup payload: %w", err)
	}
	return payload, nil
}

// RestoreBackup copies a backup row back into the primary table so the next
// startup loads it. Returns the new snapshot row id.
func (db *DB) RestoreBackup(backupID int64, now time.Time) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO snapshots (created_at, tick, records, reason, payload)
		SELECT ?, tick, records, 'restore', payload FROM backups WHERE id = ?
	`, now.UnixMilli(), backupID)
	if err != nil {
		return 0, fmt.Errorf("restore backup %d: %w", backupID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("restore rows affected: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("restore backup %d: no such backup", backupID)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("restored snapshot id: %w", err)
	}
	return id, nil
}

// PruneSnapshots enforces retention on the primary table: at most keep rows,
// none older than maxAge. Zero disables the respective limit. The newest row
// always survives.
func (db *DB) PruneSnapshots(keep int, maxAge time.Duration, now time.Time) (int64, error) {
	return db.prune("snapshots", keep, maxAge, now)
}

// PruneBackups enforces retention on the backups table.
func (db *DB) PruneBackups(keep int, maxAge time.Duration, now time.Time) (int64, error) {
	return db.prune("backups", keep, maxAge, now)
}

func (db *DB) prune(table string, keep int, maxAge time.Duration, now time.Time) (int64, error) {
	var evicted int64
	if maxAge > 0 {
		cutoff := now.Add(-maxAge).UnixMilli()
		result, err := db.Exec(fmt.Sprintf(`
			DELETE FROM %s WHERE created_at < ?
			AND id != (SELECT id FROM %s ORDER BY created_at DESC, id DESC LIMIT 1)
		`, table, table), cutoff)
		if err != nil {
			return evicted, fmt.Errorf("prune %s by age: %w", table, err)
		}
		n, _ := result.RowsAffected()
		evicted += n
	}
	if keep > 0 {
		result, err := db.Exec(fmt.Sprintf(`
			DELETE FROM %s WHERE id NOT IN (
				SELECT id FROM %s ORDER BY created_at DESC, id DESC LIMIT ?
			)
		`, table, table), keep)
		if err != nil {
			return evicted, fmt.Errorf("prune %s by count: %w", table, err)
		}
		n, _ := result.RowsAffected()
		evicted += n
	}
	return evicted, nil
}
