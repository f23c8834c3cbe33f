package persist

import (
	"bytes"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndLatestSnapshot(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := db.SaveSnapshot([]byte(`{"version":1}`), 42, 3, "interval", now)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if id == 0 {
		t.Errorf("snapshot id = 0, want nonzero")
	}

	latest, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest == nil {
		t.Fatalf("LatestSnapshot = nil, want a row")
	}
	if latest.Tick != 42 || latest.Records != 3 || latest.Reason != "interval" {
		t.Errorf("latest = tick %d records %d reason %q, want 42/3/interval", latest.Tick, latest.Records, latest.Reason)
	}
	if !bytes.Equal(latest.Payload, []byte(`{"version":1}`)) {
		t.Errorf("payload = %q, want the stored blob", latest.Payload)
	}
}

func TestLatestSnapshotEmptyStore(t *testing.T) {
	db := openTestDB(t)
	latest, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest != nil {
		t.Errorf("LatestSnapshot = %+v, want nil for an empty store", latest)
	}
}

func TestLatestSnapshotPrefersNewest(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := db.SaveSnapshot([]byte("old"), 1, 1, "interval", base); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if _, err := db.SaveSnapshot([]byte("new"), 2, 1, "shutdown", base.Add(time.Minute)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	latest, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if string(latest.Payload) != "new" || latest.Reason != "shutdown" {
		t.Errorf("latest payload = %q reason %q, want the newer row", latest.Payload, latest.Reason)
	}
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := db.SaveSnapshot([]byte("payload"), uint64(i), i, "interval", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("SaveSnapshot %d: %v", i, err)
		}
	}

	rows, err := db.ListSnapshots(3)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0].Tick != 4 || rows[2].Tick != 2 {
		t.Errorf("rows ordered %d..%d, want newest first 4..2", rows[0].Tick, rows[2].Tick)
	}
}

func TestCopyToBackupAndPayload(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := db.SaveSnapshot([]byte(`{"version":1,"nextId":7}`), 9, 2, "interval", now)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	backupID, err := db.CopyToBackup(id, now.Add(time.Second))
	if err != nil {
		t.Fatalf("CopyToBackup: %v", err)
	}

	backups, err := db.ListBackups(10)
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("len(backups) = %d, want 1", len(backups))
	}
	if backups[0].SourceID != id || backups[0].Tick != 9 {
		t.Errorf("backup = source %d tick %d, want %d/9", backups[0].SourceID, backups[0].Tick, id)
	}

	payload, err := db.BackupPayload(backupID)
	if err != nil {
		t.Fatalf("BackupPayload: %v", err)
	}
	if string(payload) != `{"version":1,"nextId":7}` {
		t.Errorf("backup payload = %q, want the copied blob", payload)
	}
}

func TestCopyToBackupMissingSnapshot(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.CopyToBackup(99, time.Now()); err == nil {
		t.Errorf("CopyToBackup(99) = nil error, want failure")
	}
}

func TestRestoreBackup(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := db.SaveSnapshot([]byte(`{"version":1,"nextId":7}`), 9, 2, "interval", now)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	backupID, err := db.CopyToBackup(id, now.Add(time.Second))
	if err != nil {
		t.Fatalf("CopyToBackup: %v", err)
	}
	if _, err := db.SaveSnapshot([]byte("corrupt"), 10, 0, "interval", now.Add(2*time.Second)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restoredID, err := db.RestoreBackup(backupID, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if restoredID == 0 {
		t.Errorf("restored id = 0, want nonzero")
	}

	latest, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest.ID != restoredID || latest.Reason != "restore" {
		t.Errorf("latest = id %d reason %q, want the restored row", latest.ID, latest.Reason)
	}
	if string(latest.Payload) != `{"version":1,"nextId":7}` || latest.Tick != 9 {
		t.Errorf("latest payload = %q tick %d, want the backup contents", latest.Payload, latest.Tick)
	}
}

func TestRestoreBackupMissing(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.RestoreBackup(42, time.Now()); err == nil {
		t.Errorf("RestoreBackup(42) = nil error, want failure")
	}
}

func TestPruneByCount(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := db.SaveSnapshot([]byte("payload"), uint64(i), i, "interval", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("SaveSnapshot %d: %v", i, err)
		}
	}

	evicted, err := db.PruneSnapshots(2, 0, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if evicted != 3 {
		t.Errorf("evicted = %d, want 3", evicted)
	}
	rows, err := db.ListSnapshots(10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(rows) != 2 || rows[0].Tick != 4 || rows[1].Tick != 3 {
		t.Errorf("surviving ticks = %v, want the 2 newest", rows)
	}
}

func TestPruneByAgeKeepsNewestRow(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := db.SaveSnapshot([]byte("only"), 1, 1, "interval", base); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// Even a stale row survives while it is the only one.
	evicted, err := db.PruneSnapshots(0, time.Hour, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if evicted != 0 {
		t.Errorf("evicted = %d, want the newest row kept", evicted)
	}

	if _, err := db.SaveSnapshot([]byte("fresh"), 2, 1, "interval", base.Add(48*time.Hour)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	evicted, err = db.PruneSnapshots(0, time.Hour, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want the stale row dropped", evicted)
	}
	latest, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if string(latest.Payload) != "fresh" {
		t.Errorf("latest payload = %q, want fresh", latest.Payload)
	}
}
