package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/logging"
	"github.com/raymoo/monoidal-effects/logging/persistence"
)

// SaverConfig bounds backup cadence and retention. Zero values disable the
// respective limit.
type SaverConfig struct {
	// BackupEvery copies every Nth save into the backups table.
	BackupEvery int
	// Keep caps how many primary snapshots survive pruning.
	Keep int
	// KeepBackups caps how many backup rows survive pruning.
	KeepBackups int
	// MaxAge drops rows older than this from both tables.
	MaxAge time.Duration
	// Publisher receives persistence events. Nil publishes nothing.
	Publisher logging.Publisher
}

// Saver writes engine snapshots to the store on the runner's cadence and
// restores the latest one on startup.
type Saver struct {
	db        *DB
	cfg       SaverConfig
	publisher logging.Publisher
	ref       logging.EntityRef
	saves     int
}

// NewSaver wires a Saver to an open store.
func NewSaver(db *DB, cfg SaverConfig) *Saver {
	return &Saver{
		db:        db,
		cfg:       cfg,
		publisher: cfg.Publisher,
		ref:       logging.EntityRef{ID: db.Path, Kind: logging.EntityKindStore},
	}
}

// Save serialises the manager and appends the snapshot to the primary table,
// then runs the backup cadence and retention. The save itself failing is
// returned as an error; backup and prune failures publish events but do not
// undo the completed save.
func (s *Saver) Save(ctx context.Context, mgr *effects.Manager, reason string, now time.Time) error {
	tick := mgr.CurrentTick()

	payload, err := mgr.Serialize(now)
	if err != nil {
		s.failed(ctx, tick, "serialize", err)
		return fmt.Errorf("persist: serialize: %w", err)
	}
	records := mgr.Count()

	id, err := s.db.SaveSnapshot(payload, tick, records, reason, now)
	if err != nil {
		s.failed(ctx, tick, "insert", err)
		return fmt.Errorf("persist: save snapshot: %w", err)
	}
	persistence.Saved(ctx, s.publisher, tick, s.ref, persistence.SavePayload{
		Bytes:   len(payload),
		Records: records,
		Reason:  reason,
	})

	s.saves++
	if s.cfg.BackupEvery > 0 && s.saves%s.cfg.BackupEvery == 0 {
		if _, err := s.db.CopyToBackup(id, now); err != nil {
			s.failed(ctx, tick, "backup", err)
		} else {
			persistence.BackedUp(ctx, s.publisher, tick, s.ref, persistence.SavePayload{
				Bytes:   len(payload),
				Records: records,
				Reason:  reason,
			})
		}
	}

	if _, err := s.db.PruneSnapshots(s.cfg.Keep, s.cfg.MaxAge, now); err != nil {
		s.failed(ctx, tick, "prune", err)
	}
	if _, err := s.db.PruneBackups(s.cfg.KeepBackups, s.cfg.MaxAge, now); err != nil {
		s.failed(ctx, tick, "prune", err)
	}
	return nil
}

// LoadLatest restores the most recent snapshot into the manager. An empty
// store reports (false, nil) for a fresh start. An unreadable snapshot is an
// error the caller treats as fatal; a backup row has to be restored manually.
func (s *Saver) LoadLatest(ctx context.Context, mgr *effects.Manager) (bool, error) {
	row, err := s.db.LatestSnapshot()
	if err != nil {
		return false, fmt.Errorf("persist: load latest: %w", err)
	}
	if row == nil {
		return false, nil
	}
	if err := mgr.Deserialize(row.Payload); err != nil {
		return false, fmt.Errorf("persist: snapshot %d is unreadable, restore a backup row instead: %w", row.ID, err)
	}
	persistence.Loaded(ctx, s.publisher, row.Tick, s.ref, persistence.LoadPayload{
		Bytes:   len(row.Payload),
		Records: mgr.Count(),
		Version: effects.SnapshotVersion,
	})
	return true, nil
}

func (s *Saver) failed(ctx context.Context, tick uint64, operation string, err error) {
	persistence.SaveFailed(ctx, s.publisher, tick, s.ref, persistence.FailurePayload{
		Operation: operation,
		Error:     err.Error(),
	})
}
