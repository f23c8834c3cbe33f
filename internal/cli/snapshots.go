package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/raymoo/monoidal-effects/internal/persist"
)

var (
	snapshotsDB    string
	snapshotsLimit int
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect and restore stored engine snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot and backup rows, newest first",
	RunE:  runSnapshotsList,
}

var snapshotsRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Copy a backup row back into the primary table",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsRestore,
}

func init() {
	snapshotsCmd.PersistentFlags().StringVar(&snapshotsDB, "db", "", "Snapshot database path (defaults to EFFECTS_DB_PATH, then data/effects.db)")
	snapshotsListCmd.Flags().IntVarP(&snapshotsLimit, "limit", "n", 20, "Maximum rows per table")
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsRestoreCmd)
}

func openSnapshotDB() (*persist.DB, error) {
	path := snapshotsDB
	if path == "" {
		path = os.Getenv("EFFECTS_DB_PATH")
	}
	if path == "" {
		path = persist.DefaultDBPath()
	}
	return persist.Open(path)
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	db, err := openSnapshotDB()
	if err != nil {
		return err
	}
	defer db.Close()

	snapshots, err := db.ListSnapshots(snapshotsLimit)
	if err != nil {
		return err
	}
	fmt.Printf("snapshots (%d):\n", len(snapshots))
	for _, s := range snapshots {
		fmt.Printf("  %6d  %s  tick %-8d  %3d records  %s\n",
			s.ID, formatMillis(s.CreatedAt), s.Tick, s.Records, s.Reason)
	}

	backups, err := db.ListBackups(snapshotsLimit)
	if err != nil {
		return err
	}
	fmt.Printf("backups (%d):\n", len(backups))
	for _, b := range backups {
		fmt.Printf("  %6d  %s  tick %-8d  %3d records  from snapshot %d\n",
			b.ID, formatMillis(b.CreatedAt), b.Tick, b.Records, b.SourceID)
	}
	return nil
}

func runSnapshotsRestore(cmd *cobra.Command, args []string) error {
	backupID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid backup id %q", args[0])
	}

	db, err := openSnapshotDB()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.RestoreBackup(backupID, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("restored backup %d as snapshot %d\n", backupID, id)
	return nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
