package backup

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite" // SQLite driver
)

// Verify opens a backup read-only and runs PRAGMA integrity_check.
func Verify(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// sidecars are the files that make up a live SQLite database in WAL mode.
var sidecars = []string{"", "-wal", "-shm"}

// copyBackup is replaced in tests to force a failed copy.
var copyBackup = copyFile

// Restore replaces the database at dbPath with the backup at backupPath.
// Nothing may have dbPath open. The current database and its WAL files are
// kept as dbPath+".pre-restore" (plus "-wal" and "-shm") until the restored
// copy verifies; on failure they are moved back.
func Restore(backupPath, dbPath string) error {
	if err := Verify(backupPath); err != nil {
		return fmt.Errorf("backup verification failed: %w", err)
	}

	previous := dbPath + ".pre-restore"
	var moved []string
	for _, suffix := range sidecars {
		if _, err := os.Stat(dbPath + suffix); err != nil {
			continue
		}
		// Stale WAL files would be replayed over the restored copy, so they
		// are set aside along with the database.
		if err := os.Rename(dbPath+suffix, previous+suffix); err != nil {
			for _, done := range moved {
				_ = os.Rename(previous+done, dbPath+done)
			}
			return fmt.Errorf("failed to set aside current database: %w", err)
		}
		moved = append(moved, suffix)
	}

	if err := copyBackup(backupPath, dbPath); err != nil {
		return rollback(dbPath, previous, moved, err)
	}
	if err := Verify(dbPath); err != nil {
		return rollback(dbPath, previous, moved, fmt.Errorf("restored database verification failed: %w", err))
	}

	for _, suffix := range moved {
		_ = os.Remove(previous + suffix)
	}
	return nil
}

// rollback removes whatever the failed restore left at dbPath and moves the
// set-aside files back.
func rollback(dbPath, previous string, moved []string, cause error) error {
	for _, suffix := range sidecars {
		_ = os.Remove(dbPath + suffix)
	}
	if len(moved) == 0 {
		return cause
	}
	for _, suffix := range moved {
		if err := os.Rename(previous+suffix, dbPath+suffix); err != nil {
			return fmt.Errorf("restore failed and rollback failed: %v (restore error: %w)", err, cause)
		}
	}
	return fmt.Errorf("restore failed, rolled back to previous state: %w", cause)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy backup: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync target file: %w", err)
	}
	return out.Close()
}
