// Package backup keeps rotating snapshots of the sqlite record store.
//
// Snapshots are taken through the live store with VACUUM INTO, named
// recall-YYYYMMDD-HHMMSS.ffffff.db, and pruned by a tiered retention policy
// after every successful backup.
package backup

import (
	"time"

	"github.com/scrypster/recall/internal/config"
)

// RetentionPolicy is the number of backups kept in each age tier:
// hourly (< 24h), daily (< 7d), weekly (< 30d) and monthly (< 365d).
// Backups older than a year are always removed.
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

// PolicyFromConfig builds a RetentionPolicy from the backup settings.
func PolicyFromConfig(cfg config.BackupConfig) RetentionPolicy {
	return RetentionPolicy{
		Hourly:  cfg.KeepHourly,
		Daily:   cfg.KeepDaily,
		Weekly:  cfg.KeepWeekly,
		Monthly: cfg.KeepMonthly,
	}
}

// Info describes one backup file.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result is the outcome of a single backup.
type Result struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Size     int64         `json:"size"`
	Verified bool          `json:"verified"`
}

// Health summarises the backup directory and schedule.
type Health struct {
	Status        string    `json:"status"` // healthy or warning
	Message       string    `json:"message"`
	LastBackup    time.Time `json:"last_backup"`
	NextBackup    time.Time `json:"next_backup"`
	TotalBackups  int       `json:"total_backups"`
	DiskSpaceUsed int64     `json:"disk_space_used"`
}
