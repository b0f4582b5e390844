// Command recall-backup takes, lists and restores backups of the sqlite
// record store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/recall/internal/app"
	"github.com/scrypster/recall/internal/backup"
	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
)

type options struct {
	envPath   string
	backupDir string
	interval  time.Duration
	verify    bool
	oneshot   bool
	restore   string
	health    bool
	list      bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("recall-backup", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.envPath, "env", ".env", "Path to a dotenv file (ignored when missing)")
	fs.StringVar(&o.backupDir, "backup-dir", "", "Backup directory path (overrides config)")
	fs.DurationVar(&o.interval, "interval", 0, "Backup interval (overrides config)")
	fs.BoolVar(&o.verify, "verify", true, "Verify backups after creation")
	fs.BoolVar(&o.oneshot, "oneshot", false, "Perform a single backup and exit")
	fs.StringVar(&o.restore, "restore", "", "Restore the database from a backup file and exit")
	fs.BoolVar(&o.health, "health", false, "Check backup health and exit")
	fs.BoolVar(&o.list, "list", false, "List all available backups and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadConfigFrom(o.envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, cfg, log, os.Stdout); err != nil {
		log.Error("recall-backup failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options, cfg *config.Config, log *logger.Logger, out io.Writer) error {
	if cfg.Storage.Engine != "" && cfg.Storage.Engine != "sqlite" {
		return fmt.Errorf("backups are only supported for the sqlite engine, got %q", cfg.Storage.Engine)
	}

	bc := cfg.Backup
	bc.Verify = o.verify
	if o.backupDir != "" {
		bc.Dir = o.backupDir
	}
	if o.interval > 0 {
		bc.Interval = o.interval
	}

	// Restore replaces the database file, so the store must not be open.
	if o.restore != "" {
		dbPath := app.SQLitePath(cfg.Storage)
		log.Info("restoring database", "backup", o.restore, "db", dbPath)
		if err := backup.Restore(o.restore, dbPath); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Fprintln(out, "Database restored successfully")
		return nil
	}

	if o.list {
		backups, err := backup.List(bc.Dir)
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		printList(out, backups, time.Now())
		return nil
	}

	store, err := app.OpenStore(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	snap, ok := store.(backup.Snapshotter)
	if !ok {
		return errors.New("store does not support snapshots")
	}
	service, err := backup.NewService(snap, bc, log)
	if err != nil {
		return err
	}

	switch {
	case o.health:
		h, err := service.Health()
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		printHealth(out, h, bc.Dir, time.Now())
		if h.Status != "healthy" {
			return fmt.Errorf("backup status is %s", h.Status)
		}
		return nil
	case o.oneshot:
		result, err := service.BackupNow(ctx)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		log.Info("backup completed",
			"path", result.Path, "size", result.Size,
			"duration", result.Duration, "verified", result.Verified)
		return nil
	default:
		log.Info("recall backup service started, press Ctrl+C to stop")
		err := service.Run(ctx)
		if errors.Is(err, context.Canceled) {
			log.Info("backup service stopped")
			return nil
		}
		return err
	}
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

func printList(out io.Writer, backups []backup.Info, now time.Time) {
	if len(backups) == 0 {
		fmt.Fprintln(out, "No backups found")
		return
	}

	fmt.Fprintf(out, "Found %d backup(s):\n\n", len(backups))
	for i, b := range backups {
		fmt.Fprintf(out, "%d. %s\n", i+1, b.Path)
		fmt.Fprintf(out, "   Size: %.2f MB\n", megabytes(b.Size))
		fmt.Fprintf(out, "   Created: %s (%s ago)\n\n",
			b.Timestamp.Format(time.RFC3339), now.Sub(b.Timestamp).Round(time.Minute))
	}
}

func printHealth(out io.Writer, h *backup.Health, dir string, now time.Time) {
	fmt.Fprintf(out, "Status: %s\n", h.Status)
	if h.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", h.Message)
	}
	fmt.Fprintf(out, "Total Backups: %d\n", h.TotalBackups)
	fmt.Fprintf(out, "Disk Space Used: %.2f MB\n", megabytes(h.DiskSpaceUsed))
	fmt.Fprintf(out, "Backup Directory: %s\n", dir)

	if h.LastBackup.IsZero() {
		fmt.Fprintln(out, "Last Backup: Never")
	} else {
		fmt.Fprintf(out, "Last Backup: %s (%s ago)\n",
			h.LastBackup.Format(time.RFC3339), now.Sub(h.LastBackup).Round(time.Minute))
	}
	if !h.NextBackup.IsZero() {
		fmt.Fprintf(out, "Next Backup: %s (in %s)\n",
			h.NextBackup.Format(time.RFC3339), h.NextBackup.Sub(now).Round(time.Minute))
	}
}
