package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
)

// Snapshotter writes a consistent copy of a database to dest.
// *sqlite.MemoryStore implements it.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Service takes scheduled backups of a live store.
type Service struct {
	snap     Snapshotter
	dir      string
	interval time.Duration
	verify   bool
	policy   RetentionPolicy
	log      *logger.Logger
	now      func() time.Time

	mu         sync.Mutex
	running    bool
	lastBackup time.Time
	nextBackup time.Time
}

// NewService creates the backup directory and returns a Service for snap.
func NewService(snap Snapshotter, cfg config.BackupConfig, log *logger.Logger) (*Service, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshotter is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Service{
		snap:     snap,
		dir:      cfg.Dir,
		interval: cfg.Interval,
		verify:   cfg.Verify,
		policy:   PolicyFromConfig(cfg),
		log:      log.With("component", "backup"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run takes a backup every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("backup service is already running")
	}
	s.running = true
	s.nextBackup = s.now().Add(s.interval)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("backup service started", "interval", s.interval, "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("backup service stopping")
			return ctx.Err()
		case <-ticker.C:
			result, err := s.BackupNow(ctx)
			if err != nil {
				s.log.Error("scheduled backup failed", "error", err)
			} else {
				s.log.Info("scheduled backup completed",
					"path", result.Path, "size", result.Size,
					"duration", result.Duration, "verified", result.Verified)
			}

			s.mu.Lock()
			s.nextBackup = s.now().Add(s.interval)
			s.mu.Unlock()
		}
	}
}

// BackupNow takes a snapshot, optionally verifies it, then applies the
// retention policy. Retention failures are logged, not returned.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	start := s.now()
	path := filepath.Join(s.dir, fileName(start))

	if err := s.snap.Snapshot(ctx, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	result := &Result{Path: path, Size: info.Size()}
	if s.verify {
		if err := Verify(path); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("backup verification failed: %w", err)
		}
		result.Verified = true
	}
	result.Duration = s.now().Sub(start)

	s.mu.Lock()
	s.lastBackup = s.now()
	s.mu.Unlock()

	removed, err := Prune(s.dir, s.policy, s.now())
	if err != nil {
		s.log.Warn("failed to apply retention policy", "error", err)
	}
	if len(removed) > 0 {
		s.log.Debug("pruned old backups", "count", len(removed))
	}

	return result, nil
}

// List returns the stored backups, newest first.
func (s *Service) List() ([]Info, error) {
	return List(s.dir)
}

// Health reports when backups last ran and how much space they use.
// Backups taken by another process count through their file names.
func (s *Service) Health() (*Health, error) {
	s.mu.Lock()
	last, next := s.lastBackup, s.nextBackup
	s.mu.Unlock()

	backups, err := List(s.dir)
	if err != nil {
		return nil, err
	}
	used, err := diskUsage(s.dir)
	if err != nil {
		return nil, err
	}
	// A fresh process only knows earlier backups from the directory.
	if last.IsZero() && len(backups) > 0 {
		last = backups[0].Timestamp
	}

	h := &Health{
		Status:        "healthy",
		LastBackup:    last,
		NextBackup:    next,
		TotalBackups:  len(backups),
		DiskSpaceUsed: used,
	}
	switch since := s.now().Sub(last); {
	case last.IsZero():
		h.Message = "No backups yet"
	case since > 2*s.interval:
		h.Status = "warning"
		h.Message = fmt.Sprintf("Backup overdue by %v", (since - s.interval).Round(time.Minute))
	default:
		h.Message = fmt.Sprintf("Last backup: %v ago", since.Round(time.Minute))
	}
	return h, nil
}
