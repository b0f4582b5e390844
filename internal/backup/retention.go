package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "recall-"
	fileSuffix = ".db"
	timeLayout = "20060102-150405.000000"
)

// fileName returns the backup file name for a snapshot taken at t.
func fileName(t time.Time) string {
	return filePrefix + t.UTC().Format(timeLayout) + fileSuffix
}

// parseFileName returns the snapshot time encoded in a backup file name.
func parseFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.ParseInLocation(timeLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns the backups in dir, newest first. Files that do not follow
// the backup naming scheme are ignored.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Prune removes the backups in dir that policy does not keep, as of now.
// It returns the removed paths.
func Prune(dir string, policy RetentionPolicy, now time.Time) ([]string, error) {
	backups, err := List(dir)
	if err != nil {
		return nil, err
	}

	var tiers [4][]Info
	var doomed []string
	for _, b := range backups {
		age := now.Sub(b.Timestamp)
		switch {
		case age < 24*time.Hour:
			tiers[0] = append(tiers[0], b)
		case age < 7*24*time.Hour:
			tiers[1] = append(tiers[1], b)
		case age < 30*24*time.Hour:
			tiers[2] = append(tiers[2], b)
		case age < 365*24*time.Hour:
			tiers[3] = append(tiers[3], b)
		default:
			doomed = append(doomed, b.Path)
		}
	}

	keep := [4]int{policy.Hourly, policy.Daily, policy.Weekly, policy.Monthly}
	for i, tier := range tiers {
		if len(tier) > keep[i] {
			for _, b := range tier[keep[i]:] {
				doomed = append(doomed, b.Path)
			}
		}
	}

	var errs []error
	removed := make([]string, 0, len(doomed))
	for _, path := range doomed {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to delete some backups: %w", errors.Join(errs...))
	}
	return removed, nil
}

// diskUsage returns the total size of the backups in dir.
func diskUsage(dir string) (int64, error) {
	backups, err := List(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range backups {
		total += b.Size
	}
	return total, nil
}
