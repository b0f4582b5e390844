package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var refTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// writeBackup creates an empty backup file named for the given age.
func writeBackup(t *testing.T, dir string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, fileName(refTime.Add(-age)))
	if err := os.WriteFile(path, []byte("sqlite"), 0o600); err != nil {
		t.Fatalf("failed to create backup file: %v", err)
	}
	return path
}

func TestFileName_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 678901000, time.UTC)
	got, ok := parseFileName(fileName(ts))
	if !ok {
		t.Fatalf("parseFileName rejected %q", fileName(ts))
	}
	if !got.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, got)
	}

	for _, name := range []string{"backup.db", "recall-.db", "recall-20260102.db", "recall-20260102-030405.000000.txt"} {
		if _, ok := parseFileName(name); ok {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestList_Empty(t *testing.T) {
	backups, err := List(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups, got %d", len(backups))
	}
}

func TestList_MissingDirectory(t *testing.T) {
	if _, err := List(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestList_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"readme.txt", "other.db"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, fileName(refTime)), 0o750); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	want := writeBackup(t, dir, time.Hour)

	backups, err := List(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
	if backups[0].Path != want {
		t.Errorf("expected %s, got %s", want, backups[0].Path)
	}
	if backups[0].Size != int64(len("sqlite")) {
		t.Errorf("expected size %d, got %d", len("sqlite"), backups[0].Size)
	}
}

func TestList_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	old := writeBackup(t, dir, 48*time.Hour)
	newest := writeBackup(t, dir, time.Minute)
	middle := writeBackup(t, dir, 3*time.Hour)

	backups, err := List(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []string{backups[0].Path, backups[1].Path, backups[2].Path}
	want := []string{newest, middle, old}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestPrune_KeepsNewestPerTier(t *testing.T) {
	dir := t.TempDir()

	var hourly []string
	for i := 1; i <= 5; i++ {
		hourly = append(hourly, writeBackup(t, dir, time.Duration(i)*time.Hour))
	}
	daily := []string{
		writeBackup(t, dir, 2*24*time.Hour),
		writeBackup(t, dir, 3*24*time.Hour),
	}
	weekly := writeBackup(t, dir, 10*24*time.Hour)
	ancient := writeBackup(t, dir, 400*24*time.Hour)

	removed, err := Prune(dir, RetentionPolicy{Hourly: 3, Daily: 1, Weekly: 1, Monthly: 1}, refTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 4 {
		t.Errorf("expected 4 removed, got %d: %v", len(removed), removed)
	}

	mustExist := []string{hourly[0], hourly[1], hourly[2], daily[0], weekly}
	mustBeGone := []string{hourly[3], hourly[4], daily[1], ancient}
	for _, p := range mustExist {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to be kept: %v", filepath.Base(p), err)
		}
	}
	for _, p := range mustBeGone {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", filepath.Base(p))
		}
	}
}

func TestPrune_ZeroTierRemovesAll(t *testing.T) {
	dir := t.TempDir()
	writeBackup(t, dir, 2*24*time.Hour)
	writeBackup(t, dir, 3*24*time.Hour)
	keep := writeBackup(t, dir, time.Hour)

	if _, err := Prune(dir, RetentionPolicy{Hourly: 1}, refTime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backups, err := List(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 1 || backups[0].Path != keep {
		t.Errorf("expected only %s to remain, got %v", keep, backups)
	}
}

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	writeBackup(t, dir, time.Hour)
	writeBackup(t, dir, 2*time.Hour)

	used, err := diskUsage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != int64(2*len("sqlite")) {
		t.Errorf("expected %d bytes, got %d", 2*len("sqlite"), used)
	}
}
