package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/pkg/types"
)

// fakeClock returns successive instants one second apart.
func fakeClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newFileStore(t *testing.T, path string) *sqlite.MemoryStore {
	t.Helper()
	store, err := sqlite.NewMemoryStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

func newService(t *testing.T, snap Snapshotter, dir string) *Service {
	t.Helper()
	svc, err := NewService(snap, config.BackupConfig{
		Dir:        dir,
		Interval:   time.Hour,
		Verify:     true,
		KeepHourly: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	svc.now = fakeClock(refTime)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(nil, config.BackupConfig{Dir: t.TempDir()}, nil); err == nil {
		t.Error("expected error for nil snapshotter")
	}
	store := newFileStore(t, filepath.Join(t.TempDir(), "recall.db"))
	defer store.Close()
	if _, err := NewService(store, config.BackupConfig{}, nil); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestBackupNow_SnapshotsAndRestores(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "recall.db")

	store := newFileStore(t, dbPath)
	memory := &types.Memory{
		ID:              "m1",
		UserID:          "alice",
		Content:         "walked the dog by the river",
		Source:          types.SourceTyped,
		ConfidenceScore: 0.95,
		Status:          types.StatusPending,
	}
	if err := store.Create(ctx, memory, nil, ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	svc := newService(t, store, filepath.Join(tmp, "backups"))
	result, err := svc.BackupNow(ctx)
	if err != nil {
		t.Fatalf("BackupNow failed: %v", err)
	}
	if !result.Verified {
		t.Error("expected verified backup")
	}
	if result.Size == 0 {
		t.Error("expected non-empty backup")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	restored := filepath.Join(tmp, "restored.db")
	if err := Restore(result.Path, restored); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	got := newFileStore(t, restored)
	defer got.Close()
	m, err := got.Get(ctx, "alice", "m1")
	if err != nil {
		t.Fatalf("Get after restore failed: %v", err)
	}
	if m.Content != memory.Content {
		t.Errorf("expected content %q, got %q", memory.Content, m.Content)
	}
}

func TestBackupNow_AppliesRetention(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, filepath.Join(t.TempDir(), "recall.db"))
	defer store.Close()

	svc := newService(t, store, t.TempDir())
	for i := 0; i < 4; i++ {
		if _, err := svc.BackupNow(ctx); err != nil {
			t.Fatalf("BackupNow #%d failed: %v", i, err)
		}
	}

	backups, err := svc.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("expected 2 backups after retention, got %d", len(backups))
	}
}

type failingSnapshotter struct{}

func (failingSnapshotter) Snapshot(context.Context, string) error {
	return errors.New("disk full")
}

func TestBackupNow_SnapshotError(t *testing.T) {
	svc := newService(t, failingSnapshotter{}, t.TempDir())
	if _, err := svc.BackupNow(context.Background()); err == nil {
		t.Fatal("expected snapshot error")
	}
	h, err := svc.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Message != "No backups yet" {
		t.Errorf("unexpected health message %q", h.Message)
	}
}

func TestHealth_Overdue(t *testing.T) {
	store := newFileStore(t, filepath.Join(t.TempDir(), "recall.db"))
	defer store.Close()

	svc := newService(t, store, t.TempDir())
	if _, err := svc.BackupNow(context.Background()); err != nil {
		t.Fatalf("BackupNow failed: %v", err)
	}

	h, err := svc.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "healthy" || h.TotalBackups != 1 {
		t.Errorf("expected healthy with 1 backup, got %+v", h)
	}

	svc.now = func() time.Time { return refTime.Add(5 * time.Hour) }
	h, err = svc.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "warning" {
		t.Errorf("expected warning, got %q", h.Status)
	}
}

func TestRestore_RejectsCorruptBackup(t *testing.T) {
	tmp := t.TempDir()
	bad := filepath.Join(tmp, fileName(refTime))
	if err := os.WriteFile(bad, []byte("not a database"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	target := filepath.Join(tmp, "recall.db")
	if err := os.WriteFile(target, []byte("keep me"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := Restore(bad, target); err == nil {
		t.Fatal("expected error restoring corrupt backup")
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "keep me" {
		t.Errorf("target should be untouched, got %q (%v)", data, err)
	}
}

// writeLiveDatabase fakes a database with uncheckpointed WAL files.
func writeLiveDatabase(t *testing.T, dbPath string) {
	t.Helper()
	for suffix, data := range map[string]string{"": "live db", "-wal": "live wal", "-shm": "live shm"} {
		if err := os.WriteFile(dbPath+suffix, []byte(data), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", dbPath+suffix, err)
		}
	}
}

// closedStoreFile creates a valid, checkpointed database to restore from.
func closedStoreFile(t *testing.T, path string) string {
	t.Helper()
	store := newFileStore(t, path)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func TestRestore_FailedCopyKeepsWAL(t *testing.T) {
	tmp := t.TempDir()
	src := closedStoreFile(t, filepath.Join(tmp, "snapshot.db"))
	dbPath := filepath.Join(tmp, "recall.db")
	writeLiveDatabase(t, dbPath)

	orig := copyBackup
	copyBackup = func(_, dst string) error {
		_ = os.WriteFile(dst, []byte("half"), 0o600)
		return errors.New("disk full")
	}
	t.Cleanup(func() { copyBackup = orig })

	err := Restore(src, dbPath)
	if err == nil {
		t.Fatal("expected restore to fail")
	}
	if !strings.Contains(err.Error(), "rolled back") {
		t.Errorf("unexpected error: %v", err)
	}

	for suffix, want := range map[string]string{"": "live db", "-wal": "live wal", "-shm": "live shm"} {
		data, err := os.ReadFile(dbPath + suffix)
		if err != nil || string(data) != want {
			t.Errorf("%s: got %q (%v), want %q", suffix, data, err, want)
		}
		if _, err := os.Stat(dbPath + ".pre-restore" + suffix); !os.IsNotExist(err) {
			t.Errorf("set-aside file %s left behind", dbPath+".pre-restore"+suffix)
		}
	}
}

func TestRestore_SuccessDropsOldWAL(t *testing.T) {
	tmp := t.TempDir()
	src := closedStoreFile(t, filepath.Join(tmp, "snapshot.db"))
	dbPath := filepath.Join(tmp, "recall.db")
	writeLiveDatabase(t, dbPath)

	if err := Restore(src, dbPath); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if err := Verify(dbPath); err != nil {
		t.Errorf("restored database does not verify: %v", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if data, err := os.ReadFile(dbPath + suffix); err == nil && strings.HasPrefix(string(data), "live") {
			t.Errorf("stale %s survived restore", suffix)
		}
	}
	for _, suffix := range sidecars {
		if _, err := os.Stat(dbPath + ".pre-restore" + suffix); !os.IsNotExist(err) {
			t.Errorf("set-aside file %s left behind", dbPath+".pre-restore"+suffix)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := newFileStore(t, filepath.Join(t.TempDir(), "recall.db"))
	defer store.Close()
	svc := newService(t, store, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
