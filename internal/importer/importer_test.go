package importer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/importer"
	"github.com/scrypster/recall/pkg/types"
)

type fakeIngester struct {
	mu       sync.Mutex
	captures []types.Capture
	failOn   string
	depth    atomic.Int64
}

func (f *fakeIngester) Ingest(_ context.Context, c types.Capture) (*types.Memory, error) {
	if c.Title == f.failOn {
		return nil, errors.New("queue full")
	}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return &types.Memory{ID: uuid.NewString(), UserID: c.UserID}, nil
}

func (f *fakeIngester) QueueLength() int { return int(f.depth.Load()) }

func (f *fakeIngester) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.captures {
		out = append(out, c.Title)
	}
	return out
}

func writeVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"alpha.md":            "---\ntitle: Alpha\n---\nLinks to [[Beta]].",
		"notes/beta.markdown": "# Beta\n\nBack to [[Alpha]] and [[Gamma]].",
		"empty.md":            "   \n",
		"readme.txt":          "not markdown",
		".obsidian/config.md": "hidden",
		"broken.md":           "---\ntags: [oops\n---\nbody",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestImport_Vault(t *testing.T) {
	ing := &fakeIngester{}
	imp := importer.New(ing)

	result, err := imp.Import(context.Background(), "alice", writeVault(t))
	require.NoError(t, err)

	assert.Equal(t, 4, result.FilesFound)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.LinksFound)
	assert.Len(t, result.MemoryIDs, 2)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken.md")

	assert.Equal(t, []string{"Alpha", "Beta"}, ing.titles())
	for _, c := range ing.captures {
		assert.Equal(t, "alice", c.UserID)
		assert.Equal(t, types.SourceExternal, c.Source)
	}
	assert.Equal(t, []string{"notes"}, ing.captures[1].Tags)
}

func TestImport_IngestErrorCounted(t *testing.T) {
	ing := &fakeIngester{failOn: "Alpha"}
	imp := importer.New(ing)

	result, err := imp.Import(context.Background(), "alice", writeVault(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Failed)
}

func TestImport_Validation(t *testing.T) {
	imp := importer.New(&fakeIngester{})
	ctx := context.Background()

	_, err := imp.Import(ctx, "", t.TempDir())
	assert.Error(t, err)

	_, err = imp.Import(ctx, "alice", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = imp.StartImport(ctx, "alice", file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestStartImport_ProgressAndResult(t *testing.T) {
	ing := &fakeIngester{}
	imp := importer.New(ing)
	ctx := context.Background()

	id, err := imp.StartImport(ctx, "alice", writeVault(t))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result, err := imp.Wait(waitCtx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	progress, ok := imp.Progress(id)
	require.True(t, ok)
	assert.Equal(t, importer.StatusComplete, progress.Status)
	assert.Equal(t, 4, progress.FilesTotal)
	assert.Equal(t, 4, progress.FilesDone)
	assert.Equal(t, "Imported 2 of 4 notes", progress.Message)
	assert.Same(t, result, imp.Result(id))
}

func TestStartImport_UnknownJob(t *testing.T) {
	imp := importer.New(&fakeIngester{})
	_, ok := imp.Progress("nope")
	assert.False(t, ok)
	assert.Nil(t, imp.Result("nope"))
	_, err := imp.Wait(context.Background(), "nope")
	assert.Error(t, err)
}

func TestStartImport_FailedWhenNothingImported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.md"), []byte("---\na: [\n---\n"), 0o600))
	imp := importer.New(&fakeIngester{})

	id, err := imp.StartImport(context.Background(), "alice", dir)
	require.NoError(t, err)
	_, err = imp.Wait(context.Background(), id)
	require.NoError(t, err)

	progress, _ := imp.Progress(id)
	assert.Equal(t, importer.StatusFailed, progress.Status)
}

func TestImport_WaitsForQueue(t *testing.T) {
	ing := &fakeIngester{}
	ing.depth.Store(5)
	imp := importer.New(ing, importer.WithMaxQueue(5), importer.WithPollInterval(5*time.Millisecond))

	dir := writeVault(t)
	done := make(chan *importer.Result, 1)
	go func() {
		result, _ := imp.Import(context.Background(), "alice", dir)
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ing.titles())

	ing.depth.Store(0)
	select {
	case result := <-done:
		assert.Equal(t, 2, result.Imported)
	case <-time.After(5 * time.Second):
		t.Fatal("import did not resume after the queue drained")
	}
}

func TestImport_CancelledWhileWaiting(t *testing.T) {
	ing := &fakeIngester{}
	ing.depth.Store(10)
	imp := importer.New(ing, importer.WithMaxQueue(1), importer.WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := imp.Import(ctx, "alice", writeVault(t))
	require.NoError(t, err)
	assert.Zero(t, result.Imported)
	assert.Contains(t, result.Errors, "import cancelled")
}
