package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appliedProfiles struct {
	mu  sync.Mutex
	got []config.RankingConfig
}

func (a *appliedProfiles) apply(rc config.RankingConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, rc)
	return nil
}

func (a *appliedProfiles) last() (config.RankingConfig, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.got) == 0 {
		return config.RankingConfig{}, false
	}
	return a.got[len(a.got)-1], true
}

func TestRankingWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_context: 5\n"), 0o600))

	applied := &appliedProfiles{}
	w, err := config.NewRankingWatcher(path, applied.apply, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("max_context: 3\n"), 0o600))

	require.Eventually(t, func() bool {
		rc, ok := applied.last()
		return ok && rc.MaxContext == 3
	}, 2*time.Second, 10*time.Millisecond)

	rc, _ := applied.last()
	assert.Equal(t, 50, rc.CandidateLimit, "keys absent from the file keep defaults")
	assert.Equal(t, path, rc.File)
}

func TestRankingWatcher_InvalidProfileSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_context: 80\n"), 0o600))

	applied := &appliedProfiles{}
	w, err := config.NewRankingWatcher(path, applied.apply, nil)
	require.NoError(t, err)

	assert.Error(t, w.Reload(), "max_context above candidate_limit")
	_, ok := applied.last()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("weights: [not, a, map]\n"), 0o600))
	assert.Error(t, w.Reload())

	require.NoError(t, os.WriteFile(path, []byte("max_context: 2\n"), 0o600))
	require.NoError(t, w.Reload())
	rc, ok := applied.last()
	require.True(t, ok)
	assert.Equal(t, 2, rc.MaxContext)
}

func TestRankingWatcher_OtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ranking.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_context: 5\n"), 0o600))

	applied := &appliedProfiles{}
	w, err := config.NewRankingWatcher(path, applied.apply, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("max_context: 1\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	w.Stop()
	w.Stop()

	_, ok := applied.last()
	assert.False(t, ok)
}

func TestNewRankingWatcher_RequiresArguments(t *testing.T) {
	_, err := config.NewRankingWatcher("", func(config.RankingConfig) error { return nil }, nil)
	assert.Error(t, err)
	_, err = config.NewRankingWatcher("ranking.yaml", nil, nil)
	assert.Error(t, err)
}
