package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/backup"
	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Engine = "sqlite"
	cfg.Storage.DataPath = t.TempDir()
	cfg.Backup.Dir = filepath.Join(cfg.Storage.DataPath, "backups")
	return cfg
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-oneshot", "-interval", "30m", "-backup-dir", "/tmp/b"})
	require.NoError(t, err)
	assert.True(t, o.oneshot)
	assert.True(t, o.verify)
	assert.Equal(t, 30*time.Minute, o.interval)
	assert.Equal(t, "/tmp/b", o.backupDir)

	_, err = parseFlags([]string{"-unknown"})
	assert.Error(t, err)
}

func TestRun_OneshotListHealthRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	log := logger.NewNop()

	var out bytes.Buffer
	require.NoError(t, run(ctx, &options{oneshot: true, verify: true}, cfg, log, &out))

	backups, err := backup.List(cfg.Backup.Dir)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	out.Reset()
	require.NoError(t, run(ctx, &options{list: true}, cfg, log, &out))
	assert.Contains(t, out.String(), "Found 1 backup(s)")
	assert.Contains(t, out.String(), backups[0].Path)

	out.Reset()
	require.NoError(t, run(ctx, &options{health: true}, cfg, log, &out))
	assert.Contains(t, out.String(), "Status: healthy")
	assert.Contains(t, out.String(), "Total Backups: 1")

	out.Reset()
	require.NoError(t, run(ctx, &options{restore: backups[0].Path}, cfg, log, &out))
	assert.Contains(t, out.String(), "Database restored successfully")
}

func TestRun_RejectsPostgres(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Engine = "postgres"

	err := run(context.Background(), &options{oneshot: true}, cfg, logger.NewNop(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "only supported for the sqlite engine")
}

func TestRun_ContinuousStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, &options{interval: time.Hour}, cfg, logger.NewNop(), &bytes.Buffer{})
	assert.NoError(t, err)
}

func TestPrintList_Empty(t *testing.T) {
	var out bytes.Buffer
	printList(&out, nil, time.Now())
	assert.Equal(t, "No backups found\n", out.String())
}

func TestPrintHealth_NeverBackedUp(t *testing.T) {
	var out bytes.Buffer
	printHealth(&out, &backup.Health{Status: "healthy", Message: "No backups yet"}, "/backups", time.Now())
	assert.Contains(t, out.String(), "Last Backup: Never")
	assert.Contains(t, out.String(), "Backup Directory: /backups")
	assert.NotContains(t, out.String(), "Next Backup")
}
