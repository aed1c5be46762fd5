package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	then := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, then, then))
}

func TestPurgeWorkDir(t *testing.T) {
	t.Run("removes files older than max age", func(t *testing.T) {
		dir := t.TempDir()
		old := filepath.Join(dir, "XACPHY1012024-V000001_100.mp4")
		recent := filepath.Join(dir, "XACPHY1012024-V000002_100.mp4")
		require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
		require.NoError(t, os.WriteFile(recent, []byte("new"), 0o644))
		age(t, old, 25*time.Hour)
		age(t, recent, time.Hour)

		count, err := PurgeWorkDir(newTestLogger(), dir, DefaultPurgeAge)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.NoFileExists(t, old)
		assert.FileExists(t, recent)
	})

	t.Run("removes stale directories", func(t *testing.T) {
		dir := t.TempDir()
		sub := filepath.Join(dir, "abc")
		require.NoError(t, os.Mkdir(sub, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "abc.ts"), []byte("x"), 0o644))
		age(t, sub, 48*time.Hour)

		count, err := PurgeWorkDir(newTestLogger(), dir, DefaultPurgeAge)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.NoDirExists(t, sub)
	})

	t.Run("keeps dotfiles", func(t *testing.T) {
		dir := t.TempDir()
		lock := filepath.Join(dir, ".heal.lock")
		require.NoError(t, os.WriteFile(lock, nil, 0o644))
		age(t, lock, 48*time.Hour)

		count, err := PurgeWorkDir(newTestLogger(), dir, DefaultPurgeAge)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.FileExists(t, lock)
	})

	t.Run("missing directory", func(t *testing.T) {
		count, err := PurgeWorkDir(newTestLogger(), filepath.Join(t.TempDir(), "nope"), DefaultPurgeAge)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestRecoverInterruptedJobs(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Job{}, &models.JobHistory{}))

	jobs := repository.NewJobRepository(db)
	ctx := context.Background()

	deliver := models.NewDeliverJob("V1", "desktop_mp4", "aaaa")
	require.NoError(t, jobs.Create(ctx, deliver))
	deliver.MarkRunning("old-runner-0")
	require.NoError(t, jobs.Update(ctx, deliver))

	encode := models.NewEncodeJob("encode", "worker.encode", "V1", "mobile_low", "bbbb")
	require.NoError(t, jobs.Create(ctx, encode))
	encode.MarkRunning("remote-worker")
	require.NoError(t, jobs.Update(ctx, encode))

	count, err := RecoverInterruptedJobs(ctx, newTestLogger(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := jobs.GetByID(ctx, deliver.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Empty(t, got.LockedBy)

	got, err = jobs.GetByID(ctx, encode.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
}
