package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupJobTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.Job{}, &models.JobHistory{})
	require.NoError(t, err)

	return db
}

func deliverJob(videoID, profile string, status models.JobStatus) *models.Job {
	job := models.NewDeliverJob(videoID, profile, "d"+videoID)
	job.Status = status
	return job
}

func TestJobRepo_CreateDefaultsQueue(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := &models.Job{Type: models.JobTypeHealCycle}
	require.NoError(t, repo.Create(ctx, job))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.LocalQueue, found.Queue)
	assert.Equal(t, models.JobStatusPending, found.Status)
	assert.Equal(t, 3, found.MaxAttempts)

	missing, err := repo.GetByID(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobRepo_CreateRejectsInvalid(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)

	err := repo.Create(context.Background(), &models.Job{VideoID: "X-V000001"})
	assert.ErrorIs(t, err, models.ErrJobTypeRequired)
}

func TestJobRepo_GetPending(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	now := models.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	scheduledPast := deliverJob("A-V000002", "hls", models.JobStatusScheduled)
	scheduledPast.NextRunAt = &past
	scheduledFuture := deliverJob("A-V000003", "hls", models.JobStatusScheduled)
	scheduledFuture.NextRunAt = &future

	jobs := []*models.Job{
		deliverJob("A-V000001", "hls", models.JobStatusPending),
		scheduledPast,
		scheduledFuture,
		deliverJob("A-V000004", "hls", models.JobStatusRunning),
		deliverJob("A-V000005", "hls", models.JobStatusCompleted),
		models.NewEncodeJob("encode", "worker.encode", "A-V000006", "desktop_mp4", "abc"),
	}
	for _, job := range jobs {
		require.NoError(t, repo.Create(ctx, job))
	}

	local, err := repo.GetPending(ctx, models.LocalQueue)
	require.NoError(t, err)
	require.Len(t, local, 2)

	ids := []string{local[0].VideoID, local[1].VideoID}
	assert.ElementsMatch(t, []string{"A-V000001", "A-V000002"}, ids)

	all, err := repo.GetPending(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	encode, err := repo.GetPending(ctx, "encode", "encode_largefile")
	require.NoError(t, err)
	require.Len(t, encode, 1)
	assert.Equal(t, models.JobTypeEncode, encode[0].Type)
}

func TestJobRepo_ListAndGetByVideo(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, deliverJob("A-V000001", "hls", models.JobStatusCompleted)))
	require.NoError(t, repo.Create(ctx, deliverJob("A-V000001", "desktop_mp4", models.JobStatusPending)))
	require.NoError(t, repo.Create(ctx, models.NewEncodeJob("encode", "worker.encode", "A-V000002", "hls", "abc")))

	byVideo, err := repo.GetByVideo(ctx, "A-V000001")
	require.NoError(t, err)
	assert.Len(t, byVideo, 2)

	jobs, total, err := repo.List(ctx, JobFilter{Type: models.JobTypeEncode})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, jobs, 1)
	assert.Equal(t, "A-V000002", jobs[0].VideoID)

	jobs, total, err = repo.List(ctx, JobFilter{Status: models.JobStatusPending, Queue: models.LocalQueue})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, jobs, 1)
}

func TestJobRepo_Update(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := deliverJob("A-V000001", "hls", models.JobStatusPending)
	require.NoError(t, repo.Create(ctx, job))

	job.MarkRunning("worker-1")
	require.NoError(t, repo.Update(ctx, job))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, found.Status)
	assert.Equal(t, "worker-1", found.LockedBy)

	running, err := repo.GetRunning(ctx)
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestJobRepo_DeleteCompleted(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	now := models.Now()
	oldTime := now.Add(-48 * time.Hour)
	recentTime := now.Add(-time.Hour)

	oldDone := deliverJob("A-V000001", "hls", models.JobStatusCompleted)
	oldDone.CompletedAt = &oldTime
	oldFailed := deliverJob("A-V000002", "hls", models.JobStatusFailed)
	oldFailed.CompletedAt = &oldTime
	recent := deliverJob("A-V000003", "hls", models.JobStatusCompleted)
	recent.CompletedAt = &recentTime

	for _, job := range []*models.Job{oldDone, oldFailed, recent, deliverJob("A-V000004", "hls", models.JobStatusPending)} {
		require.NoError(t, repo.Create(ctx, job))
	}

	deleted, err := repo.DeleteCompleted(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := repo.List(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestJobRepo_FindDuplicatePending(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	existing := deliverJob("A-V000001", "hls", models.JobStatusPending)
	require.NoError(t, repo.Create(ctx, existing))

	t.Run("finds duplicate", func(t *testing.T) {
		found, err := repo.FindDuplicatePending(ctx, models.JobTypeDeliver, "A-V000001", "hls")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, existing.ID, found.ID)
	})

	t.Run("different profile no duplicate", func(t *testing.T) {
		found, err := repo.FindDuplicatePending(ctx, models.JobTypeDeliver, "A-V000001", "desktop_mp4")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("different type no duplicate", func(t *testing.T) {
		found, err := repo.FindDuplicatePending(ctx, models.JobTypeEncode, "A-V000001", "hls")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestJobRepo_ReleaseJob(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	now := models.Now()
	job := deliverJob("A-V000001", "hls", models.JobStatusRunning)
	job.LockedBy = "worker-1"
	job.LockedAt = &now
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.ReleaseJob(ctx, job.ID))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, found.Status)
	assert.Empty(t, found.LockedBy)
	assert.Nil(t, found.LockedAt)
}

func TestJobRepo_History(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	now := models.Now()
	oldTime := now.Add(-48 * time.Hour)
	histories := []*models.JobHistory{
		{JobID: models.NewULID(), Type: models.JobTypeDeliver, Status: models.JobStatusCompleted, CompletedAt: &now},
		{JobID: models.NewULID(), Type: models.JobTypeDeliver, Status: models.JobStatusFailed, CompletedAt: &now},
		{JobID: models.NewULID(), Type: models.JobTypeHealCycle, Status: models.JobStatusCompleted, CompletedAt: &oldTime},
	}
	for _, h := range histories {
		require.NoError(t, repo.CreateHistory(ctx, h))
		assert.False(t, h.ID.IsZero())
	}

	t.Run("all history", func(t *testing.T) {
		results, total, err := repo.GetHistory(ctx, nil, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, results, 3)
	})

	t.Run("filtered by type", func(t *testing.T) {
		jobType := models.JobTypeDeliver
		results, total, err := repo.GetHistory(ctx, &jobType, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, results, 1)
	})

	t.Run("delete old", func(t *testing.T) {
		deleted, err := repo.DeleteHistory(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})
}

func TestJobRepo_AcquireJob(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	low := deliverJob("A-V000001", "hls", models.JobStatusPending)
	low.Priority = 1
	high := deliverJob("A-V000002", "hls", models.JobStatusPending)
	high.Priority = 5
	encode := models.NewEncodeJob("encode", "worker.encode", "A-V000003", "desktop_mp4", "abc")
	require.NoError(t, repo.Create(ctx, low))
	require.NoError(t, repo.Create(ctx, high))
	require.NoError(t, repo.Create(ctx, encode))

	acquired, err := repo.AcquireJob(ctx, "worker-1", models.LocalQueue)
	require.NoError(t, err)
	require.NotNil(t, acquired)
	assert.Equal(t, high.ID, acquired.ID)
	assert.Equal(t, models.JobStatusRunning, acquired.Status)
	assert.Equal(t, "worker-1", acquired.LockedBy)
	assert.Equal(t, 1, acquired.AttemptCount)

	acquired2, err := repo.AcquireJob(ctx, "worker-2", models.LocalQueue)
	require.NoError(t, err)
	require.NotNil(t, acquired2)
	assert.Equal(t, low.ID, acquired2.ID)

	none, err := repo.AcquireJob(ctx, "worker-3", models.LocalQueue)
	require.NoError(t, err)
	assert.Nil(t, none)

	claimed, err := repo.AcquireJob(ctx, "encoder-7", "encode")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, encode.ID, claimed.ID)
	assert.Equal(t, "abc", claimed.DispatchID)
}
