package queue

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestBroker(t *testing.T) (*Broker, repository.JobRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Job{}, &models.JobHistory{}))

	jobs := repository.NewJobRepository(db)
	return NewBroker(jobs), jobs
}

func encodeMsg(jobID string) pipeline.TaskMessage {
	return pipeline.TaskMessage{Task: "worker.encode", VideoID: "XACPHY1012024-V000001", Profile: "desktop_mp4", JobID: jobID}
}

func TestBroker_EnqueueAndClaim(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx := t.Context()

	require.NoError(t, broker.Enqueue(ctx, encodeMsg("aaaa"), "encode"))

	none, err := broker.Claim(ctx, "worker-1", "encode_largefile")
	require.NoError(t, err)
	assert.Nil(t, none)

	job, err := broker.Claim(ctx, "worker-1", "encode")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.JobTypeEncode, job.Type)
	assert.Equal(t, "aaaa", job.DispatchID)
	assert.Equal(t, "worker.encode", job.TaskName)
	assert.Equal(t, "worker-1", job.LockedBy)

	again, err := broker.Claim(ctx, "worker-2", "encode")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestBroker_EnqueueReusesUnclaimedTask(t *testing.T) {
	broker, jobs := newTestBroker(t)
	ctx := t.Context()

	require.NoError(t, broker.Enqueue(ctx, encodeMsg("aaaa"), "encode"))
	require.NoError(t, broker.Enqueue(ctx, encodeMsg("bbbb"), "encode"))

	all, total, err := jobs.List(ctx, repository.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "bbbb", all[0].DispatchID)
}

func TestBroker_EnqueueWhileClaimedAddsTask(t *testing.T) {
	broker, jobs := newTestBroker(t)
	ctx := t.Context()

	require.NoError(t, broker.Enqueue(ctx, encodeMsg("aaaa"), "encode"))
	_, err := broker.Claim(ctx, "worker-1", "encode")
	require.NoError(t, err)
	require.NoError(t, broker.Enqueue(ctx, encodeMsg("bbbb"), "encode"))

	_, total, err := jobs.List(ctx, repository.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestBroker_CompleteQueuesDelivery(t *testing.T) {
	broker, jobs := newTestBroker(t)
	ctx := t.Context()

	require.NoError(t, broker.Enqueue(ctx, encodeMsg("aaaa"), "encode"))
	claimed, err := broker.Claim(ctx, "worker-1", "encode")
	require.NoError(t, err)

	deliver, err := broker.Complete(ctx, claimed.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, deliver)
	assert.Equal(t, models.JobTypeDeliver, deliver.Type)
	assert.Equal(t, models.LocalQueue, deliver.Queue)
	assert.Equal(t, "desktop_mp4", deliver.Profile)
	assert.Equal(t, "aaaa", deliver.DispatchID)

	encode, err := jobs.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, encode.Status)

	history, total, err := jobs.GetHistory(ctx, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, models.JobStatusCompleted, history[0].Status)

	_, err = broker.Complete(ctx, claimed.ID, nil)
	assert.ErrorIs(t, err, ErrNotClaimed)
}

func TestBroker_CompleteFailure(t *testing.T) {
	broker, jobs := newTestBroker(t)
	ctx := t.Context()

	require.NoError(t, broker.Enqueue(ctx, encodeMsg("aaaa"), "encode"))
	claimed, err := broker.Claim(ctx, "worker-1", "encode")
	require.NoError(t, err)

	deliver, err := broker.Complete(ctx, claimed.ID, errors.New("ffmpeg exited 1"))
	require.NoError(t, err)
	assert.Nil(t, deliver)

	encode, err := jobs.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, encode.Status)
	assert.Equal(t, "ffmpeg exited 1", encode.LastError)

	pending, err := jobs.GetPending(ctx, models.LocalQueue)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBroker_CompleteUnknown(t *testing.T) {
	broker, _ := newTestBroker(t)
	_, err := broker.Complete(t.Context(), models.NewULID(), nil)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestBroker_EnqueueLocalDedupes(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx := t.Context()

	first, err := broker.EnqueueLocal(ctx, models.JobTypeHealCycle, "", "")
	require.NoError(t, err)
	second, err := broker.EnqueueLocal(ctx, models.JobTypeHealCycle, "", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
