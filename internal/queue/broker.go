// Package queue is the database-backed task broker. Encode tasks are rows
// on worker queues that remote workers claim over HTTP; local jobs (deliver,
// heal_cycle, purge_workdir, retrieve_translations) are rows on
// models.LocalQueue drained by the in-process runner.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// Errors returned by the broker.
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrNotClaimed    = errors.New("job is not claimed by a worker")
	ErrNotEncodeTask = errors.New("job is not an encode task")
)

// Broker implements pipeline.TaskBroker over the jobs table.
type Broker struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

// NewBroker creates a broker.
func NewBroker(jobs repository.JobRepository) *Broker {
	return &Broker{jobs: jobs, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (b *Broker) WithLogger(logger *slog.Logger) *Broker {
	b.logger = observability.WithComponent(logger, "queue")
	return b
}

// Enqueue publishes an encode task. An unclaimed task for the same video
// and profile is reused with the new job id rather than duplicated.
func (b *Broker) Enqueue(ctx context.Context, msg pipeline.TaskMessage, queue string) error {
	existing, err := b.jobs.FindDuplicatePending(ctx, models.JobTypeEncode, msg.VideoID, msg.Profile)
	if err != nil {
		return err
	}
	if existing != nil && existing.IsPending() && existing.Queue == queue {
		existing.DispatchID = msg.JobID
		existing.TaskName = msg.Task
		if err := b.jobs.Update(ctx, existing); err != nil {
			return fmt.Errorf("refreshing queued task: %w", err)
		}
		b.logger.DebugContext(ctx, "encode task already queued",
			slog.String("video_id", msg.VideoID),
			slog.String("profile", msg.Profile),
			slog.String("queue", queue),
		)
		return nil
	}

	job := models.NewEncodeJob(queue, msg.Task, msg.VideoID, msg.Profile, msg.JobID)
	if err := b.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("publishing encode task: %w", err)
	}
	b.logger.InfoContext(ctx, "encode task published",
		slog.String("video_id", msg.VideoID),
		slog.String("profile", msg.Profile),
		slog.String("queue", queue),
		slog.String("dispatch_id", msg.JobID),
	)
	return nil
}

// Claim hands the next due encode task on queue to a worker, or nil when
// the queue is empty.
func (b *Broker) Claim(ctx context.Context, workerID, queue string) (*models.Job, error) {
	job, err := b.jobs.AcquireJob(ctx, workerID, queue)
	if err != nil {
		return nil, fmt.Errorf("claiming from %s: %w", queue, err)
	}
	if job != nil {
		b.logger.InfoContext(ctx, "encode task claimed",
			slog.String("job_id", job.ID.String()),
			slog.String("worker", workerID),
			slog.String("video_id", job.VideoID),
			slog.String("profile", job.Profile),
		)
	}
	return job, nil
}

// Complete records a worker's result for a claimed encode task. On success
// a deliver job is queued locally and returned.
func (b *Broker) Complete(ctx context.Context, id models.ULID, workerErr error) (*models.Job, error) {
	job, err := b.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Type != models.JobTypeEncode {
		return nil, ErrNotEncodeTask
	}
	if !job.IsRunning() {
		return nil, ErrNotClaimed
	}

	if workerErr != nil {
		job.MarkFailed(workerErr)
	} else {
		job.MarkCompleted("encoded")
	}
	if err := b.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("recording task result: %w", err)
	}
	b.recordHistory(ctx, job)

	if workerErr != nil {
		b.logger.WarnContext(ctx, "encode task failed",
			slog.String("job_id", job.ID.String()),
			slog.String("video_id", job.VideoID),
			slog.String("profile", job.Profile),
			slog.String("error", workerErr.Error()),
		)
		return nil, nil
	}
	return b.enqueueDeliver(ctx, job)
}

func (b *Broker) enqueueDeliver(ctx context.Context, encode *models.Job) (*models.Job, error) {
	existing, err := b.jobs.FindDuplicatePending(ctx, models.JobTypeDeliver, encode.VideoID, encode.Profile)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsPending() {
		return existing, nil
	}
	job := models.NewDeliverJob(encode.VideoID, encode.Profile, encode.DispatchID)
	if err := b.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("queueing deliver job: %w", err)
	}
	return job, nil
}

// EnqueueLocal queues a job for the in-process runner, returning the
// already-pending job when there is one.
func (b *Broker) EnqueueLocal(ctx context.Context, jobType models.JobType, videoID, profile string) (*models.Job, error) {
	existing, err := b.jobs.FindDuplicatePending(ctx, jobType, videoID, profile)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsPending() {
		return existing, nil
	}

	job := &models.Job{
		Type:    jobType,
		Queue:   models.LocalQueue,
		VideoID: videoID,
		Profile: profile,
		Status:  models.JobStatusPending,
	}
	if err := b.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("queueing %s job: %w", jobType, err)
	}
	b.logger.DebugContext(ctx, "local job queued",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(jobType)),
		slog.String("video_id", videoID),
		slog.String("profile", profile),
	)
	return job, nil
}

func (b *Broker) recordHistory(ctx context.Context, job *models.Job) {
	if err := b.jobs.CreateHistory(ctx, job.History()); err != nil {
		b.logger.ErrorContext(ctx, "failed to record job history",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
