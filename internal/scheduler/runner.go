package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// RunnerConfig sizes the local worker pool and its housekeeping.
type RunnerConfig struct {
	WorkerCount  int
	PollInterval time.Duration
	JobTimeout   time.Duration
	// LockTimeout is how long a job, local or claimed by a remote encode
	// worker, may stay running before it is considered abandoned.
	LockTimeout time.Duration
	WorkerID    string
	// CleanupAge is how long finished jobs and their history are kept.
	CleanupAge    time.Duration
	CleanupEnable bool
	// MaintenanceInterval is the period of the stale-lock and cleanup sweep.
	MaintenanceInterval time.Duration
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "vidpipe"
	}
	return RunnerConfig{
		WorkerCount:         2,
		PollInterval:        5 * time.Second,
		JobTimeout:          30 * time.Minute,
		LockTimeout:         45 * time.Minute,
		WorkerID:            fmt.Sprintf("%s-%d", host, os.Getpid()),
		CleanupAge:          7 * 24 * time.Hour,
		CleanupEnable:       true,
		MaintenanceInterval: 5 * time.Minute,
	}
}

// RunnerConfigFrom overlays the runner section of the application config on
// the defaults.
func RunnerConfigFrom(cfg config.RunnerConfig) RunnerConfig {
	rc := DefaultRunnerConfig()
	rc.WorkerCount = cfg.Workers
	rc.PollInterval = cfg.PollInterval
	rc.JobTimeout = cfg.JobTimeout
	rc.LockTimeout = cfg.LockTimeout
	rc.CleanupAge = cfg.CleanupAge.Duration()
	return rc
}

// RunnerStatus is a point-in-time view of the runner.
type RunnerStatus struct {
	Running      bool          `json:"running"`
	WorkerCount  int           `json:"worker_count"`
	WorkerID     string        `json:"worker_id"`
	PendingJobs  int64         `json:"pending_jobs"`
	RunningJobs  int64         `json:"running_jobs"`
	PollInterval time.Duration `json:"poll_interval"`
}

// Runner executes deliver, heal and purge jobs from the local queue with a
// fixed pool of workers. Encode tasks live on other queues and are only
// touched here when a remote worker abandons its claim.
type Runner struct {
	jobs     repository.JobRepository
	executor *Executor
	logger   *slog.Logger
	cfg      RunnerConfig

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner with the default configuration.
func NewRunner(jobs repository.JobRepository, executor *Executor) *Runner {
	return &Runner{
		jobs:     jobs,
		executor: executor,
		logger:   slog.Default(),
		cfg:      DefaultRunnerConfig(),
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = observability.WithComponent(logger, "runner")
	return r
}

// WithConfig applies the non-zero fields of cfg. CleanupEnable is always
// taken as given.
func (r *Runner) WithConfig(cfg RunnerConfig) *Runner {
	if cfg.WorkerCount > 0 {
		r.cfg.WorkerCount = cfg.WorkerCount
	}
	if cfg.PollInterval > 0 {
		r.cfg.PollInterval = cfg.PollInterval
	}
	if cfg.JobTimeout > 0 {
		r.cfg.JobTimeout = cfg.JobTimeout
	}
	if cfg.LockTimeout > 0 {
		r.cfg.LockTimeout = cfg.LockTimeout
	}
	if cfg.WorkerID != "" {
		r.cfg.WorkerID = cfg.WorkerID
	}
	if cfg.CleanupAge > 0 {
		r.cfg.CleanupAge = cfg.CleanupAge
	}
	if cfg.MaintenanceInterval > 0 {
		r.cfg.MaintenanceInterval = cfg.MaintenanceInterval
	}
	r.cfg.CleanupEnable = cfg.CleanupEnable
	return r
}

// Start launches the workers and the maintenance loop. The runner stops when
// ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return errors.New("runner already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	for i := range r.cfg.WorkerCount {
		id := fmt.Sprintf("%s-%d", r.cfg.WorkerID, i)
		r.spawn(func(ctx context.Context) { r.work(ctx, id) })
	}
	r.spawn(r.maintain)

	r.logger.Info("runner started",
		slog.Int("workers", r.cfg.WorkerCount),
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.String("worker_id", r.cfg.WorkerID))
	return nil
}

func (r *Runner) spawn(fn func(ctx context.Context)) {
	ctx := r.ctx
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()

	r.mu.Lock()
	r.ctx, r.cancel = nil, nil
	r.mu.Unlock()
	r.logger.Info("runner stopped")
}

// work polls the local queue. A worker that just ran a job polls again
// immediately; an idle or failing one waits PollInterval.
func (r *Runner) work(ctx context.Context, workerID string) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		ran, err := r.runOne(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("error processing job",
				slog.String("worker_id", workerID),
				slog.String("error", err.Error()))
		}
		if ran && err == nil {
			timer.Reset(0)
		} else {
			timer.Reset(r.cfg.PollInterval)
		}
	}
}

// runOne acquires and executes at most one job.
func (r *Runner) runOne(ctx context.Context, workerID string) (bool, error) {
	job, err := r.jobs.AcquireJob(ctx, workerID, models.LocalQueue)
	if err != nil {
		return false, fmt.Errorf("acquiring job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	r.logger.Debug("acquired job",
		slog.String("worker_id", workerID),
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)))

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()
	if err := r.executor.Execute(jobCtx, job); err != nil {
		return true, fmt.Errorf("executing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (r *Runner) maintain(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.releaseStale(ctx, time.Now()); err != nil {
				r.logger.Error("stale job recovery failed", slog.String("error", err.Error()))
			}
			if r.cfg.CleanupEnable {
				r.prune(ctx, time.Now())
			}
		}
	}
}

// releaseStale fails every job locked for longer than LockTimeout. Local jobs
// with attempts left are rescheduled; encode tasks are not, since the next
// heal cycle re-dispatches whatever is still missing.
func (r *Runner) releaseStale(ctx context.Context, now time.Time) (int, error) {
	running, err := r.jobs.GetRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing running jobs: %w", err)
	}

	cutoff := now.Add(-r.cfg.LockTimeout)
	released := 0
	for _, job := range running {
		if job.LockedAt == nil || !job.LockedAt.Before(cutoff) {
			continue
		}
		lockedBy, lockedAt := job.LockedBy, *job.LockedAt

		job.MarkFailed(fmt.Errorf("abandoned by %s, locked since %s", lockedBy, lockedAt.Format(time.RFC3339)))
		if job.Type != models.JobTypeEncode {
			job.ScheduleRetry()
		}
		if err := r.jobs.Update(ctx, job); err != nil {
			r.logger.Error("failed to release stale job",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
			continue
		}

		r.logger.Warn("released stale job",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.String("locked_by", lockedBy),
			slog.Time("locked_at", lockedAt),
			slog.String("status", string(job.Status)))
		released++
	}
	return released, nil
}

// prune deletes finished jobs and history older than CleanupAge.
func (r *Runner) prune(ctx context.Context, now time.Time) {
	cutoff := now.Add(-r.cfg.CleanupAge).UTC()

	jobs, err := r.jobs.DeleteCompleted(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to prune finished jobs", slog.String("error", err.Error()))
	}
	history, err := r.jobs.DeleteHistory(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to prune job history", slog.String("error", err.Error()))
	}
	if jobs > 0 || history > 0 {
		r.logger.Info("pruned job table",
			slog.Int64("jobs", jobs),
			slog.Int64("history", history))
	}
}

// GetStatus reports whether the runner is up and how busy the queues are.
func (r *Runner) GetStatus() RunnerStatus {
	r.mu.RLock()
	ctx := r.ctx
	r.mu.RUnlock()

	st := RunnerStatus{
		WorkerCount:  r.cfg.WorkerCount,
		WorkerID:     r.cfg.WorkerID,
		PollInterval: r.cfg.PollInterval,
	}
	if ctx == nil || ctx.Err() != nil {
		return st
	}
	st.Running = true

	if _, n, err := r.jobs.List(ctx, repository.JobFilter{Status: models.JobStatusPending, Queue: models.LocalQueue, Limit: 1}); err == nil {
		st.PendingJobs = n
	}
	if _, n, err := r.jobs.List(ctx, repository.JobFilter{Status: models.JobStatusRunning, Limit: 1}); err == nil {
		st.RunningJobs = n
	}
	return st
}
