package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// JobHandler defines the interface for handling specific job types.
type JobHandler interface {
	// Execute runs the job and returns a result string or error.
	Execute(ctx context.Context, job *models.Job) (string, error)
}

// Deliverer delivers one finished encode.
type Deliverer interface {
	Deliver(ctx context.Context, videoID, profile string) pipeline.DeliveryOutcome
}

// Healer runs reconciliation cycles.
type Healer interface {
	Window() (from, to time.Time)
	Cycle(ctx context.Context, from, to time.Time) (pipeline.HealReport, error)
}

// TranslationRetriever collects finished translations.
type TranslationRetriever interface {
	RetrieveTranslations(ctx context.Context) (pipeline.TranslationReport, error)
}

// WorkDirPurger removes stale work files.
type WorkDirPurger func(ctx context.Context) (int, error)

// DeliverHandler runs deliver jobs queued when a worker finishes an encode.
type DeliverHandler struct {
	delivery Deliverer
}

// NewDeliverHandler creates a handler for deliver jobs.
func NewDeliverHandler(delivery Deliverer) *DeliverHandler {
	return &DeliverHandler{delivery: delivery}
}

// Execute runs a deliver job.
func (h *DeliverHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	out := h.delivery.Deliver(ctx, job.VideoID, job.Profile)
	if out.Err != nil {
		return "", out.Err
	}
	switch {
	case out.Skipped:
		return fmt.Sprintf("skipped %s for %s", job.Profile, job.VideoID), nil
	case out.Recorded:
		return fmt.Sprintf("delivered %s for %s, video %s", job.Profile, job.VideoID, out.Status), nil
	default:
		return fmt.Sprintf("handed off %s for %s", job.Profile, job.VideoID), nil
	}
}

// HealCycleHandler runs heal cycles under the heal lock.
type HealCycleHandler struct {
	healer Healer
	lock   *HealLock
	purge  WorkDirPurger
	logger *slog.Logger
}

// NewHealCycleHandler creates a handler for heal_cycle jobs. The work
// directory is purged after each cycle when purge is set.
func NewHealCycleHandler(healer Healer, lock *HealLock, purge WorkDirPurger) *HealCycleHandler {
	return &HealCycleHandler{healer: healer, lock: lock, purge: purge, logger: slog.Default()}
}

// WithLogger sets the logger.
func (h *HealCycleHandler) WithLogger(logger *slog.Logger) *HealCycleHandler {
	h.logger = observability.WithComponent(logger, "heal")
	return h
}

// Execute runs a heal cycle job.
func (h *HealCycleHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	var report pipeline.HealReport
	ran, err := h.lock.Run(func() error {
		from, to := h.healer.Window()
		var cerr error
		report, cerr = h.healer.Cycle(ctx, from, to)
		return cerr
	})
	if err != nil {
		return "", err
	}
	if !ran {
		return "heal cycle already running elsewhere", nil
	}

	if h.purge != nil {
		if _, err := h.purge(ctx); err != nil {
			h.logger.WarnContext(ctx, "work directory purge failed", slog.String("error", err.Error()))
		}
	}

	return fmt.Sprintf("scanned %d videos: %d complete, %d corrupt, %d re-dispatched (%d tasks), %d failed",
		report.Scanned, report.Completed, report.Corrupted, report.Redispatch, report.Enqueued, report.Failed), nil
}

// PurgeHandler runs purge_workdir jobs.
type PurgeHandler struct {
	purge WorkDirPurger
}

// NewPurgeHandler creates a handler for purge_workdir jobs.
func NewPurgeHandler(purge WorkDirPurger) *PurgeHandler {
	return &PurgeHandler{purge: purge}
}

// Execute runs a purge job.
func (h *PurgeHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	removed, err := h.purge(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("purged %d work files", removed), nil
}

// RetrieveTranslationsHandler runs retrieve_translations jobs.
type RetrieveTranslationsHandler struct {
	retriever TranslationRetriever
}

// NewRetrieveTranslationsHandler creates a handler for retrieve_translations jobs.
func NewRetrieveTranslationsHandler(retriever TranslationRetriever) *RetrieveTranslationsHandler {
	return &RetrieveTranslationsHandler{retriever: retriever}
}

// Execute runs a translation retrieval pass.
func (h *RetrieveTranslationsHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	report, err := h.retriever.RetrieveTranslations(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("retrieved %d translations for %d videos, %d failed",
		report.Ready, report.Videos, report.Failed), nil
}

// Executor dispatches jobs to the appropriate handlers.
type Executor struct {
	handlers map[models.JobType]JobHandler
	jobRepo  repository.JobRepository
	logger   *slog.Logger
}

// NewExecutor creates a new job executor.
func NewExecutor(jobRepo repository.JobRepository) *Executor {
	return &Executor{
		handlers: make(map[models.JobType]JobHandler),
		jobRepo:  jobRepo,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = observability.WithComponent(logger, "executor")
	return e
}

// RegisterHandler registers a handler for a job type.
func (e *Executor) RegisterHandler(jobType models.JobType, handler JobHandler) {
	e.handlers[jobType] = handler
}

// Execute runs a job and updates its status. Validation failures and
// configuration gaps are not retried.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	handler, ok := e.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	logger := e.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
	)
	if job.VideoID != "" {
		logger = observability.WithVideo(logger, job.VideoID)
	}
	logger.InfoContext(ctx, "executing job", slog.String("profile", job.Profile))

	result, err := handler.Execute(ctx, job)

	if err != nil {
		kind := pipeline.KindOf(err)
		logger.ErrorContext(ctx, "job failed",
			slog.String("error", err.Error()),
			slog.String("kind", kind.String()),
		)

		job.MarkFailed(err)

		if job.CanRetry() && kind != pipeline.KindValidation && kind != pipeline.KindConfigurationGap {
			job.ScheduleRetry()
			logger.InfoContext(ctx, "job scheduled for retry",
				slog.Int("attempt", job.AttemptCount),
				slog.Time("next_run", job.NextRunAt.UTC()),
			)
		}
	} else {
		logger.InfoContext(ctx, "job completed", slog.String("result", result))
		job.MarkCompleted(result)
	}

	if err := e.jobRepo.Update(ctx, job); err != nil {
		logger.ErrorContext(ctx, "failed to update job status", slog.String("error", err.Error()))
		return fmt.Errorf("updating job status: %w", err)
	}

	if job.IsFinished() {
		if err := e.jobRepo.CreateHistory(ctx, job.History()); err != nil {
			logger.ErrorContext(ctx, "failed to create job history", slog.String("error", err.Error()))
		}
	}

	return nil
}
