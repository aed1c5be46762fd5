// Package scheduler provides job scheduling and execution for vidpipe.
// Recurring heal and purge jobs are queued from cron expressions; the
// runner drains the local queue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
)

// LocalEnqueuer queues jobs for the in-process runner.
type LocalEnqueuer interface {
	EnqueueLocal(ctx context.Context, jobType models.JobType, videoID, profile string) (*models.Job, error)
}

// Schedule pairs a job type with a 5-field cron expression.
type Schedule struct {
	JobType models.JobType
	Cron    string
}

// Scheduler queues recurring jobs on their cron schedules.
type Scheduler struct {
	mu sync.Mutex

	queue  LocalEnqueuer
	logger *slog.Logger

	// cron parser for validating/parsing cron expressions
	parser cron.Parser
	cron   *cron.Cron

	schedules []Schedule
	running   bool
}

// NewScheduler creates a new scheduler.
func NewScheduler(queue LocalEnqueuer, schedules ...Schedule) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		queue:     queue,
		logger:    slog.Default(),
		parser:    parser,
		cron:      cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		schedules: schedules,
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = observability.WithComponent(logger, "scheduler")
	return s
}

// Start registers every schedule and starts the cron loop. Empty cron
// expressions are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	for _, sched := range s.schedules {
		if sched.Cron == "" {
			continue
		}
		schedule, err := s.parser.Parse(sched.Cron)
		if err != nil {
			return fmt.Errorf("invalid cron expression for %s: %w", sched.JobType, err)
		}
		jobType := sched.JobType
		s.cron.Schedule(schedule, cron.FuncJob(func() {
			if _, err := s.ScheduleImmediate(ctx, jobType); err != nil {
				s.logger.ErrorContext(ctx, "failed to queue scheduled job",
					slog.String("type", string(jobType)),
					slog.String("error", err.Error()),
				)
			}
		}))
		s.logger.InfoContext(ctx, "job scheduled",
			slog.String("type", string(jobType)),
			slog.String("cron", sched.Cron),
			slog.Time("next_run", schedule.Next(time.Now().UTC())),
		)
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop stops the cron loop and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// ScheduleImmediate queues a one-off job of the given type, returning the
// pending one if it is already queued.
func (s *Scheduler) ScheduleImmediate(ctx context.Context, jobType models.JobType) (*models.Job, error) {
	job, err := s.queue.EnqueueLocal(ctx, jobType, "", "")
	if err != nil {
		return nil, fmt.Errorf("queueing %s: %w", jobType, err)
	}
	s.logger.DebugContext(ctx, "queued job",
		slog.String("type", string(jobType)),
		slog.String("job_id", job.ID.String()),
	)
	return job, nil
}

// ParseCron validates a cron expression and returns the next run time.
func (s *Scheduler) ParseCron(expr string) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(time.Now()), nil
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}
