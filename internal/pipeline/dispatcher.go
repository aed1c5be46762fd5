package pipeline

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/jmylchreest/vidpipe/internal/retry"
)

// NewJobID returns a short identifier for an encode task: the first ten hex
// characters of a time-based UUID.
func NewJobID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		id = uuid.New()
	}
	return hex.EncodeToString(id[:])[:10]
}

// DefaultPublishTimeout bounds one enqueue attempt when none is configured.
const DefaultPublishTimeout = 20 * time.Second

// Outcome is the result of publishing one encode task.
type Outcome struct {
	VideoID  string
	Profile  string
	JobID    string
	Queue    string
	Enqueued bool
	Err      error
}

// queuedProtected lists statuses a successful dispatch must not move back to Queue.
var queuedProtected = append([]models.VideoStatus{
	models.VideoStatusProgress,
	models.VideoStatusComplete,
	models.VideoStatusFileComplete,
}, models.TerminalVideoStatuses...)

// Dispatcher publishes encode tasks to the broker.
type Dispatcher struct {
	broker TaskBroker
	videos repository.VideoRepository
	cfg    config.QueueConfig
	policy retry.Policy
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher using the configured publish policy.
func NewDispatcher(broker TaskBroker, videos repository.VideoRepository, cfg config.QueueConfig) *Dispatcher {
	return &Dispatcher{
		broker: broker,
		videos: videos,
		cfg:    cfg,
		policy: retry.Linear(cfg.PublishAttempts, cfg.PublishBackoffStep.Duration(), cfg.PublishBackoffMax.Duration()),
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = observability.WithComponent(logger, "dispatcher")
	return d
}

// WithPolicy overrides the publish retry policy.
func (d *Dispatcher) WithPolicy(p retry.Policy) *Dispatcher {
	d.policy = p
	return d
}

// QueueFor picks the broker queue for a video by its original file size.
func (d *Dispatcher) QueueFor(video *models.Video) string {
	if d.cfg.LargefileThreshold > 0 && video.OrigFilesize > d.cfg.LargefileThreshold.Int64() {
		return d.cfg.LargefileQueue
	}
	return d.cfg.DefaultQueue
}

// Dispatch publishes one task for (video, profile). On success the video
// moves to Queue unless it has progressed further; on failure its status is
// left alone for the next heal cycle.
func (d *Dispatcher) Dispatch(ctx context.Context, video *models.Video, profile, jobID string) Outcome {
	out := Outcome{
		VideoID: video.ExternalID,
		Profile: profile,
		JobID:   jobID,
		Queue:   d.QueueFor(video),
	}
	msg := TaskMessage{
		Task:    d.cfg.TaskName,
		VideoID: video.ExternalID,
		Profile: profile,
		JobID:   jobID,
	}

	logger := observability.WithVideo(d.logger, video.ExternalID).With(
		slog.String("profile", profile),
		slog.String("job_id", jobID),
		slog.String("queue", out.Queue),
	)

	timeout := d.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	err := d.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := d.broker.Enqueue(actx, msg, out.Queue)
		if err != nil {
			logger.WarnContext(ctx, "enqueue attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return err
	})
	if err != nil {
		out.Err = transientErr("enqueue encode task", err)
		logger.ErrorContext(ctx, "failed to enqueue encode task", slog.String("error", err.Error()))
		return out
	}
	out.Enqueued = true

	if _, err := d.videos.UpdateStatusUnless(ctx, video.ID, models.VideoStatusQueue, queuedProtected...); err != nil {
		logger.WarnContext(ctx, "failed to mark video queued", slog.String("error", err.Error()))
	}

	logger.InfoContext(ctx, "encode task enqueued")
	return out
}

// DispatchAll publishes one task per profile, each with a fresh job id.
func (d *Dispatcher) DispatchAll(ctx context.Context, video *models.Video, profiles ProfileSet) []Outcome {
	outcomes := make([]Outcome, 0, len(profiles))
	for _, profile := range profiles.Sorted() {
		outcomes = append(outcomes, d.Dispatch(ctx, video, profile, NewJobID()))
	}
	return outcomes
}

// Enqueued counts the successful outcomes.
func Enqueued(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Enqueued {
			n++
		}
	}
	return n
}
