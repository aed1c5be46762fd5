package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// IngestCoordinator turns a discovered source file into a recorded video and
// hands it to the dispatcher.
type IngestCoordinator struct {
	courses    repository.CourseRepository
	videos     repository.VideoRepository
	validator  Validator
	prober     Prober
	storage    Storage
	resolver   *ProfileResolver
	dispatcher *Dispatcher
	reporter   *StatusReporter
	cfg        config.StorageConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewIngestCoordinator creates an ingest coordinator.
func NewIngestCoordinator(
	courses repository.CourseRepository,
	videos repository.VideoRepository,
	validator Validator,
	prober Prober,
	storage Storage,
	resolver *ProfileResolver,
	dispatcher *Dispatcher,
	reporter *StatusReporter,
	cfg config.StorageConfig,
) *IngestCoordinator {
	return &IngestCoordinator{
		courses:    courses,
		videos:     videos,
		validator:  validator,
		prober:     prober,
		storage:    storage,
		resolver:   resolver,
		dispatcher: dispatcher,
		reporter:   reporter,
		cfg:        cfg,
		now:        models.Now,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (c *IngestCoordinator) WithLogger(logger *slog.Logger) *IngestCoordinator {
	c.logger = observability.WithComponent(logger, "ingest")
	return c
}

// Stage downloads an object from the intake bucket into the work directory
// and returns its local path.
func (c *IngestCoordinator) Stage(ctx context.Context, key string) (string, error) {
	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	dest := filepath.Join(c.cfg.WorkDir, filepath.Base(key))
	if err := c.storage.Fetch(ctx, c.cfg.IntakeBucket, key, dest); err != nil {
		return "", transientErr("fetch intake object", err)
	}
	return dest, nil
}

// Ingest records a submission and dispatches its encodes, returning the
// video's external identifier. A file that fails validation is recorded as
// Corrupt File, reported and not dispatched; that is not an error. Errors
// mean nothing usable was recorded.
func (c *IngestCoordinator) Ingest(ctx context.Context, sub models.VideoSubmission) (videoID string, err error) {
	logger := c.logger.With(slog.String("path", sub.Path()))
	defer observability.TimedOperationWithError(ctx, logger, "ingest", &err)()

	course, err := c.courses.GetByID(ctx, sub.CourseID())
	if err != nil {
		return "", fmt.Errorf("loading course: %w", err)
	}
	if course == nil {
		return "", configErr("ingest", models.ErrCourseNotFound)
	}

	if sub.StudioID() != "" {
		existing, err := c.videos.GetByStudioID(ctx, sub.StudioID())
		if err != nil {
			return "", fmt.Errorf("checking studio id: %w", err)
		}
		if existing != nil {
			logger.InfoContext(ctx, "studio id already ingested",
				slog.String("studio_id", sub.StudioID()),
				slog.String("video_id", existing.ExternalID),
			)
			return existing.ExternalID, nil
		}
	}

	valid, err := c.validator.Validate(ctx, sub.Path(), true, 0)
	if err != nil {
		return "", fmt.Errorf("validating source: %w", err)
	}

	var meta Metadata
	if valid {
		meta, err = c.prober.Probe(ctx, sub.Path())
		if err != nil {
			return "", fmt.Errorf("probing source: %w", err)
		}
	}

	seq, err := c.courses.ReserveVideoNumber(ctx, course.ID)
	if err != nil {
		return "", fmt.Errorf("reserving video number: %w", err)
	}
	videoID = course.FormatVideoID(seq)
	logger = observability.WithVideo(logger, videoID)

	video := models.NewVideoFromSubmission(sub, videoID)
	video.Course = course

	if !valid {
		return videoID, c.recordCorrupt(ctx, logger, video)
	}

	video.OrigFilesize = meta.Filesize
	if video.OrigFilesize == 0 {
		video.OrigFilesize = sub.Filesize()
	}
	video.OrigDuration = meta.Duration
	video.OrigBitrate = meta.Bitrate
	video.OrigResolution = meta.Resolution
	video.OrigChecksum = meta.Checksum
	start := c.now().UTC()
	video.TransStart = &start

	if err := c.videos.Create(ctx, video); err != nil {
		return "", fmt.Errorf("creating video: %w", err)
	}

	if err := c.reporter.Report(ctx, video, models.ExternalStatusIngest); err != nil {
		logger.WarnContext(ctx, "failed to report ingest", slog.String("error", err.Error()))
	}

	key := videoID
	if ext := sub.Extension(); ext != "" {
		key += "." + ext
	}
	if err := c.storage.Archive(ctx, sub.Path(), c.cfg.HotstoreBucket, key); err != nil {
		logger.WarnContext(ctx, "failed to archive source", slog.String("error", err.Error()))
	}

	profiles, err := c.resolver.Resolve(ctx, course, video)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve profiles", slog.String("error", err.Error()))
		return videoID, nil
	}
	if len(profiles) == 0 {
		logger.InfoContext(ctx, "no profiles resolved, awaiting review or configuration")
		return videoID, nil
	}

	outcomes := c.dispatcher.DispatchAll(ctx, video, profiles)
	logger.InfoContext(ctx, "video ingested",
		slog.Int("profiles", len(profiles)),
		slog.Int("enqueued", Enqueued(outcomes)),
	)
	return videoID, nil
}

func (c *IngestCoordinator) recordCorrupt(ctx context.Context, logger *slog.Logger, video *models.Video) error {
	video.Status = models.VideoStatusCorrupt
	video.Active = false
	if err := c.videos.Create(ctx, video); err != nil {
		return fmt.Errorf("creating corrupt video: %w", err)
	}
	logger.WarnContext(ctx, "source file failed validation")
	if err := c.reporter.Report(ctx, video, models.ExternalStatusFileCorrupt); err != nil {
		logger.WarnContext(ctx, "failed to report corrupt source", slog.String("error", err.Error()))
	}
	return nil
}

// Reingest replays a recorded video from its hotstore copy: the source is
// validated and probed again, the metadata refreshed and every resolved
// profile dispatched. The external identifier is kept. A copy that fails
// validation leaves the video Corrupt File and inactive.
func (c *IngestCoordinator) Reingest(ctx context.Context, videoID string) (outcomes []Outcome, err error) {
	logger := observability.WithVideo(c.logger, videoID)
	defer observability.TimedOperationWithError(ctx, logger, "reingest", &err)()

	video, err := c.videos.GetByExternalID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("loading video: %w", err)
	}
	if video == nil {
		return nil, models.ErrVideoNotFound
	}
	if video.Course == nil {
		return nil, configErr("reingest", models.ErrCourseNotFound)
	}
	if video.OrigExtension == "" {
		return nil, validationErr("reingest", fmt.Errorf("video %s has no recorded source extension", videoID))
	}

	key := video.ExternalID + "." + video.OrigExtension
	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	local := filepath.Join(c.cfg.WorkDir, key)
	if err := c.storage.Fetch(ctx, c.cfg.HotstoreBucket, key, local); err != nil {
		return nil, transientErr("fetch hotstore object", err)
	}
	defer os.Remove(local)

	sub := models.SubmissionFromVideo(video, local)
	valid, err := c.validator.Validate(ctx, sub.Path(), true, 0)
	if err != nil {
		return nil, fmt.Errorf("validating source: %w", err)
	}
	if !valid {
		if _, err := c.videos.UpdateStatus(ctx, video.ID, models.VideoStatusCorrupt); err != nil {
			return nil, fmt.Errorf("marking corrupt: %w", err)
		}
		if err := c.videos.SetActive(ctx, video.ID, false); err != nil {
			return nil, fmt.Errorf("deactivating video: %w", err)
		}
		video.Status = models.VideoStatusCorrupt
		video.Active = false
		logger.WarnContext(ctx, "hotstore copy failed validation")
		if err := c.reporter.Report(ctx, video, models.ExternalStatusFileCorrupt); err != nil {
			logger.WarnContext(ctx, "failed to report corrupt source", slog.String("error", err.Error()))
		}
		return nil, nil
	}

	meta, err := c.prober.Probe(ctx, sub.Path())
	if err != nil {
		return nil, fmt.Errorf("probing source: %w", err)
	}
	if meta.Filesize > 0 {
		video.OrigFilesize = meta.Filesize
	}
	video.OrigDuration = meta.Duration
	video.OrigBitrate = meta.Bitrate
	video.OrigResolution = meta.Resolution
	video.OrigChecksum = meta.Checksum
	if err := c.videos.UpdateMetadata(ctx, video); err != nil {
		return nil, fmt.Errorf("updating metadata: %w", err)
	}

	if _, err := c.videos.UpdateStatus(ctx, video.ID, models.VideoStatusIngest); err != nil {
		return nil, fmt.Errorf("resetting status: %w", err)
	}
	if err := c.videos.SetActive(ctx, video.ID, true); err != nil {
		return nil, fmt.Errorf("activating video: %w", err)
	}
	if err := c.videos.MarkTransStart(ctx, video.ID, c.now().UTC()); err != nil {
		logger.WarnContext(ctx, "failed to record start time", slog.String("error", err.Error()))
	}
	video.Status = models.VideoStatusIngest
	video.Active = true

	if err := c.reporter.Report(ctx, video, models.ExternalStatusIngest); err != nil {
		logger.WarnContext(ctx, "failed to report ingest", slog.String("error", err.Error()))
	}

	profiles, err := c.resolver.Resolve(ctx, video.Course, video)
	if err != nil {
		return nil, err
	}
	outcomes = c.dispatcher.DispatchAll(ctx, video, profiles)
	logger.InfoContext(ctx, "video re-ingested",
		slog.Int("profiles", len(profiles)),
		slog.Int("enqueued", Enqueued(outcomes)),
	)
	return outcomes, nil
}
