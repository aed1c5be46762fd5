package pipeline

import (
	"context"
	"errors"
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

// DeliveryOutcome is the result of delivering one finished encode.
type DeliveryOutcome struct {
	VideoID  string
	Profile  string
	URL      string
	Recorded bool
	// Skipped is set when the course no longer wants the profile delivered.
	Skipped bool
	Status  models.VideoStatus
	Err     error
}

// DeliveryCoordinator takes a worker's output from the deliverable bucket to
// its destination, records it and reconciles the video's status.
type DeliveryCoordinator struct {
	videos      repository.VideoRepository
	profiles    repository.EncodeProfileRepository
	artifacts   repository.ArtifactRepository
	resolver    *ProfileResolver
	tracker     *CompletionTracker
	validator   Validator
	prober      Prober
	storage     Storage
	liveness    LivenessChecker
	reporter    *StatusReporter
	platform    PlatformUploader
	transcripts *TranscriptCoordinator
	storageCfg  config.StorageConfig
	profileCfg  config.ProfilesConfig
	now         func() time.Time
	logger      *slog.Logger
}

// NewDeliveryCoordinator creates a delivery coordinator. The platform
// uploader and transcript coordinator are optional.
func NewDeliveryCoordinator(
	videos repository.VideoRepository,
	profiles repository.EncodeProfileRepository,
	artifacts repository.ArtifactRepository,
	resolver *ProfileResolver,
	tracker *CompletionTracker,
	validator Validator,
	prober Prober,
	storage Storage,
	liveness LivenessChecker,
	reporter *StatusReporter,
	storageCfg config.StorageConfig,
	profileCfg config.ProfilesConfig,
) *DeliveryCoordinator {
	return &DeliveryCoordinator{
		videos:     videos,
		profiles:   profiles,
		artifacts:  artifacts,
		resolver:   resolver,
		tracker:    tracker,
		validator:  validator,
		prober:     prober,
		storage:    storage,
		liveness:   liveness,
		reporter:   reporter,
		storageCfg: storageCfg,
		profileCfg: profileCfg,
		now:        models.Now,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (c *DeliveryCoordinator) WithLogger(logger *slog.Logger) *DeliveryCoordinator {
	c.logger = observability.WithComponent(logger, "delivery")
	return c
}

// WithPlatform sets the third-party platform uploader.
func (c *DeliveryCoordinator) WithPlatform(p PlatformUploader) *DeliveryCoordinator {
	c.platform = p
	return c
}

// WithTranscripts enables transcription kickoff for desktop deliveries.
func (c *DeliveryCoordinator) WithTranscripts(t *TranscriptCoordinator) *DeliveryCoordinator {
	c.transcripts = t
	return c
}

// HLSKey is the object key of a video's HLS master playlist.
func HLSKey(videoID string) string {
	return videoID + "/" + videoID + ".m3u8"
}

// Deliver processes the finished encode of profile for a video. Failures are
// logged and returned in the outcome; the video is left for the next heal
// cycle to re-dispatch.
func (c *DeliveryCoordinator) Deliver(ctx context.Context, videoID, profile string) DeliveryOutcome {
	out := DeliveryOutcome{VideoID: videoID, Profile: profile}
	logger := observability.WithVideo(c.logger, videoID).With(slog.String("profile", profile))

	var err error
	defer observability.TimedOperationWithError(ctx, logger, "deliver", &err)()

	out, err = c.deliver(ctx, logger, out)
	out.Err = err
	return out
}

func (c *DeliveryCoordinator) deliver(ctx context.Context, logger *slog.Logger, out DeliveryOutcome) (DeliveryOutcome, error) {
	video, err := c.videos.GetByExternalID(ctx, out.VideoID)
	if err != nil {
		return out, fmt.Errorf("loading video: %w", err)
	}
	if video == nil {
		return out, configErr("deliver", models.ErrVideoNotFound)
	}
	out.Status = video.Status

	profile, err := c.profiles.GetByName(ctx, out.Profile)
	if err != nil {
		return out, fmt.Errorf("loading profile: %w", err)
	}
	if profile == nil {
		return out, configErr("deliver", fmt.Errorf("%w: %s", models.ErrProfileNotFound, out.Profile))
	}

	nick := profile.DestinationNick()
	if profile.Name == c.profileCfg.HLSProfile {
		nick = models.DestinationPassThrough
	}

	var (
		url   string
		meta  Metadata
		local string
	)

	switch nick {
	case models.DestinationPassThrough:
		url = c.storage.URL(c.storageCfg.EndpointBucket, HLSKey(video.ExternalID))
		meta = Metadata{Duration: video.OrigDuration, Bitrate: "0"}

	case models.DestinationDirect, models.DestinationYouTube:
		if nick == models.DestinationYouTube && video.Course != nil && !video.Course.YouTubeProc && !video.Course.ReviewProc {
			logger.InfoContext(ctx, "course has no platform delivery enabled, skipping")
			out.Skipped = true
			return out, nil
		}

		local, meta, err = c.intake(ctx, logger, video, profile)
		if err != nil {
			return out, err
		}
		defer os.Remove(local)

		if nick == models.DestinationYouTube {
			if c.platform == nil {
				return out, configErr("deliver", fmt.Errorf("%w: no platform uploader for %s", ErrNoRoute, nick))
			}
			if err := c.platform.Upload(ctx, HandOff{
				Video:     video,
				Course:    video.Course,
				LocalPath: local,
				FileName:  filepath.Base(local),
			}); err != nil {
				return out, transientErr("platform hand-off", err)
			}
			logger.InfoContext(ctx, "handed off to platform")
			return out, nil
		}

		url, err = c.storage.Upload(ctx, local, c.storageCfg.EndpointBucket, profile.ArtifactName(video.ExternalID))
		if err != nil {
			return out, transientErr("upload artifact", err)
		}

	default:
		return out, configErr("deliver", fmt.Errorf("%w: destination %q", ErrNoRoute, nick))
	}

	if c.liveness != nil {
		if err := c.liveness.Check(ctx, url); err != nil {
			return out, transientErr("liveness check", fmt.Errorf("%w: %s: %w", ErrUnreachable, url, err))
		}
	}
	out.URL = url

	if profile.Name == c.profileCfg.ReviewProfile {
		c.removeDeliverable(ctx, logger, local, profile.ArtifactName(video.ExternalID))
		logger.InfoContext(ctx, "review copy published", slog.String("url", url))
		return out, nil
	}

	artifact := &models.DeliveredArtifact{
		VideoID:     video.ID,
		ProfileID:   profile.ID,
		URL:         url,
		Duration:    meta.Duration,
		Bitrate:     meta.Bitrate,
		Size:        meta.Filesize,
		Checksum:    meta.Checksum,
		DeliveredAt: c.now().UTC(),
	}
	if err := c.artifacts.Create(ctx, artifact); err != nil {
		return out, fmt.Errorf("recording artifact: %w", err)
	}
	out.Recorded = true
	logger.InfoContext(ctx, "artifact recorded", slog.String("url", url))

	c.removeDeliverable(ctx, logger, local, profile.ArtifactName(video.ExternalID))

	status, err := c.reconcile(ctx, logger, video)
	if err != nil {
		logger.WarnContext(ctx, "failed to reconcile status", slog.String("error", err.Error()))
	}
	out.Status = status

	if profile.Name == c.profileCfg.DesktopProfile && video.ProcessTranscription && c.transcripts != nil {
		if err := c.transcripts.Kickoff(ctx, video, url); err != nil {
			logger.ErrorContext(ctx, "transcription kickoff failed",
				slog.String("error", err.Error()),
				slog.String("kind", KindOf(err).String()),
			)
		}
	}

	return out, nil
}

// intake fetches the worker output into the work directory, marks the video
// in progress and validates the file.
func (c *DeliveryCoordinator) intake(ctx context.Context, logger *slog.Logger, video *models.Video, profile *models.EncodeProfile) (string, Metadata, error) {
	name := profile.ArtifactName(video.ExternalID)

	exists, err := c.storage.Exists(ctx, c.storageCfg.DeliverableBucket, name)
	if err != nil {
		return "", Metadata{}, transientErr("check deliverable", err)
	}
	if !exists {
		return "", Metadata{}, transientErr("check deliverable", fmt.Errorf("%w: %s", ErrArtifactMissing, name))
	}

	if err := os.MkdirAll(c.storageCfg.WorkDir, 0o755); err != nil {
		return "", Metadata{}, fmt.Errorf("creating work directory: %w", err)
	}
	local := filepath.Join(c.storageCfg.WorkDir, name)
	if err := c.storage.Fetch(ctx, c.storageCfg.DeliverableBucket, name, local); err != nil {
		return "", Metadata{}, transientErr("fetch deliverable", err)
	}

	if _, err := c.videos.UpdateStatusUnless(ctx, video.ID, models.VideoStatusProgress, models.TerminalVideoStatuses...); err != nil {
		logger.WarnContext(ctx, "failed to mark video in progress", slog.String("error", err.Error()))
	}

	fail := func(err error) (string, Metadata, error) {
		os.Remove(local)
		return "", Metadata{}, err
	}

	meta, err := c.prober.Probe(ctx, local)
	if err != nil {
		return fail(validationErr("probe artifact", fmt.Errorf("%w: %w", ErrInvalidArtifact, err)))
	}

	if profile.Name != c.profileCfg.ReviewProfile && profile.Name != c.profileCfg.YouTubeProfile {
		ok, err := c.validator.Validate(ctx, local, false, video.OrigDuration)
		if err != nil {
			return fail(fmt.Errorf("validating artifact: %w", err))
		}
		if !ok {
			return fail(validationErr("validate artifact", fmt.Errorf("%w: %s", ErrInvalidArtifact, name)))
		}
	}
	return local, meta, nil
}

func (c *DeliveryCoordinator) removeDeliverable(ctx context.Context, logger *slog.Logger, local, name string) {
	if local == "" || c.storageCfg.DeliverableBucket == c.storageCfg.EndpointBucket {
		return
	}
	if err := c.storage.Delete(ctx, c.storageCfg.DeliverableBucket, name); err != nil {
		logger.WarnContext(ctx, "failed to remove deliverable copy", slog.String("error", err.Error()))
	}
}

// reconcile recomputes the aggregate status from the completion tracker and
// pushes it to the system of record. Terminal statuses are left alone.
func (c *DeliveryCoordinator) reconcile(ctx context.Context, logger *slog.Logger, video *models.Video) (models.VideoStatus, error) {
	current, err := c.videos.GetByID(ctx, video.ID)
	if err != nil {
		return video.Status, fmt.Errorf("reloading video: %w", err)
	}
	if current != nil {
		video.Status = current.Status
	}
	if video.Status.IsTerminal() {
		logger.DebugContext(ctx, "video is terminal, status unchanged", slog.String("status", string(video.Status)))
		return video.Status, nil
	}

	expected, err := c.resolver.Resolve(ctx, video.Course, video)
	if err != nil {
		return video.Status, err
	}
	ready, err := c.tracker.IsReady(ctx, video.ExternalID, expected)
	if err != nil {
		return video.Status, err
	}

	status, external := models.VideoStatusProgress, models.ExternalStatusTranscodeActive
	if ready {
		status, external = models.VideoStatusComplete, models.ExternalStatusFileComplete
	}

	changed, err := c.videos.UpdateStatusUnless(ctx, video.ID, status, models.TerminalVideoStatuses...)
	if err != nil {
		return video.Status, fmt.Errorf("updating status: %w", err)
	}
	if changed {
		video.Status = status
	}
	if ready {
		if err := c.videos.MarkTransEnd(ctx, video.ID, c.now().UTC()); err != nil {
			logger.WarnContext(ctx, "failed to record end time", slog.String("error", err.Error()))
		}
	}

	if err := c.reporter.Report(ctx, video, external); err != nil {
		return video.Status, err
	}
	return video.Status, nil
}

// IsArtifactMissing reports whether a delivery failed because the worker
// output was not found.
func IsArtifactMissing(err error) bool {
	return errors.Is(err, ErrArtifactMissing)
}
