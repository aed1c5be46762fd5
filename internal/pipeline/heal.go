package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// Verdict is what a heal pass decided to do with a video.
type Verdict string

const (
	VerdictSkip       Verdict = "skip"
	VerdictDuplicate  Verdict = "duplicate"
	VerdictComplete   Verdict = "complete"
	VerdictCorrupt    Verdict = "corrupt"
	VerdictRedispatch Verdict = "redispatch"
)

// skippedStatuses are never healed.
var skippedStatuses = map[models.VideoStatus]bool{
	models.VideoStatusCorrupt:      true,
	models.VideoStatusReviewReject: true,
	models.VideoStatusReviewHold:   true,
}

// Fault is the difference between what a video should have and what it has.
type Fault struct {
	// Profiles still lacking a delivered artifact, review excluded.
	Profiles       ProfileSet
	Verdict        Verdict
	ExternalStatus models.ExternalStatus
}

// HealResult is the outcome of healing one video.
type HealResult struct {
	VideoID  string
	Fault    Fault
	Outcomes []Outcome
	Err      error
}

// HealReport summarises a heal cycle.
type HealReport struct {
	From       time.Time
	To         time.Time
	Scanned    int
	Skipped    int
	Duplicates int
	Completed  int
	Corrupted  int
	Redispatch int
	Enqueued   int
	Failed     int
	Results    []HealResult
}

// HealEngine periodically reconciles expected against delivered profiles and
// re-dispatches whatever is missing.
type HealEngine struct {
	videos     repository.VideoRepository
	artifacts  repository.ArtifactRepository
	resolver   *ProfileResolver
	tracker    *CompletionTracker
	dispatcher *Dispatcher
	reporter   *StatusReporter
	cfg        config.HealConfig
	profiles   config.ProfilesConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewHealEngine creates a heal engine.
func NewHealEngine(
	videos repository.VideoRepository,
	artifacts repository.ArtifactRepository,
	resolver *ProfileResolver,
	tracker *CompletionTracker,
	dispatcher *Dispatcher,
	reporter *StatusReporter,
	cfg config.HealConfig,
	profiles config.ProfilesConfig,
) *HealEngine {
	return &HealEngine{
		videos:     videos,
		artifacts:  artifacts,
		resolver:   resolver,
		tracker:    tracker,
		dispatcher: dispatcher,
		reporter:   reporter,
		cfg:        cfg,
		profiles:   profiles,
		now:        models.Now,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (h *HealEngine) WithLogger(logger *slog.Logger) *HealEngine {
	h.logger = observability.WithComponent(logger, "heal")
	return h
}

// WithClock overrides the time source.
func (h *HealEngine) WithClock(now func() time.Time) *HealEngine {
	h.now = now
	return h
}

// DetermineFault works out what a video is missing and what should be done
// about it. It changes nothing.
func (h *HealEngine) DetermineFault(ctx context.Context, video *models.Video) (Fault, error) {
	if !video.Active || skippedStatuses[video.Status] {
		return Fault{Profiles: NewProfileSet(), Verdict: VerdictSkip}, nil
	}
	if video.Status == models.VideoStatusYoutubeDuplicate {
		return Fault{
			Profiles:       NewProfileSet(),
			Verdict:        VerdictDuplicate,
			ExternalStatus: models.ExternalStatusDuplicate,
		}, nil
	}
	if video.Course == nil {
		return Fault{}, configErr("determine fault", models.ErrCourseNotFound)
	}

	perVideo, err := h.resolver.Resolve(ctx, video.Course, video)
	if err != nil {
		return Fault{}, err
	}
	uncompleted, err := h.tracker.Remaining(ctx, video.ExternalID, perVideo)
	if err != nil {
		return Fault{}, err
	}
	expected, err := h.resolver.Resolve(ctx, video.Course, nil)
	if err != nil {
		return Fault{}, err
	}
	uncompleted.Remove(h.profiles.ReviewProfile)

	if len(uncompleted) == 0 {
		external, ok := video.TranscriptStatus.ExternalStatus()
		if !ok {
			external = models.ExternalStatusFileComplete
		}
		return Fault{Profiles: uncompleted, Verdict: VerdictComplete, ExternalStatus: external}, nil
	}

	corrupt, err := h.longTermCorrupt(ctx, video, expected, uncompleted)
	if err != nil {
		return Fault{}, err
	}
	if corrupt {
		return Fault{Profiles: uncompleted, Verdict: VerdictCorrupt, ExternalStatus: models.ExternalStatusFileCorrupt}, nil
	}

	external := models.ExternalStatusTranscodeQueue
	if video.Status.IsComplete() {
		external = models.ExternalStatusFileComplete
	}
	return Fault{Profiles: uncompleted, Verdict: VerdictRedispatch, ExternalStatus: external}, nil
}

// longTermCorrupt flags videos that never produced a single non-HLS output
// within the retry barrier. The cardinality test is kept exactly as
// uncompleted == expected(without hls) + 1.
func (h *HealEngine) longTermCorrupt(ctx context.Context, video *models.Video, expected, uncompleted ProfileSet) (bool, error) {
	if len(expected.Without(h.profiles.HLSProfile)) != len(uncompleted)-1 || len(expected) <= 1 {
		return false, nil
	}
	if video.TransStart == nil || h.now().Sub(*video.TransStart) <= h.cfg.RetryBarrier.Duration() {
		return false, nil
	}
	hasNonHLS, err := h.artifacts.HasNonHLS(ctx, video.ID, h.profiles.HLSProfile)
	if err != nil {
		return false, fmt.Errorf("checking artifacts: %w", err)
	}
	return !hasNonHLS, nil
}

// HealVideo determines and repairs the fault of one video.
func (h *HealEngine) HealVideo(ctx context.Context, video *models.Video) HealResult {
	res := HealResult{VideoID: video.ExternalID}
	logger := observability.WithVideo(h.logger, video.ExternalID)

	fault, err := h.DetermineFault(ctx, video)
	if err != nil {
		res.Err = err
		return res
	}
	res.Fault = fault

	switch fault.Verdict {
	case VerdictSkip:
		logger.DebugContext(ctx, "video not eligible for healing",
			slog.String("status", string(video.Status)),
			slog.Bool("active", video.Active),
		)

	case VerdictDuplicate:
		res.Err = h.reporter.Report(ctx, video, fault.ExternalStatus)

	case VerdictComplete:
		changed, err := h.videos.UpdateStatusUnless(ctx, video.ID, models.VideoStatusComplete, models.TerminalVideoStatuses...)
		if err != nil {
			res.Err = fmt.Errorf("marking complete: %w", err)
			return res
		}
		if changed {
			video.Status = models.VideoStatusComplete
			if err := h.videos.MarkTransEnd(ctx, video.ID, h.now().UTC()); err != nil {
				logger.WarnContext(ctx, "failed to record end time", slog.String("error", err.Error()))
			}
			logger.InfoContext(ctx, "video complete")
		}
		res.Err = h.reporter.Report(ctx, video, fault.ExternalStatus)

	case VerdictCorrupt:
		swapped, err := h.videos.MarkCorruptIfStatus(ctx, video.ID, video.Status)
		if err != nil {
			res.Err = fmt.Errorf("marking corrupt: %w", err)
			return res
		}
		if !swapped {
			logger.InfoContext(ctx, "status changed since scan, corruption not applied")
			res.Fault.Verdict = VerdictSkip
			return res
		}
		video.Status = models.VideoStatusCorrupt
		video.Active = false
		if err := h.videos.MarkTransEnd(ctx, video.ID, h.now().UTC()); err != nil {
			logger.WarnContext(ctx, "failed to record end time", slog.String("error", err.Error()))
		}
		logger.WarnContext(ctx, "video marked long-term corrupt",
			slog.Any("missing", fault.Profiles.Sorted()),
		)
		res.Err = h.reporter.Report(ctx, video, fault.ExternalStatus)

	case VerdictRedispatch:
		if err := h.reporter.Report(ctx, video, fault.ExternalStatus); err != nil {
			logger.WarnContext(ctx, "failed to report heal status", slog.String("error", err.Error()))
		}
		res.Outcomes = h.dispatcher.DispatchAll(ctx, video, fault.Profiles)
		logger.InfoContext(ctx, "missing profiles re-dispatched",
			slog.Any("profiles", fault.Profiles.Sorted()),
			slog.Int("enqueued", Enqueued(res.Outcomes)),
		)
	}
	return res
}

// HealByID heals one video by external identifier.
func (h *HealEngine) HealByID(ctx context.Context, videoID string) (HealResult, error) {
	video, err := h.videos.GetByExternalID(ctx, videoID)
	if err != nil {
		return HealResult{}, fmt.Errorf("loading video: %w", err)
	}
	if video == nil {
		return HealResult{}, models.ErrVideoNotFound
	}
	return h.HealVideo(ctx, video), nil
}

// ReencodeOptions narrows a forced re-encode.
type ReencodeOptions struct {
	// Profiles replaces the resolved profile set when non-empty.
	Profiles []string
	// Overencode dispatches profiles that already have a delivered artifact.
	Overencode bool
}

// Reencode dispatches encodes for one video outside the heal cycle. Status
// exclusions do not apply. Transcription is switched off first so the
// repeated desktop delivery does not order a second transcript.
func (h *HealEngine) Reencode(ctx context.Context, videoID string, opts ReencodeOptions) (HealResult, error) {
	video, err := h.videos.GetByExternalID(ctx, videoID)
	if err != nil {
		return HealResult{}, fmt.Errorf("loading video: %w", err)
	}
	if video == nil {
		return HealResult{}, models.ErrVideoNotFound
	}
	if video.Course == nil {
		return HealResult{}, configErr("reencode", models.ErrCourseNotFound)
	}

	expected := NewProfileSet(opts.Profiles...)
	if len(expected) == 0 {
		expected, err = h.resolver.Resolve(ctx, video.Course, video)
		if err != nil {
			return HealResult{}, err
		}
	}
	tracker := h.tracker
	if opts.Overencode {
		tracker = tracker.Overencode()
	}
	remaining, err := tracker.Remaining(ctx, video.ExternalID, expected)
	if err != nil {
		return HealResult{}, err
	}

	res := HealResult{
		VideoID: video.ExternalID,
		Fault:   Fault{Profiles: remaining, Verdict: VerdictRedispatch, ExternalStatus: models.ExternalStatusTranscodeQueue},
	}
	if len(remaining) == 0 {
		res.Fault.Verdict = VerdictSkip
		return res, nil
	}

	logger := observability.WithVideo(h.logger, video.ExternalID)
	if video.ProcessTranscription {
		if err := h.videos.DisableTranscription(ctx, video.ID); err != nil {
			return res, fmt.Errorf("disabling transcription: %w", err)
		}
		video.ProcessTranscription = false
	}
	res.Outcomes = h.dispatcher.DispatchAll(ctx, video, remaining)
	logger.InfoContext(ctx, "re-encode dispatched",
		slog.Any("profiles", remaining.Sorted()),
		slog.Bool("overencode", opts.Overencode),
		slog.Int("enqueued", Enqueued(res.Outcomes)),
	)
	return res, nil
}

// Window returns the scan window for a cycle starting now.
func (h *HealEngine) Window() (from, to time.Time) {
	return h.cfg.HealWindow(h.now().UTC())
}

// Cycle heals every video whose processing started inside (from, to). A
// failure or panic on one video is logged and the scan moves on.
func (h *HealEngine) Cycle(ctx context.Context, from, to time.Time) (report HealReport, err error) {
	report = HealReport{From: from, To: to}
	defer observability.TimedOperationWithError(ctx, h.logger, "heal_cycle", &err)()

	videos, err := h.videos.ListInWindow(ctx, from, to)
	if err != nil {
		return report, fmt.Errorf("listing videos in window: %w", err)
	}

	for _, video := range videos {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		res := h.healOne(ctx, video)
		report.Scanned++
		report.Results = append(report.Results, res)

		if res.Err != nil {
			report.Failed++
			observability.WithVideo(h.logger, video.ExternalID).ErrorContext(ctx, "heal failed",
				slog.String("error", res.Err.Error()),
				slog.String("kind", KindOf(res.Err).String()),
			)
		}
		switch res.Fault.Verdict {
		case VerdictSkip:
			report.Skipped++
		case VerdictDuplicate:
			report.Duplicates++
		case VerdictComplete:
			report.Completed++
		case VerdictCorrupt:
			report.Corrupted++
		case VerdictRedispatch:
			report.Redispatch++
			report.Enqueued += Enqueued(res.Outcomes)
		}
	}

	h.logger.InfoContext(ctx, "heal cycle finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("completed", report.Completed),
		slog.Int("corrupted", report.Corrupted),
		slog.Int("redispatched", report.Redispatch),
		slog.Int("enqueued", report.Enqueued),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (h *HealEngine) healOne(ctx context.Context, video *models.Video) (res HealResult) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.ErrorContext(ctx, "panic while healing video",
				slog.String("video_id", video.ExternalID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = HealResult{VideoID: video.ExternalID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return h.HealVideo(ctx, video)
}
