package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/jmylchreest/vidpipe/internal/val"
)

// StatusReporter keeps the system of record in step with local state.
type StatusReporter struct {
	sor       SystemOfRecord
	artifacts repository.ArtifactRepository
	profiles  config.ProfilesConfig
	logger    *slog.Logger
}

// NewStatusReporter creates a reporter. A nil system of record disables
// reporting.
func NewStatusReporter(sor SystemOfRecord, artifacts repository.ArtifactRepository, profiles config.ProfilesConfig) *StatusReporter {
	return &StatusReporter{
		sor:       sor,
		artifacts: artifacts,
		profiles:  profiles,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *StatusReporter) WithLogger(logger *slog.Logger) *StatusReporter {
	r.logger = observability.WithComponent(logger, "reporter")
	return r
}

// Enabled reports whether a system of record is configured.
func (r *StatusReporter) Enabled() bool {
	return r.sor != nil
}

// Report pushes the video, its current artifacts and status. An unknown video
// is created; a known one is updated without re-sending course runs it
// already lists and keeping renditions for profiles not delivered here.
func (r *StatusReporter) Report(ctx context.Context, video *models.Video, status models.ExternalStatus) error {
	if r.sor == nil {
		return nil
	}

	record := &val.Video{
		EdxVideoID:    video.ValID(),
		ClientVideoID: video.ClientTitle,
		Duration:      video.OrigDuration,
		Status:        string(status),
		Courses:       []val.CourseRef{},
	}
	if video.Course != nil {
		for _, run := range video.Course.CourseRunList() {
			record.Courses = append(record.Courses, val.NewCourseRef(run))
		}
	}

	encoded, reported, err := r.encodedVideos(ctx, video)
	if err != nil {
		return err
	}
	record.EncodedVideos = encoded

	// Completion pushes need at least one rendition.
	if len(encoded) == 0 && status == models.ExternalStatusFileComplete {
		r.logger.DebugContext(ctx, "skipping completion push without renditions",
			slog.String("video_id", video.ExternalID))
		return nil
	}

	existing, err := r.sor.Get(ctx, record.EdxVideoID)
	if err != nil {
		return transientErr("fetch val record", err)
	}

	if existing == nil {
		if err := r.sor.Create(ctx, record); err != nil {
			return transientErr("create val record", err)
		}
	} else {
		record.WithoutCourses(existing.CourseKeys())
		record.MergeEncoded(existing.EncodedVideos)
		if err := r.sor.Update(ctx, record.EdxVideoID, record); err != nil {
			return transientErr("update val record", err)
		}
	}

	if len(reported) > 0 {
		if err := r.artifacts.MarkReported(ctx, reported); err != nil {
			r.logger.WarnContext(ctx, "failed to flag reported artifacts",
				slog.String("video_id", video.ExternalID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.InfoContext(ctx, "val record pushed",
		slog.String("video_id", video.ExternalID),
		slog.String("val_id", record.EdxVideoID),
		slog.String("status", string(status)),
		slog.Int("encoded_videos", len(record.EncodedVideos)),
		slog.Bool("created", existing == nil),
	)
	return nil
}

// ReportTranscriptStatus patches only the transcript status.
func (r *StatusReporter) ReportTranscriptStatus(ctx context.Context, video *models.Video, status models.ExternalStatus) error {
	if r.sor == nil {
		return nil
	}
	if err := r.sor.PatchTranscriptStatus(ctx, video.ValID(), status); err != nil {
		return transientErr("patch transcript status", err)
	}
	return nil
}

// ReportTranscript registers a published transcript file for the video.
func (r *StatusReporter) ReportTranscript(ctx context.Context, video *models.Video, name, langCode string) error {
	if r.sor == nil {
		return nil
	}
	err := r.sor.CreateTranscript(ctx, &val.Transcript{
		FileFormat:   TranscriptFormat,
		VideoID:      video.ValID(),
		Name:         name,
		LanguageCode: langCode,
		Provider:     string(video.Provider),
	})
	if err != nil {
		return transientErr("create val transcript", err)
	}
	return nil
}

func (r *StatusReporter) encodedVideos(ctx context.Context, video *models.Video) ([]val.EncodedVideo, []models.ULID, error) {
	latest, err := r.artifacts.LatestByProfile(ctx, video.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading artifacts for %s: %w", video.ExternalID, err)
	}

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	var encoded []val.EncodedVideo
	var ids []models.ULID
	seen := make(map[string]bool)
	for _, name := range names {
		if name == r.profiles.ReviewProfile {
			continue
		}
		artifact := latest[name]
		for _, external := range r.profiles.ExternalProfilesFor(name) {
			if seen[external] {
				continue
			}
			seen[external] = true
			encoded = append(encoded, val.EncodedVideo{
				URL:      artifact.URL,
				FileSize: artifact.Size,
				Bitrate:  val.ParseBitrate(artifact.Bitrate),
				Profile:  external,
			})
		}
		ids = append(ids, artifact.ID)
	}
	return encoded, ids, nil
}
