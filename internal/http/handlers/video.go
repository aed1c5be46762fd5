package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// ProfileResolver computes the profiles a video should end up with.
type ProfileResolver interface {
	Resolve(ctx context.Context, course *models.Course, video *models.Video) (pipeline.ProfileSet, error)
}

// CompletionTracker reports which expected profiles are still missing.
type CompletionTracker interface {
	Remaining(ctx context.Context, videoID string, expected pipeline.ProfileSet) (pipeline.ProfileSet, error)
}

// VideoHealer heals a single video on demand.
type VideoHealer interface {
	HealByID(ctx context.Context, videoID string) (pipeline.HealResult, error)
}

// VideoHandler serves video status and on-demand healing.
type VideoHandler struct {
	videos   repository.VideoRepository
	resolver ProfileResolver
	tracker  CompletionTracker
	healer   VideoHealer
	logger   *slog.Logger
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(videos repository.VideoRepository, resolver ProfileResolver, tracker CompletionTracker, healer VideoHealer) *VideoHandler {
	return &VideoHandler{
		videos:   videos,
		resolver: resolver,
		tracker:  tracker,
		healer:   healer,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (h *VideoHandler) WithLogger(logger *slog.Logger) *VideoHandler {
	h.logger = logger
	return h
}

// Register registers the video routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      "GET",
		Path:        "/api/v1/videos",
		Summary:     "List videos",
		Description: "Returns videos, newest first, optionally filtered by status",
		Tags:        []string{"Videos"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getVideo",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}",
		Summary:     "Get video",
		Description: "Returns a video's status with its expected and remaining profiles",
		Tags:        []string{"Videos"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "healVideo",
		Method:      "POST",
		Path:        "/api/v1/videos/{id}/heal",
		Summary:     "Heal video",
		Description: "Runs one heal pass for the video now",
		Tags:        []string{"Videos"},
	}, h.Heal)
}

// ListVideosInput is the input for listing videos.
type ListVideosInput struct {
	Status   string `query:"status" doc:"Internal video status"`
	CourseID string `query:"course_id" doc:"Course ID (ULID)"`
	Active   bool   `query:"active" doc:"Only active videos"`
	Page     int    `query:"page" minimum:"1" default:"1"`
	PageSize int    `query:"page_size" minimum:"1" maximum:"500" default:"50"`
}

// ListVideosOutput is the output for listing videos.
type ListVideosOutput struct {
	Body struct {
		Pagination PaginationMeta  `json:"pagination"`
		Videos     []VideoResponse `json:"videos"`
	}
}

// List returns videos matching the filter.
func (h *VideoHandler) List(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	page, size := normalizePage(input.Page, input.PageSize)
	filter := repository.VideoFilter{
		Status:     models.VideoStatus(input.Status),
		ActiveOnly: input.Active,
		Offset:     (page - 1) * size,
		Limit:      size,
	}
	if input.CourseID != "" {
		id, err := models.ParseULID(input.CourseID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid course ID format", err)
		}
		filter.CourseID = id
	}

	videos, total, err := h.videos.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list videos", err)
	}

	resp := &ListVideosOutput{}
	resp.Body.Pagination = newPagination(page, size, total)
	resp.Body.Videos = make([]VideoResponse, 0, len(videos))
	for _, v := range videos {
		resp.Body.Videos = append(resp.Body.Videos, VideoFromModel(v))
	}
	return resp, nil
}

// GetVideoInput is the input for getting a video.
type GetVideoInput struct {
	ID string `path:"id" doc:"Video external ID"`
}

// GetVideoOutput is the output for getting a video.
type GetVideoOutput struct {
	Body VideoResponse
}

// Get returns a video with its expected and remaining profiles.
func (h *VideoHandler) Get(ctx context.Context, input *GetVideoInput) (*GetVideoOutput, error) {
	video, err := h.videos.GetByExternalID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get video", err)
	}
	if video == nil {
		return nil, huma.Error404NotFound("video not found")
	}

	resp := VideoFromModel(video)
	if video.Course != nil {
		expected, err := h.resolver.Resolve(ctx, video.Course, video)
		if err != nil {
			h.logger.WarnContext(ctx, "failed to resolve profiles",
				slog.String("video_id", video.ExternalID),
				slog.String("error", err.Error()),
			)
		} else {
			resp.Expected = expected.Sorted()
			remaining, err := h.tracker.Remaining(ctx, video.ExternalID, expected)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to compute remaining profiles", err)
			}
			resp.Remaining = remaining.Sorted()
		}
	}
	return &GetVideoOutput{Body: resp}, nil
}

// HealVideoInput is the input for healing a video.
type HealVideoInput struct {
	ID string `path:"id" doc:"Video external ID"`
}

// HealVideoOutput is the output for healing a video.
type HealVideoOutput struct {
	Body HealResponse
}

// Heal runs one heal pass for a video.
func (h *VideoHandler) Heal(ctx context.Context, input *HealVideoInput) (*HealVideoOutput, error) {
	res, err := h.healer.HealByID(ctx, input.ID)
	if err != nil {
		return nil, pipelineError("failed to heal video", err)
	}
	return &HealVideoOutput{Body: HealFromResult(res)}, nil
}

// HealFromResult converts a heal result to a response.
func HealFromResult(res pipeline.HealResult) HealResponse {
	out := HealResponse{
		VideoID:        res.VideoID,
		Verdict:        string(res.Fault.Verdict),
		Profiles:       res.Fault.Profiles.Sorted(),
		ExternalStatus: string(res.Fault.ExternalStatus),
		Enqueued:       pipeline.Enqueued(res.Outcomes),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
