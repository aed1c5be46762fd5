package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// Ingester records discovered source files.
type Ingester interface {
	Stage(ctx context.Context, key string) (string, error)
	Ingest(ctx context.Context, sub models.VideoSubmission) (string, error)
}

// IngestHandler accepts file-discovered notifications.
type IngestHandler struct {
	ingest  Ingester
	courses repository.CourseRepository
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingest Ingester, courses repository.CourseRepository) *IngestHandler {
	return &IngestHandler{ingest: ingest, courses: courses}
}

// Register registers the ingest route with the API.
func (h *IngestHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "ingestVideo",
		Method:        "POST",
		Path:          "/api/v1/ingest",
		Summary:       "Ingest a source file",
		Description:   "Validates, records and dispatches a newly discovered source file",
		Tags:          []string{"Ingest"},
		DefaultStatus: http.StatusCreated,
	}, h.Ingest)
}

// IngestRequest describes a discovered file. Exactly one of Path and Key is
// set, and the course is named by CourseID or StudioHex.
type IngestRequest struct {
	CourseID             string   `json:"course_id,omitempty" doc:"Course ID (ULID)"`
	StudioHex            string   `json:"studio_hex,omitempty" doc:"Course studio upload key"`
	Path                 string   `json:"path,omitempty" doc:"Local path of the source file"`
	Key                  string   `json:"key,omitempty" doc:"Object key in the intake bucket"`
	StudioID             string   `json:"studio_id,omitempty" doc:"Identifier assigned by the authoring studio"`
	ClientTitle          string   `json:"client_title,omitempty"`
	Filesize             int64    `json:"filesize,omitempty" minimum:"0"`
	ProcessTranscription bool     `json:"process_transcription,omitempty"`
	Provider             string   `json:"provider,omitempty" enum:"Cielo24,3PlayMedia"`
	ThreePlayTurnaround  string   `json:"three_play_turnaround,omitempty"`
	Cielo24Turnaround    string   `json:"cielo24_turnaround,omitempty"`
	Cielo24Fidelity      string   `json:"cielo24_fidelity,omitempty"`
	SourceLanguage       string   `json:"source_language,omitempty"`
	PreferredLanguages   []string `json:"preferred_languages,omitempty"`
}

// IngestInput is the input for ingesting a file.
type IngestInput struct {
	Body IngestRequest
}

// IngestOutput is the output for ingesting a file.
type IngestOutput struct {
	Body struct {
		VideoID string `json:"video_id"`
	}
}

// Ingest records a source file and returns the video's external ID. A file
// that fails validation is still recorded, as Corrupt File.
func (h *IngestHandler) Ingest(ctx context.Context, input *IngestInput) (*IngestOutput, error) {
	req := input.Body
	if (req.Path == "") == (req.Key == "") {
		return nil, huma.Error400BadRequest("exactly one of path and key is required")
	}

	course, err := h.resolveCourse(ctx, req)
	if err != nil {
		return nil, err
	}

	path := req.Path
	if req.Key != "" {
		if path, err = h.ingest.Stage(ctx, req.Key); err != nil {
			return nil, pipelineError("failed to fetch intake object", err)
		}
	}

	sub := models.NewVideoSubmission(course.ID, path, models.SubmissionOptions{
		StudioID:             req.StudioID,
		ClientTitle:          req.ClientTitle,
		Filesize:             req.Filesize,
		ProcessTranscription: req.ProcessTranscription,
		Provider:             models.TranscriptProvider(req.Provider),
		ThreePlayTurnaround:  req.ThreePlayTurnaround,
		Cielo24Turnaround:    req.Cielo24Turnaround,
		Cielo24Fidelity:      req.Cielo24Fidelity,
		SourceLanguage:       req.SourceLanguage,
		PreferredLanguages:   req.PreferredLanguages,
	})

	videoID, err := h.ingest.Ingest(ctx, sub)
	if err != nil {
		return nil, pipelineError("failed to ingest video", err)
	}

	resp := &IngestOutput{}
	resp.Body.VideoID = videoID
	return resp, nil
}

func (h *IngestHandler) resolveCourse(ctx context.Context, req IngestRequest) (*models.Course, error) {
	var (
		course *models.Course
		err    error
	)
	switch {
	case req.CourseID != "":
		id, perr := models.ParseULID(req.CourseID)
		if perr != nil {
			return nil, huma.Error400BadRequest("invalid course ID format", perr)
		}
		course, err = h.courses.GetByID(ctx, id)
	case req.StudioHex != "":
		course, err = h.courses.GetByStudioHex(ctx, req.StudioHex)
	default:
		return nil, huma.Error400BadRequest("course_id or studio_hex is required")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load course", err)
	}
	if course == nil {
		return nil, huma.Error404NotFound("course not found")
	}
	return course, nil
}
