package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// JobHandler handles job inspection endpoints.
type JobHandler struct {
	jobs   repository.JobRepository
	runner RunnerStatusProvider
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs repository.JobRepository) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// WithRunner exposes the local runner's status.
func (h *JobHandler) WithRunner(runner RunnerStatusProvider) *JobHandler {
	h.runner = runner
	return h
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns jobs, newest first, optionally filtered",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a job by ID",
		Tags:        []string{"Jobs"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "getRunnerStatus",
		Method:      "GET",
		Path:        "/api/v1/runner",
		Summary:     "Get runner status",
		Description: "Returns the local job runner status",
		Tags:        []string{"Jobs"},
	}, h.GetRunnerStatus)
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Type     string `query:"type" doc:"Job type: encode, deliver, heal_cycle or purge_workdir"`
	Status   string `query:"status" doc:"Job status"`
	Queue    string `query:"queue" doc:"Queue name"`
	VideoID  string `query:"video_id" doc:"Video external ID"`
	Page     int    `query:"page" minimum:"1" default:"1"`
	PageSize int    `query:"page_size" minimum:"1" maximum:"500" default:"50"`
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body JobListResponse
}

// List returns jobs matching the filter.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	page, size := normalizePage(input.Page, input.PageSize)

	jobs, total, err := h.jobs.List(ctx, repository.JobFilter{
		Type:    models.JobType(input.Type),
		Status:  models.JobStatus(input.Status),
		Queue:   input.Queue,
		VideoID: input.VideoID,
		Offset:  (page - 1) * size,
		Limit:   size,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Pagination = newPagination(page, size, total)
	resp.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, JobFromModel(j))
	}
	return resp, nil
}

// GetJobInput is the input for getting a job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the output for getting a job.
type GetJobOutput struct {
	Body JobResponse
}

// GetByID returns a job by ID.
func (h *JobHandler) GetByID(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get job", err)
	}
	if job == nil {
		return nil, huma.Error404NotFound("job not found")
	}
	return &GetJobOutput{Body: JobFromModel(job)}, nil
}

// GetRunnerStatusInput is the input for the runner status.
type GetRunnerStatusInput struct{}

// GetRunnerStatusOutput is the output for the runner status.
type GetRunnerStatusOutput struct {
	Body RunnerHealth
}

// GetRunnerStatus returns the runner's state.
func (h *JobHandler) GetRunnerStatus(ctx context.Context, input *GetRunnerStatusInput) (*GetRunnerStatusOutput, error) {
	return &GetRunnerStatusOutput{Body: runnerHealth(h.runner)}, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
