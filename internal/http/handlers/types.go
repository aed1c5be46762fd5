// Package handlers provides the HTTP API handlers for vidpipe.
package handlers

import (
	"time"

	"github.com/jmylchreest/vidpipe/internal/models"
)

// PaginationMeta contains pagination metadata in responses.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
}

// newPagination computes page counts for a listing.
func newPagination(page, pageSize int, total int64) PaginationMeta {
	pages := int64(0)
	if pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return PaginationMeta{CurrentPage: page, PageSize: pageSize, TotalItems: total, TotalPages: pages}
}

// Health types

// HealthResponse is the full health report.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Disk          *DiskInfo         `json:"disk,omitempty"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
}

// DiskInfo is the usage of the filesystem holding the work directory.
type DiskInfo struct {
	Path        string  `json:"path"`
	Total       string  `json:"total"`
	Free        string  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthComponents reports each dependency.
type HealthComponents struct {
	Database DatabaseHealth `json:"database"`
	Runner   RunnerHealth   `json:"runner"`
}

// DatabaseHealth reports connection pool state and ping latency.
type DatabaseHealth struct {
	Status             string  `json:"status"`
	ResponseTimeMS     float64 `json:"response_time_ms"`
	ResponseTimeStatus string  `json:"response_time_status"`
	ConnectionPoolSize int     `json:"connection_pool_size"`
	ActiveConnections  int     `json:"active_connections"`
	IdleConnections    int     `json:"idle_connections"`
}

// RunnerHealth reports the local job runner.
type RunnerHealth struct {
	Status      string `json:"status"`
	Workers     int    `json:"workers"`
	PendingJobs int64  `json:"pending_jobs"`
	RunningJobs int64  `json:"running_jobs"`
}

// ProbeResponse is returned by the liveness and readiness probes.
type ProbeResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// Job types

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID           models.ULID      `json:"id"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Type         models.JobType   `json:"type"`
	Queue        string           `json:"queue"`
	TaskName     string           `json:"task_name,omitempty"`
	VideoID      string           `json:"video_id,omitempty"`
	Profile      string           `json:"profile,omitempty"`
	DispatchID   string           `json:"dispatch_id,omitempty"`
	Status       models.JobStatus `json:"status"`
	NextRunAt    *time.Time       `json:"next_run_at,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	DurationMs   int64            `json:"duration_ms,omitempty"`
	AttemptCount int              `json:"attempt_count"`
	MaxAttempts  int              `json:"max_attempts"`
	LastError    string           `json:"last_error,omitempty"`
	Result       string           `json:"result,omitempty"`
	LockedBy     string           `json:"locked_by,omitempty"`
}

// JobFromModel converts a job model to a response.
func JobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		Type:         j.Type,
		Queue:        j.Queue,
		TaskName:     j.TaskName,
		VideoID:      j.VideoID,
		Profile:      j.Profile,
		DispatchID:   j.DispatchID,
		Status:       j.Status,
		NextRunAt:    j.NextRunAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		DurationMs:   j.DurationMs,
		AttemptCount: j.AttemptCount,
		MaxAttempts:  j.MaxAttempts,
		LastError:    j.LastError,
		Result:       j.Result,
		LockedBy:     j.LockedBy,
	}
}

// JobListResponse is the paginated response for job listings.
type JobListResponse struct {
	Pagination PaginationMeta `json:"pagination"`
	Jobs       []JobResponse  `json:"jobs"`
}

// TaskResponse is an encode task handed to a worker.
type TaskResponse struct {
	ID       models.ULID `json:"id"`
	Task     string      `json:"task"`
	Queue    string      `json:"queue"`
	VideoID  string      `json:"video_id"`
	Profile  string      `json:"profile"`
	JobID    string      `json:"job_id"`
	Attempts int         `json:"attempts"`
}

// TaskFromModel converts a claimed encode job to a task.
func TaskFromModel(j *models.Job) TaskResponse {
	return TaskResponse{
		ID:       j.ID,
		Task:     j.TaskName,
		Queue:    j.Queue,
		VideoID:  j.VideoID,
		Profile:  j.Profile,
		JobID:    j.DispatchID,
		Attempts: j.AttemptCount,
	}
}

// Video types

// VideoResponse is a video's processing state.
type VideoResponse struct {
	ID               models.ULID             `json:"id"`
	ExternalID       string                  `json:"external_id"`
	StudioID         string                  `json:"studio_id,omitempty"`
	CourseID         models.ULID             `json:"course_id"`
	ClientTitle      string                  `json:"client_title,omitempty"`
	Active           bool                    `json:"active"`
	Status           models.VideoStatus      `json:"status"`
	TranscriptStatus models.TranscriptStatus `json:"transcript_status"`
	OrigFilesize     int64                   `json:"orig_filesize"`
	OrigDuration     float64                 `json:"orig_duration"`
	OrigResolution   string                  `json:"orig_resolution,omitempty"`
	TransStart       *time.Time              `json:"trans_start,omitempty"`
	TransEnd         *time.Time              `json:"trans_end,omitempty"`
	Expected         []string                `json:"expected_profiles,omitempty"`
	Remaining        []string                `json:"remaining_profiles,omitempty"`
}

// VideoFromModel converts a video model to a response.
func VideoFromModel(v *models.Video) VideoResponse {
	return VideoResponse{
		ID:               v.ID,
		ExternalID:       v.ExternalID,
		StudioID:         v.StudioID,
		CourseID:         v.CourseID,
		ClientTitle:      v.ClientTitle,
		Active:           v.Active,
		Status:           v.Status,
		TranscriptStatus: v.TranscriptStatus,
		OrigFilesize:     v.OrigFilesize,
		OrigDuration:     v.OrigDuration,
		OrigResolution:   v.OrigResolution,
		TransStart:       v.TransStart,
		TransEnd:         v.TransEnd,
	}
}

// HealResponse is the outcome of healing one video.
type HealResponse struct {
	VideoID        string   `json:"video_id"`
	Verdict        string   `json:"verdict"`
	Profiles       []string `json:"profiles,omitempty"`
	ExternalStatus string   `json:"external_status,omitempty"`
	Enqueued       int      `json:"enqueued"`
	Error          string   `json:"error,omitempty"`
}
