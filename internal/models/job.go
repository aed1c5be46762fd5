package models

import (
	"time"

	"gorm.io/gorm"
)

// JobType represents the type of job to execute.
type JobType string

const (
	// JobTypeEncode is an encode task published for a remote worker.
	JobTypeEncode JobType = "encode"
	// JobTypeDeliver delivers one finished (video, profile) artifact.
	JobTypeDeliver JobType = "deliver"
	// JobTypeHealCycle runs a reconciliation pass over the heal window.
	JobTypeHealCycle JobType = "heal_cycle"
	// JobTypePurgeWorkDir removes stale files from the work directory.
	JobTypePurgeWorkDir JobType = "purge_workdir"
	// JobTypeRetrieveTranslations collects finished vendor translations.
	JobTypeRetrieveTranslations JobType = "retrieve_translations"
)

// LocalQueue is the queue drained by the in-process runner. Encode tasks go
// to worker queues instead.
const LocalQueue = "local"

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be executed.
	JobStatusPending JobStatus = "pending"
	// JobStatusScheduled indicates the job is scheduled for future execution.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled.
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a unit of queued work. Encode jobs wait on a worker queue until a
// remote worker claims them; every other type runs on LocalQueue.
type Job struct {
	BaseModel

	Type JobType `gorm:"not null;size:50;index" json:"type"`

	// Queue is the broker queue the job was published to.
	Queue string `gorm:"not null;size:100;index;default:'local'" json:"queue"`

	// TaskName is the worker task the message targets (encode jobs only).
	TaskName string `gorm:"size:100" json:"task_name,omitempty"`

	// VideoID is the external identifier of the video the job acts on.
	VideoID string `gorm:"size:32;index" json:"video_id,omitempty"`

	// Profile is the encode profile name the job acts on.
	Profile string `gorm:"size:100" json:"profile,omitempty"`

	// DispatchID is the short job identifier carried in the task message.
	DispatchID string `gorm:"size:32;index" json:"dispatch_id,omitempty"`

	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// NextRunAt is when the job should next execute.
	NextRunAt *Time `gorm:"index" json:"next_run_at,omitempty"`

	StartedAt   *Time `json:"started_at,omitempty"`
	CompletedAt *Time `json:"completed_at,omitempty"`
	DurationMs  int64 `json:"duration_ms,omitempty"`

	AttemptCount int `gorm:"default:0" json:"attempt_count"`

	// MaxAttempts is the maximum number of attempts (0 = no retries).
	MaxAttempts int `gorm:"default:3" json:"max_attempts"`

	// BackoffSeconds is the initial retry backoff; each retry doubles it.
	BackoffSeconds int `gorm:"default:60" json:"backoff_seconds"`

	LastError string `gorm:"size:4096" json:"last_error,omitempty"`
	Result    string `gorm:"size:4096" json:"result,omitempty"`

	// Priority determines execution order (higher first).
	Priority int `gorm:"default:0;index" json:"priority"`

	// LockedBy is the runner worker or remote worker holding the job.
	LockedBy string `gorm:"size:100;index" json:"locked_by,omitempty"`
	LockedAt *Time  `json:"locked_at,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsPending returns true if the job is pending execution.
func (j *Job) IsPending() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusScheduled
}

// IsRunning returns true if the job is currently executing.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsFinished returns true if the job has completed (successfully or not).
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.AttemptCount < j.MaxAttempts
}

// MarkRunning marks the job as running.
func (j *Job) MarkRunning(workerID string) {
	j.Status = JobStatusRunning
	now := Now()
	j.StartedAt = &now
	j.LockedBy = workerID
	j.LockedAt = &now
	j.AttemptCount++
	j.LastError = ""
}

// MarkCompleted marks the job as completed successfully.
func (j *Job) MarkCompleted(result string) {
	j.Status = JobStatusCompleted
	now := Now()
	j.CompletedAt = &now
	j.Result = result
	j.LastError = ""

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}

	j.LockedBy = ""
	j.LockedAt = nil
}

// MarkFailed marks the job as failed with an error message.
func (j *Job) MarkFailed(err error) {
	j.Status = JobStatusFailed
	now := Now()
	j.CompletedAt = &now

	if err != nil {
		j.LastError = err.Error()
	}

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}

	j.LockedBy = ""
	j.LockedAt = nil
}

// CalculateNextBackoff returns the backoff duration for the next retry.
// The backoff doubles per attempt from BackoffSeconds and is capped at one hour.
func (j *Job) CalculateNextBackoff() time.Duration {
	base := j.BackoffSeconds
	if base <= 0 {
		base = 60
	}

	attempts := max(j.AttemptCount, 1)
	backoff := time.Duration(base) * time.Second << (attempts - 1)
	if backoff > time.Hour || backoff <= 0 {
		return time.Hour
	}
	return backoff
}

// ScheduleRetry schedules the job for retry with exponential backoff.
func (j *Job) ScheduleRetry() {
	if !j.CanRetry() {
		return
	}

	backoff := j.CalculateNextBackoff()
	nextRun := Now().Add(backoff)
	j.NextRunAt = &nextRun
	j.Status = JobStatusScheduled
	j.LockedBy = ""
	j.LockedAt = nil
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.Type == "" {
		return ErrJobTypeRequired
	}
	if j.Type == JobTypeEncode && (j.VideoID == "" || j.Profile == "") {
		return ErrValidation{Field: "video_id", Message: "encode jobs need a video and a profile"}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// BeforeUpdate is a GORM hook that validates the job before update.
func (j *Job) BeforeUpdate(tx *gorm.DB) error {
	return j.Validate()
}

// JobHistory stores finished executions, kept apart from the jobs table.
type JobHistory struct {
	BaseModel

	JobID   ULID    `gorm:"not null;index" json:"job_id"`
	Type    JobType `gorm:"not null;size:50;index" json:"type"`
	Queue   string  `gorm:"size:100" json:"queue"`
	VideoID string  `gorm:"size:32;index" json:"video_id,omitempty"`
	Profile string  `gorm:"size:100" json:"profile,omitempty"`

	Status        JobStatus `gorm:"not null;size:20" json:"status"`
	StartedAt     *Time     `gorm:"index" json:"started_at,omitempty"`
	CompletedAt   *Time     `gorm:"index" json:"completed_at,omitempty"`
	DurationMs    int64     `json:"duration_ms,omitempty"`
	AttemptNumber int       `json:"attempt_number"`
	Error         string    `gorm:"size:4096" json:"error,omitempty"`
	Result        string    `gorm:"size:4096" json:"result,omitempty"`
}

// TableName returns the table name for JobHistory.
func (JobHistory) TableName() string {
	return "job_history"
}

// NewEncodeJob builds the broker record for one encode task message.
func NewEncodeJob(queue, taskName, videoID, profile, dispatchID string) *Job {
	return &Job{
		Type:        JobTypeEncode,
		Queue:       queue,
		TaskName:    taskName,
		VideoID:     videoID,
		Profile:     profile,
		DispatchID:  dispatchID,
		Status:      JobStatusPending,
		MaxAttempts: 1,
	}
}

// NewDeliverJob builds a local job that delivers one finished artifact.
func NewDeliverJob(videoID, profile, dispatchID string) *Job {
	return &Job{
		Type:       JobTypeDeliver,
		Queue:      LocalQueue,
		VideoID:    videoID,
		Profile:    profile,
		DispatchID: dispatchID,
		Status:     JobStatusPending,
	}
}

// History returns the history record for the job's current attempt.
func (j *Job) History() *JobHistory {
	return &JobHistory{
		JobID:         j.ID,
		Type:          j.Type,
		Queue:         j.Queue,
		VideoID:       j.VideoID,
		Profile:       j.Profile,
		Status:        j.Status,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		DurationMs:    j.DurationMs,
		AttemptNumber: j.AttemptCount,
		Error:         j.LastError,
		Result:        j.Result,
	}
}
