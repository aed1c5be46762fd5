// Package repository defines data access interfaces for vidpipe entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/vidpipe/internal/models"
)

// CourseRepository defines operations for course persistence.
type CourseRepository interface {
	// Create creates a new course.
	Create(ctx context.Context, course *models.Course) error
	// GetByID retrieves a course by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Course, error)
	// GetByKey retrieves a course by its institution, class and semester.
	GetByKey(ctx context.Context, institution, classID, semesterID string) (*models.Course, error)
	// GetByStudioHex retrieves a course by the hex key the studio uploads under.
	GetByStudioHex(ctx context.Context, hex string) (*models.Course, error)
	// GetAll retrieves all courses.
	GetAll(ctx context.Context) ([]*models.Course, error)
	// Update updates an existing course. LastVideoNumber is never written.
	Update(ctx context.Context, course *models.Course) error
	// ReserveVideoNumber atomically increments the course's sequence counter
	// and returns the new value.
	ReserveVideoNumber(ctx context.Context, id models.ULID) (int, error)
}

// VideoFilter narrows a video listing.
type VideoFilter struct {
	Status           models.VideoStatus
	CourseID         models.ULID
	ActiveOnly       bool
	Provider         models.TranscriptProvider
	TranscriptStatus models.TranscriptStatus
	Offset           int
	Limit            int
}

// VideoRepository defines operations for video persistence.
type VideoRepository interface {
	// Create creates a new video.
	Create(ctx context.Context, video *models.Video) error
	// GetByID retrieves a video by ID, with its course.
	GetByID(ctx context.Context, id models.ULID) (*models.Video, error)
	// GetByExternalID retrieves a video by its external identifier, with its course.
	GetByExternalID(ctx context.Context, externalID string) (*models.Video, error)
	// GetByStudioID retrieves the most recent video carrying a studio identifier.
	GetByStudioID(ctx context.Context, studioID string) (*models.Video, error)
	// List retrieves videos matching the filter with a total count.
	List(ctx context.Context, filter VideoFilter) ([]*models.Video, int64, error)
	// ListInWindow retrieves videos whose processing started inside (from, to).
	ListInWindow(ctx context.Context, from, to time.Time) ([]*models.Video, error)
	// UpdateMetadata stores the probed original-file metadata.
	UpdateMetadata(ctx context.Context, video *models.Video) error
	// UpdateStatus sets the status if it differs. Reports whether a row changed.
	UpdateStatus(ctx context.Context, id models.ULID, to models.VideoStatus) (bool, error)
	// UpdateStatusUnless sets the status unless the current one is protected.
	UpdateStatusUnless(ctx context.Context, id models.ULID, to models.VideoStatus, protected ...models.VideoStatus) (bool, error)
	// MarkCorruptIfStatus marks the video Corrupt File and inactive only if its
	// status still equals expected.
	MarkCorruptIfStatus(ctx context.Context, id models.ULID, expected models.VideoStatus) (bool, error)
	// SetActive sets the active flag.
	SetActive(ctx context.Context, id models.ULID, active bool) error
	// DisableTranscription clears the process-transcription flag.
	DisableTranscription(ctx context.Context, id models.ULID) error
	// MarkTransStart records when processing began, if not already recorded.
	MarkTransStart(ctx context.Context, id models.ULID, at time.Time) error
	// MarkTransEnd records when processing finished.
	MarkTransEnd(ctx context.Context, id models.ULID, at time.Time) error
	// UpdateTranscriptStatus sets the transcript status.
	UpdateTranscriptStatus(ctx context.Context, id models.ULID, status models.TranscriptStatus) error
}

// EncodeProfileRepository defines operations for encode profile persistence.
type EncodeProfileRepository interface {
	// Create creates a new encode profile.
	Create(ctx context.Context, profile *models.EncodeProfile) error
	// GetByName retrieves a profile by name, with its destination.
	GetByName(ctx context.Context, name string) (*models.EncodeProfile, error)
	// GetAll retrieves all profiles, with destinations.
	GetAll(ctx context.Context) ([]*models.EncodeProfile, error)
	// ActiveByNames returns the active profiles among names.
	ActiveByNames(ctx context.Context, names []string) ([]*models.EncodeProfile, error)
	// SetActive toggles a profile.
	SetActive(ctx context.Context, name string, active bool) error
	// CreateDestination creates a delivery destination.
	CreateDestination(ctx context.Context, dest *models.Destination) error
	// GetDestinationByNick retrieves a destination by its nickname.
	GetDestinationByNick(ctx context.Context, nick string) (*models.Destination, error)
}

// ArtifactRepository defines operations for delivered artifact persistence.
type ArtifactRepository interface {
	// Create records a delivered artifact.
	Create(ctx context.Context, artifact *models.DeliveredArtifact) error
	// LatestByProfile returns the current artifact per profile name for a video.
	LatestByProfile(ctx context.Context, videoID models.ULID) (map[string]*models.DeliveredArtifact, error)
	// HasNonHLS reports whether any artifact for the video belongs to a
	// profile other than hlsProfile.
	HasNonHLS(ctx context.Context, videoID models.ULID, hlsProfile string) (bool, error)
	// MarkReported flags artifacts as pushed to the system of record.
	MarkReported(ctx context.Context, ids []models.ULID) error
}

// TranscriptRepository defines operations for transcription tracking.
type TranscriptRepository interface {
	// CreateProcess records a submitted transcription or translation.
	CreateProcess(ctx context.Context, process *models.TranscriptProcess) error
	// FindProcess returns the latest process for a vendor job and language.
	// An empty langCode matches any language.
	FindProcess(ctx context.Context, provider models.TranscriptProvider, processID, langCode string) (*models.TranscriptProcess, error)
	// UpdateProcessStatus sets the status of a process.
	UpdateProcessStatus(ctx context.Context, id models.ULID, status models.TranscriptStatus) error
	// LatestProcesses returns the authoritative process per (provider, language) for a video.
	LatestProcesses(ctx context.Context, videoID models.ULID) ([]*models.TranscriptProcess, error)
	// GetCredentials returns the vendor account for an organization.
	GetCredentials(ctx context.Context, org string, provider models.TranscriptProvider) (*models.TranscriptCredentials, error)
	// SaveCredentials creates or replaces the vendor account for an organization.
	SaveCredentials(ctx context.Context, creds *models.TranscriptCredentials) error
}

// JobFilter narrows a job listing.
type JobFilter struct {
	Type    models.JobType
	Status  models.JobStatus
	Queue   string
	VideoID string
	Offset  int
	Limit   int
}

// JobRepository defines operations for job persistence.
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error
	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// List retrieves jobs matching the filter with a total count.
	List(ctx context.Context, filter JobFilter) ([]*models.Job, int64, error)
	// GetPending retrieves pending/scheduled jobs on the given queues that are due.
	GetPending(ctx context.Context, queues ...string) ([]*models.Job, error)
	// GetByVideo retrieves jobs for a video external id.
	GetByVideo(ctx context.Context, videoID string) ([]*models.Job, error)
	// GetRunning retrieves all currently running jobs on any queue.
	GetRunning(ctx context.Context) ([]*models.Job, error)
	// Update updates an existing job.
	Update(ctx context.Context, job *models.Job) error
	// DeleteCompleted deletes finished jobs completed before the given time.
	DeleteCompleted(ctx context.Context, before time.Time) (int64, error)
	// AcquireJob atomically acquires a due job from one of the queues.
	// Returns nil if no jobs are available or if another worker acquired it first.
	AcquireJob(ctx context.Context, workerID string, queues ...string) (*models.Job, error)
	// ReleaseJob releases a job lock (used when a worker fails unexpectedly).
	ReleaseJob(ctx context.Context, id models.ULID) error
	// FindDuplicatePending finds an unfinished job of the same type for a
	// (video, profile) pair.
	FindDuplicatePending(ctx context.Context, jobType models.JobType, videoID, profile string) (*models.Job, error)
	// CreateHistory creates a job history record.
	CreateHistory(ctx context.Context, history *models.JobHistory) error
	// GetHistory retrieves job history with pagination.
	GetHistory(ctx context.Context, jobType *models.JobType, offset, limit int) ([]*models.JobHistory, int64, error)
	// DeleteHistory deletes history records older than the specified time.
	DeleteHistory(ctx context.Context, before time.Time) (int64, error)
}
