package pipeline

import (
	"context"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/val"
)

// Metadata is what the probe reports about a media file.
type Metadata struct {
	Duration   float64
	Bitrate    string
	Resolution string
	Filesize   int64
	Checksum   string
}

// Validator decides whether a media file is usable. Mezzanine files are
// source uploads; anything else is a worker output compared against the
// original duration.
type Validator interface {
	Validate(ctx context.Context, path string, mezzanine bool, originalDuration float64) (bool, error)
}

// Prober reads media metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// Storage moves files between the local work directory and buckets.
type Storage interface {
	// Exists reports whether an object is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// Fetch downloads an object to a local path.
	Fetch(ctx context.Context, bucket, key, dest string) error
	// Archive stores a raw file privately.
	Archive(ctx context.Context, path, bucket, key string) error
	// Upload publishes a file for download and returns its public URL.
	Upload(ctx context.Context, path, bucket, key string) (string, error)
	// Delete removes an object.
	Delete(ctx context.Context, bucket, key string) error
	// URL returns the public URL of an object.
	URL(bucket, key string) string
}

// SystemOfRecord is the external video asset library.
type SystemOfRecord interface {
	// Get returns the record, or nil if the VAL does not know the video.
	Get(ctx context.Context, valID string) (*val.Video, error)
	Create(ctx context.Context, video *val.Video) error
	Update(ctx context.Context, valID string, video *val.Video) error
	PatchTranscriptStatus(ctx context.Context, valID string, status models.ExternalStatus) error
	CreateTranscript(ctx context.Context, transcript *val.Transcript) error
}

// TaskMessage is the body of an encode task.
type TaskMessage struct {
	Task    string
	VideoID string
	Profile string
	JobID   string
}

// TaskBroker publishes encode tasks for remote workers.
type TaskBroker interface {
	Enqueue(ctx context.Context, msg TaskMessage, queue string) error
}

// SubmitRequest asks a vendor to transcribe a delivered video.
type SubmitRequest struct {
	Video       *models.Video
	MediaURL    string
	Credentials *models.TranscriptCredentials
	CallbackURL string
	Org         string
}

// SubmittedProcess is one vendor job started by a submission. Failed is set
// when the job was created but a later step of the request failed.
type SubmittedProcess struct {
	ProcessID     string
	TranslationID string
	LangCode      string
	Failed        bool
}

// TranscriptionVendor starts transcription at a third party and downloads
// the finished transcript as SRT.
type TranscriptionVendor interface {
	Provider() models.TranscriptProvider
	Submit(ctx context.Context, req SubmitRequest) ([]SubmittedProcess, error)
	FetchTranscript(ctx context.Context, creds *models.TranscriptCredentials, processID, langCode string) ([]byte, error)
}

// Translation is the vendor-side state of one ordered translation.
type Translation struct {
	ID       string
	LangCode string
	Complete bool
}

// Translator is a vendor that translates a finished transcript into further
// languages.
type Translator interface {
	// OrderTranslations orders one translation per target language. A target
	// that could not be ordered comes back as a failed process.
	OrderTranslations(ctx context.Context, creds *models.TranscriptCredentials, fileID, source string, targets []string) ([]SubmittedProcess, error)
	Translations(ctx context.Context, creds *models.TranscriptCredentials, fileID string) ([]Translation, error)
	FetchTranslation(ctx context.Context, creds *models.TranscriptCredentials, fileID, translationID string) ([]byte, error)
}

// HandOff is a finished file going to a third-party video platform.
type HandOff struct {
	Video     *models.Video
	Course    *models.Course
	LocalPath string
	FileName  string
}

// PlatformUploader delivers files to a third-party video platform.
type PlatformUploader interface {
	Upload(ctx context.Context, h HandOff) error
}

// LivenessChecker confirms a delivered URL is served.
type LivenessChecker interface {
	Check(ctx context.Context, url string) error
}

// ApprovalChecker decides whether a video under review may go to final encodes.
type ApprovalChecker interface {
	Approved(ctx context.Context, course *models.Course, video *models.Video) (bool, error)
}

// AlwaysApproved treats every video as approved.
type AlwaysApproved struct{}

// Approved implements ApprovalChecker.
func (AlwaysApproved) Approved(context.Context, *models.Course, *models.Video) (bool, error) {
	return true, nil
}

// CourseHoldApproval approves videos once their course is released from hold.
type CourseHoldApproval struct{}

// Approved implements ApprovalChecker.
func (CourseHoldApproval) Approved(_ context.Context, course *models.Course, _ *models.Video) (bool, error) {
	return !course.Hold, nil
}
