package models

// VideoStatus is a video's processing status.
//
// The main line is Ingest -> Queue -> Progress -> Complete. Corrupt File,
// Review Hold, Review Reject and Youtube Duplicate are side branches that
// stop encoding for the video.
type VideoStatus string

const (
	VideoStatusIngest            VideoStatus = "Ingest"
	VideoStatusTranscodeQueue    VideoStatus = "Transcode Queue"
	VideoStatusActiveTranscode   VideoStatus = "Active Transcode"
	VideoStatusTranscodeRetry    VideoStatus = "Transcode Retry"
	VideoStatusTranscodeComplete VideoStatus = "Transcode Complete"
	VideoStatusDeliverableUpload VideoStatus = "Deliverable Upload"
	VideoStatusFileComplete      VideoStatus = "File Complete"
	VideoStatusTranscodeError    VideoStatus = "Transcode Error"
	VideoStatusCorrupt           VideoStatus = "Corrupt File"
	VideoStatusReviewHold        VideoStatus = "Review Hold"
	VideoStatusReviewReject      VideoStatus = "Review Reject"
	VideoStatusFinalPublish      VideoStatus = "Final Publish"
	VideoStatusYoutubeDuplicate  VideoStatus = "Youtube Duplicate"
	VideoStatusQueue             VideoStatus = "Queue"
	VideoStatusProgress          VideoStatus = "Progress"
	VideoStatusComplete          VideoStatus = "Complete"
)

// TerminalVideoStatuses are never overwritten by the pipeline once set.
var TerminalVideoStatuses = []VideoStatus{
	VideoStatusCorrupt,
	VideoStatusReviewHold,
	VideoStatusReviewReject,
	VideoStatusYoutubeDuplicate,
}

// IsTerminal reports whether the status stops further encoding work.
func (s VideoStatus) IsTerminal() bool {
	for _, t := range TerminalVideoStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status.
func (s VideoStatus) IsValid() bool {
	switch s {
	case VideoStatusIngest, VideoStatusTranscodeQueue, VideoStatusActiveTranscode,
		VideoStatusTranscodeRetry, VideoStatusTranscodeComplete, VideoStatusDeliverableUpload,
		VideoStatusFileComplete, VideoStatusTranscodeError, VideoStatusCorrupt,
		VideoStatusReviewHold, VideoStatusReviewReject, VideoStatusFinalPublish,
		VideoStatusYoutubeDuplicate, VideoStatusQueue, VideoStatusProgress, VideoStatusComplete:
		return true
	}
	return false
}

// IsComplete reports whether the status means all encodes have landed.
func (s VideoStatus) IsComplete() bool {
	return s == VideoStatusComplete || s == VideoStatusFileComplete
}

// ExternalStatus is the status vocabulary of the video asset library.
type ExternalStatus string

const (
	ExternalStatusUpload                  ExternalStatus = "upload"
	ExternalStatusIngest                  ExternalStatus = "ingest"
	ExternalStatusTranscodeQueue          ExternalStatus = "transcode_queue"
	ExternalStatusTranscodeActive         ExternalStatus = "transcode_active"
	ExternalStatusFileDelivered           ExternalStatus = "file_delivered"
	ExternalStatusFileComplete            ExternalStatus = "file_complete"
	ExternalStatusFileCorrupt             ExternalStatus = "file_corrupt"
	ExternalStatusPipelineError           ExternalStatus = "pipeline_error"
	ExternalStatusInvalidToken            ExternalStatus = "invalid_token"
	ExternalStatusDuplicate               ExternalStatus = "duplicate"
	ExternalStatusImported                ExternalStatus = "imported"
	ExternalStatusTranscriptionInProgress ExternalStatus = "transcription_in_progress"
	ExternalStatusTranscriptReady         ExternalStatus = "transcript_ready"
)

// IsCompletion reports whether the external status means encoding is finished.
func (s ExternalStatus) IsCompletion() bool {
	switch s {
	case ExternalStatusFileComplete, ExternalStatusTranscriptionInProgress, ExternalStatusTranscriptReady:
		return true
	}
	return false
}

// ExternalStatusFor maps a local video status to the external vocabulary.
func ExternalStatusFor(s VideoStatus) ExternalStatus {
	switch s {
	case VideoStatusIngest:
		return ExternalStatusIngest
	case VideoStatusQueue, VideoStatusTranscodeQueue, VideoStatusTranscodeRetry:
		return ExternalStatusTranscodeQueue
	case VideoStatusProgress, VideoStatusActiveTranscode, VideoStatusTranscodeComplete, VideoStatusDeliverableUpload:
		return ExternalStatusTranscodeActive
	case VideoStatusComplete, VideoStatusFileComplete, VideoStatusFinalPublish:
		return ExternalStatusFileComplete
	case VideoStatusCorrupt:
		return ExternalStatusFileCorrupt
	case VideoStatusTranscodeError:
		return ExternalStatusPipelineError
	case VideoStatusYoutubeDuplicate:
		return ExternalStatusDuplicate
	default:
		return ExternalStatusTranscodeQueue
	}
}

// TranscriptStatus tracks transcription for a video or a single vendor process.
type TranscriptStatus string

const (
	TranscriptStatusNotApplicable TranscriptStatus = "N/A"
	TranscriptStatusPending       TranscriptStatus = "PENDING"
	TranscriptStatusInProgress    TranscriptStatus = "IN PROGRESS"
	TranscriptStatusFailed        TranscriptStatus = "FAILED"
	TranscriptStatusReady         TranscriptStatus = "READY"
)

// ExternalStatus returns the external vocabulary entry for a transcript
// status, if one exists.
func (s TranscriptStatus) ExternalStatus() (ExternalStatus, bool) {
	switch s {
	case TranscriptStatusInProgress:
		return ExternalStatusTranscriptionInProgress, true
	case TranscriptStatusReady:
		return ExternalStatusTranscriptReady, true
	}
	return "", false
}

// TranscriptProvider names a third-party transcription vendor.
type TranscriptProvider string

const (
	ProviderThreePlay TranscriptProvider = "3PlayMedia"
	ProviderCielo24   TranscriptProvider = "Cielo24"
)

// IsValid reports whether the provider is a known vendor.
func (p TranscriptProvider) IsValid() bool {
	return p == ProviderThreePlay || p == ProviderCielo24
}
