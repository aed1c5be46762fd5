package models

import (
	"path/filepath"
	"strings"
)

// VideoSubmission describes an incoming source file before it becomes a
// Video. It is a value type: fields are unexported and set once by
// NewVideoSubmission.
type VideoSubmission struct {
	courseID    ULID
	path        string
	studioID    string
	clientTitle string
	filesize    int64

	processTranscription bool
	provider             TranscriptProvider
	threePlayTurnaround  string
	cielo24Turnaround    string
	cielo24Fidelity      string
	sourceLanguage       string
	preferredLanguages   []string
}

// SubmissionOptions carries the optional attributes of a submission.
type SubmissionOptions struct {
	StudioID             string
	ClientTitle          string
	Filesize             int64
	ProcessTranscription bool
	Provider             TranscriptProvider
	ThreePlayTurnaround  string
	Cielo24Turnaround    string
	Cielo24Fidelity      string
	SourceLanguage       string
	PreferredLanguages   []string
}

// NewVideoSubmission builds a submission for a file discovered for a course.
func NewVideoSubmission(courseID ULID, path string, opts SubmissionOptions) VideoSubmission {
	title := opts.ClientTitle
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return VideoSubmission{
		courseID:             courseID,
		path:                 path,
		studioID:             opts.StudioID,
		clientTitle:          title,
		filesize:             opts.Filesize,
		processTranscription: opts.ProcessTranscription,
		provider:             opts.Provider,
		threePlayTurnaround:  opts.ThreePlayTurnaround,
		cielo24Turnaround:    opts.Cielo24Turnaround,
		cielo24Fidelity:      opts.Cielo24Fidelity,
		sourceLanguage:       opts.SourceLanguage,
		preferredLanguages:   append([]string(nil), opts.PreferredLanguages...),
	}
}

func (s VideoSubmission) CourseID() ULID      { return s.courseID }
func (s VideoSubmission) Path() string        { return s.path }
func (s VideoSubmission) StudioID() string    { return s.studioID }
func (s VideoSubmission) ClientTitle() string { return s.clientTitle }
func (s VideoSubmission) Filesize() int64     { return s.filesize }

// Extension returns the lower-cased file extension without the dot.
func (s VideoSubmission) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(s.path), "."))
}

// PreferredLanguages returns a copy of the requested transcript languages.
func (s VideoSubmission) PreferredLanguages() []string {
	return append([]string(nil), s.preferredLanguages...)
}

// NewVideoFromSubmission creates the persisted entity for a submission under
// the given external identifier. The video starts active with status Ingest.
func NewVideoFromSubmission(s VideoSubmission, externalID string) *Video {
	transcriptStatus := TranscriptStatusNotApplicable
	if s.processTranscription {
		transcriptStatus = TranscriptStatusPending
	}
	return &Video{
		CourseID:             s.courseID,
		ExternalID:           externalID,
		StudioID:             s.studioID,
		ClientTitle:          s.clientTitle,
		Active:               true,
		Status:               VideoStatusIngest,
		OrigFilesize:         s.filesize,
		OrigExtension:        s.Extension(),
		ProcessTranscription: s.processTranscription,
		TranscriptStatus:     transcriptStatus,
		Provider:             s.provider,
		ThreePlayTurnaround:  s.threePlayTurnaround,
		Cielo24Turnaround:    s.cielo24Turnaround,
		Cielo24Fidelity:      s.cielo24Fidelity,
		SourceLanguage:       s.sourceLanguage,
		PreferredLanguages:   strings.Join(s.preferredLanguages, ","),
	}
}

// SubmissionFromVideo rebuilds the submission a stored video was created from,
// pointing at path. Used when a video's source is re-ingested from the hotstore.
func SubmissionFromVideo(v *Video, path string) VideoSubmission {
	return NewVideoSubmission(v.CourseID, path, SubmissionOptions{
		StudioID:             v.StudioID,
		ClientTitle:          v.ClientTitle,
		Filesize:             v.OrigFilesize,
		ProcessTranscription: v.ProcessTranscription,
		Provider:             v.Provider,
		ThreePlayTurnaround:  v.ThreePlayTurnaround,
		Cielo24Turnaround:    v.Cielo24Turnaround,
		Cielo24Fidelity:      v.Cielo24Fidelity,
		SourceLanguage:       v.SourceLanguage,
		PreferredLanguages:   v.Languages(),
	})
}
