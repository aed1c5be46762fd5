package models

import (
	"strings"

	"gorm.io/gorm"
)

// Video is one uploaded asset and its processing state.
type Video struct {
	BaseModel

	CourseID ULID    `gorm:"type:varchar(26);not null;index" json:"course_id"`
	Course   *Course `gorm:"foreignKey:CourseID" json:"-"`

	// ExternalID is "<institution><class><semester>-V<sequence>", assigned once at ingest.
	ExternalID string `gorm:"not null;size:32;uniqueIndex" json:"external_id"`
	// StudioID is the identifier assigned by the authoring studio, if any.
	StudioID    string `gorm:"size:100;index" json:"studio_id,omitempty"`
	ClientTitle string `gorm:"size:255" json:"client_title,omitempty"`
	Active      bool   `gorm:"not null;index" json:"active"`

	Status VideoStatus `gorm:"not null;size:32;index" json:"status"`

	OrigFilesize   int64   `gorm:"not null" json:"orig_filesize"`
	OrigDuration   float64 `json:"orig_duration"`
	OrigBitrate    string  `gorm:"size:50" json:"orig_bitrate,omitempty"`
	OrigResolution string  `gorm:"size:50" json:"orig_resolution,omitempty"`
	OrigExtension  string  `gorm:"size:10" json:"orig_extension,omitempty"`
	OrigChecksum   string  `gorm:"size:64" json:"orig_checksum,omitempty"`

	TransStart *Time `gorm:"index" json:"trans_start,omitempty"`
	TransEnd   *Time `json:"trans_end,omitempty"`

	ProcessTranscription bool               `gorm:"not null" json:"process_transcription"`
	TranscriptStatus     TranscriptStatus   `gorm:"size:20;default:'N/A'" json:"transcript_status"`
	Provider             TranscriptProvider `gorm:"size:50" json:"provider,omitempty"`
	ThreePlayTurnaround  string             `gorm:"size:20" json:"three_play_turnaround,omitempty"`
	Cielo24Turnaround    string             `gorm:"size:20" json:"cielo24_turnaround,omitempty"`
	Cielo24Fidelity      string             `gorm:"size:20" json:"cielo24_fidelity,omitempty"`
	SourceLanguage       string             `gorm:"size:50" json:"source_language,omitempty"`
	// PreferredLanguages is a comma-separated list of transcript language codes.
	PreferredLanguages string `gorm:"size:500" json:"preferred_languages,omitempty"`
}

// TableName returns the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// ValID is the identifier the video is known by in the VAL: the studio id
// when one was supplied, else the external id.
func (v *Video) ValID() string {
	if v.StudioID != "" {
		return v.StudioID
	}
	return v.ExternalID
}

// Languages returns the preferred transcript languages.
func (v *Video) Languages() []string {
	var langs []string
	for _, l := range strings.Split(v.PreferredLanguages, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// Sequence returns the numeric suffix of the external id, or 0 if absent.
func (v *Video) Sequence() int {
	_, suffix, ok := strings.Cut(v.ExternalID, "-V")
	if !ok {
		return 0
	}
	n := 0
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// BeforeCreate generates the ULID and validates the identifier.
func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if err := v.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if v.ExternalID == "" {
		return ErrValidation{Field: "external_id", Message: "is required"}
	}
	if v.TranscriptStatus == "" {
		v.TranscriptStatus = TranscriptStatusNotApplicable
	}
	return nil
}
