package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Course toggle names. Each names a profile family in the configured table.
const (
	ToggleReviewProc     = "review_proc"
	ToggleMobileOverride = "mobile_override"
	ToggleS3Proc         = "s3_proc"
	ToggleYouTubeProc    = "yt_proc"
)

// Course holds the per-course configuration that decides which encodes a
// video receives, and the sequence counter for video identifiers.
type Course struct {
	BaseModel

	Name        string `gorm:"not null;size:255" json:"name"`
	Institution string `gorm:"not null;size:4;uniqueIndex:idx_course_key" json:"institution"`
	ClassID     string `gorm:"not null;size:16;uniqueIndex:idx_course_key" json:"class_id"`
	SemesterID  string `gorm:"not null;size:4;uniqueIndex:idx_course_key" json:"semester_id"`
	Hold        bool   `gorm:"not null" json:"hold"`

	ReviewProc     bool `gorm:"not null" json:"review_proc"`
	MobileOverride bool `gorm:"not null" json:"mobile_override"`
	S3Proc         bool `gorm:"not null" json:"s3_proc"`
	YouTubeProc    bool `gorm:"not null" json:"yt_proc"`

	YouTubeLogon   string `gorm:"size:100" json:"yt_logon,omitempty"`
	YouTubeChannel string `gorm:"size:255" json:"yt_channel,omitempty"`

	// LastVideoNumber is the sequence number of the most recent video. Only
	// CourseRepository.ReserveVideoNumber changes it.
	LastVideoNumber int `gorm:"not null;default:0" json:"last_video_number"`

	// CourseRuns is a comma-separated list of course run keys in the VAL.
	CourseRuns string `gorm:"size:5000" json:"course_runs,omitempty"`
	StudioHex  string `gorm:"size:50;uniqueIndex" json:"studio_hex"`
}

// TableName returns the table name for Course.
func (Course) TableName() string {
	return "courses"
}

// Toggles returns the course's profile-family switches keyed by toggle name.
func (c *Course) Toggles() map[string]bool {
	return map[string]bool{
		ToggleReviewProc:     c.ReviewProc,
		ToggleMobileOverride: c.MobileOverride,
		ToggleS3Proc:         c.S3Proc,
		ToggleYouTubeProc:    c.YouTubeProc,
	}
}

// VideoIDPrefix is the part of a video identifier shared by every video of the course.
func (c *Course) VideoIDPrefix() string {
	return c.Institution + c.ClassID + c.SemesterID
}

// FormatVideoID builds the external identifier for a sequence number.
func (c *Course) FormatVideoID(seq int) string {
	return fmt.Sprintf("%s-V%06d", c.VideoIDPrefix(), seq)
}

// CourseRunList returns the trimmed, non-empty course run keys.
func (c *Course) CourseRunList() []string {
	var runs []string
	for _, run := range strings.Split(c.CourseRuns, ",") {
		if run = strings.TrimSpace(run); run != "" {
			runs = append(runs, run)
		}
	}
	return runs
}

// Org returns the organization of the first course run, or "" if it cannot
// be parsed. Both "course-v1:Org+Num+Run" and "Org/Num/Run" forms are accepted.
func (c *Course) Org() string {
	runs := c.CourseRunList()
	if len(runs) == 0 {
		return ""
	}

	key := runs[0]
	if rest, ok := strings.CutPrefix(key, "course-v1:"); ok {
		parts := strings.Split(rest, "+")
		if len(parts) == 3 && parts[0] != "" {
			return parts[0]
		}
		return ""
	}
	parts := strings.Split(key, "/")
	if len(parts) == 3 && parts[0] != "" {
		return parts[0]
	}
	return ""
}

// Validate performs basic validation on the course.
func (c *Course) Validate() error {
	if c.Institution == "" {
		return ErrValidation{Field: "institution", Message: "is required"}
	}
	if c.ClassID == "" {
		return ErrValidation{Field: "class_id", Message: "is required"}
	}
	if c.SemesterID == "" {
		return ErrValidation{Field: "semester_id", Message: "is required"}
	}
	return nil
}

// BeforeCreate generates the ULID and a studio hex, then validates.
func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if c.StudioHex == "" {
		c.StudioHex = strings.ToLower(NewULID().String())
	}
	return c.Validate()
}
