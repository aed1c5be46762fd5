package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewVideoSubmission_DefaultsTitleFromPath(t *testing.T) {
	sub := NewVideoSubmission(NewULID(), "/intake/Lecture 1.MOV", SubmissionOptions{Filesize: 1024})

	assert.Equal(t, "Lecture 1", sub.ClientTitle())
	assert.Equal(t, "mov", sub.Extension())
	assert.Equal(t, int64(1024), sub.Filesize())
}

func TestNewVideoSubmission_CopiesLanguages(t *testing.T) {
	langs := []string{"en", "es"}
	sub := NewVideoSubmission(NewULID(), "a.mp4", SubmissionOptions{PreferredLanguages: langs})
	langs[0] = "fr"

	assert.Equal(t, []string{"en", "es"}, sub.PreferredLanguages())
}

func TestNewVideoFromSubmission(t *testing.T) {
	courseID := NewULID()
	sub := NewVideoSubmission(courseID, "/intake/intro.mp4", SubmissionOptions{
		StudioID:             "studio-1",
		Filesize:             2048,
		ProcessTranscription: true,
		Provider:             ProviderCielo24,
		PreferredLanguages:   []string{"en"},
	})

	v := NewVideoFromSubmission(sub, "MITX101T1-V000007")

	assert.Equal(t, courseID, v.CourseID)
	assert.Equal(t, "MITX101T1-V000007", v.ExternalID)
	assert.Equal(t, VideoStatusIngest, v.Status)
	assert.True(t, v.Active)
	assert.Equal(t, "mp4", v.OrigExtension)
	assert.Equal(t, TranscriptStatusPending, v.TranscriptStatus)
	assert.Equal(t, "en", v.PreferredLanguages)
	assert.Equal(t, 7, v.Sequence())
}

func TestSubmissionFromVideo(t *testing.T) {
	v := &Video{
		CourseID:           NewULID(),
		ClientTitle:        "Week 1",
		OrigFilesize:       99,
		PreferredLanguages: "en,de",
	}

	sub := SubmissionFromVideo(v, "/hotstore/MITX101T1-V000001.mp4")
	assert.Equal(t, v.CourseID, sub.CourseID())
	assert.Equal(t, "Week 1", sub.ClientTitle())
	assert.Equal(t, []string{"en", "de"}, sub.PreferredLanguages())
	assert.Equal(t, "/hotstore/MITX101T1-V000001.mp4", sub.Path())
}
