package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourse_FormatVideoID(t *testing.T) {
	c := &Course{Institution: "MITX", ClassID: "101", SemesterID: "T1"}

	assert.Equal(t, "MITX101T1", c.VideoIDPrefix())
	assert.Equal(t, "MITX101T1-V000100", c.FormatVideoID(100))
	assert.Equal(t, "MITX101T1-V000001", c.FormatVideoID(1))
}

func TestCourse_Toggles(t *testing.T) {
	c := &Course{S3Proc: true, YouTubeProc: true}
	toggles := c.Toggles()

	assert.Len(t, toggles, 4)
	assert.True(t, toggles[ToggleS3Proc])
	assert.True(t, toggles[ToggleYouTubeProc])
	assert.False(t, toggles[ToggleReviewProc])
	assert.False(t, toggles[ToggleMobileOverride])
}

func TestCourse_Org(t *testing.T) {
	tests := []struct {
		name string
		runs string
		want string
	}{
		{"opaque key", "course-v1:MITx+6.002x+2024_T1", "MITx"},
		{"slash key", "HarvardX/CS50/2023", "HarvardX"},
		{"first run wins", " UQx/Think101/1T2015 , course-v1:Other+A+B", "UQx"},
		{"malformed", "course-v1:MITx+6.002x", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Course{CourseRuns: tt.runs}
			assert.Equal(t, tt.want, c.Org())
		})
	}
}

func TestCourse_CourseRunList(t *testing.T) {
	c := &Course{CourseRuns: "a/b/c, ,course-v1:x+y+z,"}
	assert.Equal(t, []string{"a/b/c", "course-v1:x+y+z"}, c.CourseRunList())
}

func TestCourse_BeforeCreate(t *testing.T) {
	t.Run("sets id and studio hex", func(t *testing.T) {
		c := &Course{Institution: "MITX", ClassID: "101", SemesterID: "T1"}
		require.NoError(t, c.BeforeCreate(nil))
		assert.False(t, c.ID.IsZero())
		assert.NotEmpty(t, c.StudioHex)
	})

	t.Run("rejects missing institution", func(t *testing.T) {
		c := &Course{ClassID: "101", SemesterID: "T1"}
		var verr ErrValidation
		require.ErrorAs(t, c.BeforeCreate(nil), &verr)
		assert.Equal(t, "institution", verr.Field)
	})
}
