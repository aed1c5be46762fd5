package testutil

import (
	"testing"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleDataGeneratorWithSeed(t *testing.T) {
	gen1 := NewSampleDataGeneratorWithSeed(42)
	gen2 := NewSampleDataGeneratorWithSeed(42)

	assert.Equal(t, gen1.RandomInstitution(), gen2.RandomInstitution())
	assert.Equal(t, gen1.RandomTitle(), gen2.RandomTitle())
}

func TestNewCourse(t *testing.T) {
	gen := NewSampleDataGenerator()
	c := gen.NewCourse(CourseOptions{S3Proc: true})

	assert.Contains(t, Institutions, c.Institution)
	assert.Contains(t, Semesters, c.SemesterID)
	assert.True(t, c.S3Proc)
	assert.False(t, c.ReviewProc)
	assert.Equal(t, c.Institution, c.Org())
	assert.NoError(t, c.Validate())
}

func TestNewVideo(t *testing.T) {
	gen := NewSampleDataGenerator()
	c := gen.NewCourse(CourseOptions{})
	c.ID = models.NewULID()

	v := gen.NewVideo(c, 12, models.VideoStatusIngest)
	assert.Equal(t, c.ID, v.CourseID)
	assert.Equal(t, 12, v.Sequence())
	assert.True(t, v.Active)
	assert.Positive(t, v.OrigFilesize)
}

func TestNewDB_SeedsProfiles(t *testing.T) {
	db := NewDB(t)

	p := Profile(t, db, "desktop_mp4")
	require.NotNil(t, p.Destination)
	assert.Equal(t, models.DestinationDirect, p.Destination.Nick)

	DeactivateAllProfilesExcept(t, db, "desktop_mp4")
	var active int64
	require.NoError(t, db.Model(&models.EncodeProfile{}).Where("active = ?", true).Count(&active).Error)
	assert.Equal(t, int64(1), active)
}
