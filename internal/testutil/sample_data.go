// Package testutil provides test utilities: a migrated in-memory database and
// sample course and video data.
package testutil

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/jmylchreest/vidpipe/internal/models"
)

// Standard fictional institutions for test data.
// NEVER use real university or partner names.
var (
	Institutions = []string{"XAC", "XBU", "XCU", "XDT", "XEU", "XFI"}

	Subjects = []string{"Astronomy", "Biology", "Chemistry", "Economics", "History", "Physics", "Statistics"}

	Semesters = []string{"T1", "T2", "T3", "SP", "FA"}

	LectureTitles = []string{
		"Introduction",
		"Course Overview",
		"Worked Example",
		"Lab Walkthrough",
		"Problem Set Review",
		"Guest Lecture",
		"Summary and Next Steps",
	}
)

// SampleDataGenerator generates realistic but fictional course data for testing.
type SampleDataGenerator struct {
	rng *rand.Rand
}

// NewSampleDataGenerator creates a new sample data generator with a random seed.
func NewSampleDataGenerator() *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(rand.Int63())),
	}
}

// NewSampleDataGeneratorWithSeed creates a new generator with a fixed seed for reproducibility.
func NewSampleDataGeneratorWithSeed(seed int64) *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// RandomInstitution returns a random institution code.
func (g *SampleDataGenerator) RandomInstitution() string {
	return Institutions[g.rng.Intn(len(Institutions))]
}

// RandomSemester returns a random semester code.
func (g *SampleDataGenerator) RandomSemester() string {
	return Semesters[g.rng.Intn(len(Semesters))]
}

// RandomTitle returns a lecture title with a week number.
func (g *SampleDataGenerator) RandomTitle() string {
	return fmt.Sprintf("Week %d: %s", g.rng.Intn(12)+1, LectureTitles[g.rng.Intn(len(LectureTitles))])
}

// CourseOptions configures course generation.
type CourseOptions struct {
	ReviewProc     bool
	MobileOverride bool
	S3Proc         bool
	YouTubeProc    bool
	// CourseRuns defaults to a single run keyed on the institution.
	CourseRuns string
}

// NewCourse builds an unsaved course with a unique class id.
func (g *SampleDataGenerator) NewCourse(opts CourseOptions) *models.Course {
	subject := Subjects[g.rng.Intn(len(Subjects))]
	inst := g.RandomInstitution()
	classID := fmt.Sprintf("%s%03d", strings.ToUpper(subject[:3]), g.rng.Intn(1000))
	semester := g.RandomSemester()

	runs := opts.CourseRuns
	if runs == "" {
		runs = fmt.Sprintf("course-v1:%s+%s+%s", inst, classID, semester)
	}

	return &models.Course{
		Name:           subject + " " + classID,
		Institution:    inst,
		ClassID:        classID,
		SemesterID:     semester,
		ReviewProc:     opts.ReviewProc,
		MobileOverride: opts.MobileOverride,
		S3Proc:         opts.S3Proc,
		YouTubeProc:    opts.YouTubeProc,
		CourseRuns:     runs,
	}
}

// NewVideo builds an unsaved, active video for a saved course.
func (g *SampleDataGenerator) NewVideo(course *models.Course, seq int, status models.VideoStatus) *models.Video {
	return &models.Video{
		CourseID:     course.ID,
		ExternalID:   course.FormatVideoID(seq),
		ClientTitle:  g.RandomTitle(),
		Active:       true,
		Status:       status,
		OrigFilesize: int64(g.rng.Intn(900)+100) * 1024 * 1024,
		OrigDuration: float64(g.rng.Intn(3000) + 60),
		OrigBitrate:  fmt.Sprintf("%dk", g.rng.Intn(4000)+1000),
	}
}
