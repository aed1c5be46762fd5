package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/jmylchreest/vidpipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	set pipeline.ProfileSet
	err error
}

func (f fakeResolver) Resolve(ctx context.Context, course *models.Course, video *models.Video) (pipeline.ProfileSet, error) {
	return f.set, f.err
}

type fakeTracker struct {
	delivered pipeline.ProfileSet
}

func (f fakeTracker) Remaining(ctx context.Context, videoID string, expected pipeline.ProfileSet) (pipeline.ProfileSet, error) {
	out := pipeline.NewProfileSet()
	for name := range expected {
		if !f.delivered.Has(name) {
			out.Add(name)
		}
	}
	return out, nil
}

type fakeHealer struct {
	result pipeline.HealResult
	err    error
	calls  []string
}

func (f *fakeHealer) HealByID(ctx context.Context, videoID string) (pipeline.HealResult, error) {
	f.calls = append(f.calls, videoID)
	return f.result, f.err
}

func seedVideos(t *testing.T) (repository.VideoRepository, []*models.Video) {
	t.Helper()
	db := testutil.NewDB(t)
	ctx := context.Background()
	gen := testutil.NewSampleDataGeneratorWithSeed(7)

	course := gen.NewCourse(testutil.CourseOptions{})
	require.NoError(t, repository.NewCourseRepository(db).Create(ctx, course))

	videos := repository.NewVideoRepository(db)
	seeded := []*models.Video{
		gen.NewVideo(course, 1, models.VideoStatusTranscodeQueue),
		gen.NewVideo(course, 2, models.VideoStatusFileComplete),
		gen.NewVideo(course, 3, models.VideoStatusFileComplete),
	}
	seeded[2].Active = false
	for _, v := range seeded {
		require.NoError(t, videos.Create(ctx, v))
	}
	return videos, seeded
}

func TestVideoHandler_List(t *testing.T) {
	videos, seeded := seedVideos(t)
	handler := NewVideoHandler(videos, fakeResolver{}, fakeTracker{}, &fakeHealer{})
	ctx := context.Background()

	out, err := handler.List(ctx, &ListVideosInput{Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Len(t, out.Body.Videos, 3)

	out, err = handler.List(ctx, &ListVideosInput{Status: string(models.VideoStatusFileComplete), Active: true, Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Len(t, out.Body.Videos, 1)
	assert.Equal(t, seeded[1].ExternalID, out.Body.Videos[0].ExternalID)

	out, err = handler.List(ctx, &ListVideosInput{CourseID: seeded[0].CourseID.String(), Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, out.Body.Videos, 2)
	assert.Equal(t, int64(3), out.Body.Pagination.TotalItems)

	_, err = handler.List(ctx, &ListVideosInput{CourseID: "bad"})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestVideoHandler_Get(t *testing.T) {
	videos, seeded := seedVideos(t)
	resolver := fakeResolver{set: pipeline.NewProfileSet("mobile_low", "desktop_mp4", "hls")}
	tracker := fakeTracker{delivered: pipeline.NewProfileSet("desktop_mp4")}
	handler := NewVideoHandler(videos, resolver, tracker, &fakeHealer{})
	ctx := context.Background()

	out, err := handler.Get(ctx, &GetVideoInput{ID: seeded[0].ExternalID})
	require.NoError(t, err)
	assert.Equal(t, seeded[0].ExternalID, out.Body.ExternalID)
	assert.Equal(t, models.VideoStatusTranscodeQueue, out.Body.Status)
	assert.Equal(t, []string{"desktop_mp4", "hls", "mobile_low"}, out.Body.Expected)
	assert.Equal(t, []string{"hls", "mobile_low"}, out.Body.Remaining)

	_, err = handler.Get(ctx, &GetVideoInput{ID: "XACNOPE2024-V000009"})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestVideoHandler_GetWithUnresolvableProfiles(t *testing.T) {
	videos, seeded := seedVideos(t)
	handler := NewVideoHandler(videos, fakeResolver{err: errors.New("no mapping")}, fakeTracker{}, &fakeHealer{})

	out, err := handler.Get(context.Background(), &GetVideoInput{ID: seeded[1].ExternalID})
	require.NoError(t, err)
	assert.Empty(t, out.Body.Expected)
	assert.Empty(t, out.Body.Remaining)
}

func TestVideoHandler_Heal(t *testing.T) {
	healer := &fakeHealer{result: pipeline.HealResult{
		VideoID: "XACPHY1012024-V000001",
		Fault: pipeline.Fault{
			Profiles:       pipeline.NewProfileSet("mobile_low", "desktop_mp4"),
			Verdict:        pipeline.VerdictRedispatch,
			ExternalStatus: models.ExternalStatusTranscodeQueue,
		},
		Outcomes: []pipeline.Outcome{{Enqueued: true}, {Enqueued: false}},
	}}
	handler := NewVideoHandler(nil, fakeResolver{}, fakeTracker{}, healer)
	ctx := context.Background()

	out, err := handler.Heal(ctx, &HealVideoInput{ID: "XACPHY1012024-V000001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"XACPHY1012024-V000001"}, healer.calls)
	assert.Equal(t, "redispatch", out.Body.Verdict)
	assert.Equal(t, []string{"desktop_mp4", "mobile_low"}, out.Body.Profiles)
	assert.Equal(t, 1, out.Body.Enqueued)
	assert.Empty(t, out.Body.Error)

	healer.err = models.ErrVideoNotFound
	_, err = handler.Heal(ctx, &HealVideoInput{ID: "missing"})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}
