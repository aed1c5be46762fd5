package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// healFixture activates desktop_mp4, mobile_low and hls for an s3 course.
func healFixture(t *testing.T) (*harness, *models.Course) {
	t.Helper()
	h := newHarness(t)
	testutil.DeactivateAllProfilesExcept(t, h.db, "desktop_mp4", "mobile_low", "hls", "review")
	return h, h.course(testutil.CourseOptions{S3Proc: true})
}

func TestDetermineFault_SkipsExcludedStatuses(t *testing.T) {
	for _, status := range []models.VideoStatus{
		models.VideoStatusCorrupt,
		models.VideoStatusReviewReject,
		models.VideoStatusReviewHold,
	} {
		t.Run(string(status), func(t *testing.T) {
			h, course := healFixture(t)
			video := h.video(course, 1, status, time.Hour)

			res := h.engine.Heal.HealVideo(context.Background(), video)
			require.NoError(t, res.Err)
			assert.Equal(t, VerdictSkip, res.Fault.Verdict)
			assert.Empty(t, h.broker.sent)
			assert.Empty(t, h.sor.statuses())
		})
	}
}

func TestDetermineFault_InactiveVideoIsNeverDispatched(t *testing.T) {
	h, course := healFixture(t)
	video := h.video(course, 1, models.VideoStatusQueue, time.Hour)
	require.NoError(t, h.videos.SetActive(context.Background(), video.ID, false))

	res := h.engine.Heal.HealVideo(context.Background(), h.reload(video))
	require.NoError(t, res.Err)
	assert.Equal(t, VerdictSkip, res.Fault.Verdict)
	assert.Empty(t, h.broker.sent)
}

func TestHeal_YoutubeDuplicateReportsOnly(t *testing.T) {
	h, course := healFixture(t)
	video := h.video(course, 1, models.VideoStatusYoutubeDuplicate, time.Hour)

	res := h.engine.Heal.HealVideo(context.Background(), video)
	require.NoError(t, res.Err)
	assert.Equal(t, VerdictDuplicate, res.Fault.Verdict)
	assert.Equal(t, []string{"duplicate"}, h.sor.statuses())
	assert.Empty(t, h.broker.sent)
}

func TestHeal_CompletesWhenNothingRemains(t *testing.T) {
	h, course := healFixture(t)
	ctx := context.Background()
	video := h.video(course, 1, models.VideoStatusProgress, time.Hour)
	for _, p := range []string{"desktop_mp4", "mobile_low", "hls"} {
		h.deliverRecord(video, p)
	}

	res := h.engine.Heal.HealVideo(ctx, video)
	require.NoError(t, res.Err)
	assert.Equal(t, VerdictComplete, res.Fault.Verdict)
	assert.Equal(t, models.ExternalStatusFileComplete, res.Fault.ExternalStatus)

	reloaded := h.reload(video)
	assert.Equal(t, models.VideoStatusComplete, reloaded.Status)
	assert.NotNil(t, reloaded.TransEnd)
	assert.Equal(t, []string{"file_complete"}, h.sor.statuses())
}

func TestHeal_CompleteUsesTranscriptStatus(t *testing.T) {
	h, course := healFixture(t)
	video := h.video(course, 1, models.VideoStatusComplete, time.Hour)
	video.TranscriptStatus = models.TranscriptStatusReady
	for _, p := range []string{"desktop_mp4", "mobile_low", "hls"} {
		h.deliverRecord(video, p)
	}

	fault, err := h.engine.Heal.DetermineFault(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, VerdictComplete, fault.Verdict)
	assert.Equal(t, models.ExternalStatusTranscriptReady, fault.ExternalStatus)
}

func TestHeal_ReviewIsNotARecurringRequirement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course := h.gen.NewCourse(testutil.CourseOptions{ReviewProc: true, S3Proc: true})
	course.Hold = true
	require.NoError(t, h.courses.Create(ctx, course))
	video := h.video(course, 1, models.VideoStatusQueue, time.Hour)

	fault, err := h.engine.Heal.DetermineFault(ctx, video)
	require.NoError(t, err)
	assert.Empty(t, fault.Profiles)
	assert.Equal(t, VerdictComplete, fault.Verdict)
}

func TestHeal_RedispatchesMissing(t *testing.T) {
	h, course := healFixture(t)
	video := h.video(course, 1, models.VideoStatusQueue, time.Hour)
	h.deliverRecord(video, "desktop_mp4")

	res := h.engine.Heal.HealVideo(context.Background(), video)
	require.NoError(t, res.Err)
	assert.Equal(t, VerdictRedispatch, res.Fault.Verdict)
	assert.Equal(t, []string{"hls", "mobile_low"}, res.Fault.Profiles.Sorted())
	assert.Equal(t, []string{"hls", "mobile_low"}, h.broker.profiles())
	assert.Equal(t, []string{"transcode_queue"}, h.sor.statuses())
}

func TestHeal_RedispatchKeepsCompletionStatus(t *testing.T) {
	h, course := healFixture(t)
	video := h.video(course, 1, models.VideoStatusFileComplete, time.Hour)
	h.deliverRecord(video, "desktop_mp4")

	fault, err := h.engine.Heal.DetermineFault(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, VerdictRedispatch, fault.Verdict)
	assert.Equal(t, models.ExternalStatusFileComplete, fault.ExternalStatus)
}

func TestHeal_LongTermCorruptionBoundary(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want Verdict
	}{
		{"past retry barrier", 25 * time.Hour, VerdictCorrupt},
		{"inside retry barrier", time.Hour, VerdictRedispatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, course := healFixture(t)
			video := h.video(course, 1, models.VideoStatusQueue, tt.age)

			// expected without hls = {desktop_mp4, mobile_low}; uncompleted has all three.
			res := h.engine.Heal.HealVideo(context.Background(), video)
			require.NoError(t, res.Err)
			assert.Len(t, res.Fault.Profiles, 3)
			assert.Equal(t, tt.want, res.Fault.Verdict)

			reloaded := h.reload(video)
			if tt.want == VerdictCorrupt {
				assert.Equal(t, models.VideoStatusCorrupt, reloaded.Status)
				assert.False(t, reloaded.Active)
				require.NotNil(t, reloaded.TransEnd)
				assert.True(t, reloaded.TransEnd.Equal(h.now))
				assert.Equal(t, []string{"file_corrupt"}, h.sor.statuses())
				assert.Empty(t, h.broker.sent)
			} else {
				assert.Equal(t, models.VideoStatusQueue, reloaded.Status)
				assert.Len(t, h.broker.sent, 3)
			}
		})
	}
}

func TestHeal_NonHLSArtifactPreventsCorruption(t *testing.T) {
	h := newHarness(t)
	testutil.DeactivateAllProfilesExcept(t, h.db, "desktop_mp4", "mobile_low", "hls")
	course := h.course(testutil.CourseOptions{S3Proc: true})
	video := h.video(course, 1, models.VideoStatusQueue, 48*time.Hour)

	// An artifact for a profile outside the current families still counts.
	h.deliverRecord(video, "audio_mp3")

	fault, err := h.engine.Heal.DetermineFault(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, VerdictRedispatch, fault.Verdict)
}

func TestHeal_CorruptionRechecksStatus(t *testing.T) {
	h, course := healFixture(t)
	ctx := context.Background()
	video := h.video(course, 1, models.VideoStatusQueue, 25*time.Hour)

	// A delivery completes the video after the scan loaded it.
	_, err := h.videos.UpdateStatus(ctx, video.ID, models.VideoStatusComplete)
	require.NoError(t, err)

	res := h.engine.Heal.HealVideo(ctx, video)
	require.NoError(t, res.Err)
	assert.Equal(t, VerdictSkip, res.Fault.Verdict)
	assert.Equal(t, models.VideoStatusComplete, h.reload(video).Status)
	assert.Empty(t, h.sor.statuses())
}

func TestHealCycle_Idempotent(t *testing.T) {
	h, course := healFixture(t)
	ctx := context.Background()
	a := h.video(course, 1, models.VideoStatusQueue, 2*time.Hour)
	h.deliverRecord(a, "hls")
	b := h.video(course, 2, models.VideoStatusProgress, 3*time.Hour)
	h.deliverRecord(b, "desktop_mp4")

	from, to := h.engine.Heal.Window()

	first, err := h.engine.Heal.Cycle(ctx, from, to)
	require.NoError(t, err)
	firstSent := h.broker.profiles()

	h.broker.sent = nil
	second, err := h.engine.Heal.Cycle(ctx, from, to)
	require.NoError(t, err)

	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].Fault.Profiles.Sorted(), second.Results[i].Fault.Profiles.Sorted())
	}
	assert.Equal(t, firstSent, h.broker.profiles())
	assert.Equal(t, 2, second.Redispatch)
	assert.Equal(t, 4, second.Enqueued)
	assert.Equal(t, models.VideoStatusQueue, h.reload(a).Status)
	assert.Equal(t, models.VideoStatusProgress, h.reload(b).Status)
}

func TestHealCycle_WindowAndFailures(t *testing.T) {
	h, course := healFixture(t)
	ctx := context.Background()

	inside := h.video(course, 1, models.VideoStatusQueue, 2*time.Hour)
	h.video(course, 2, models.VideoStatusQueue, 200*time.Hour)

	orphan := h.gen.NewVideo(course, 3, models.VideoStatusQueue)
	orphan.CourseID = models.NewULID()
	start := h.now.Add(-time.Hour)
	orphan.TransStart = &start
	require.NoError(t, h.videos.Create(ctx, orphan))

	from, to := h.engine.Heal.Window()
	report, err := h.engine.Heal.Cycle(ctx, from, to)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Redispatch)

	var healed []string
	for _, r := range report.Results {
		if r.Err == nil {
			healed = append(healed, r.VideoID)
		} else {
			assert.Equal(t, KindConfigurationGap, KindOf(r.Err))
		}
	}
	assert.Equal(t, []string{inside.ExternalID}, healed)
}

func TestHealByID(t *testing.T) {
	h, course := healFixture(t)
	video := h.video(course, 1, models.VideoStatusQueue, time.Hour)

	res, err := h.engine.Heal.HealByID(context.Background(), video.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, VerdictRedispatch, res.Fault.Verdict)

	_, err = h.engine.Heal.HealByID(context.Background(), "NOPE-V000001")
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
}

func TestReencode_MissingProfiles(t *testing.T) {
	h, course := healFixture(t)
	ctx := context.Background()
	video := h.video(course, 1, models.VideoStatusComplete, time.Hour)
	h.deliverRecord(video, "desktop_mp4")
	h.deliverRecord(video, "mobile_low")
	require.NoError(t, h.db.Model(video).Update("process_transcription", true).Error)

	res, err := h.engine.Heal.Reencode(ctx, video.ExternalID, ReencodeOptions{Profiles: []string{"hls"}})
	require.NoError(t, err)
	assert.Equal(t, VerdictRedispatch, res.Fault.Verdict)
	assert.Equal(t, []string{"hls"}, h.broker.profiles())
	assert.False(t, h.reload(video).ProcessTranscription)
	assert.Equal(t, models.VideoStatusComplete, h.reload(video).Status)
}

func TestReencode_Overencode(t *testing.T) {
	h, course := healFixture(t)
	ctx := context.Background()
	video := h.video(course, 1, models.VideoStatusComplete, time.Hour)
	for _, p := range []string{"desktop_mp4", "mobile_low", "hls"} {
		h.deliverRecord(video, p)
	}

	res, err := h.engine.Heal.Reencode(ctx, video.ExternalID, ReencodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, VerdictSkip, res.Fault.Verdict)
	assert.Empty(t, h.broker.sent)

	res, err = h.engine.Heal.Reencode(ctx, video.ExternalID, ReencodeOptions{Overencode: true})
	require.NoError(t, err)
	assert.Equal(t, 3, Enqueued(res.Outcomes))
	assert.ElementsMatch(t, []string{"desktop_mp4", "mobile_low", "hls"}, h.broker.profiles())

	_, err = h.engine.Heal.Reencode(ctx, "NOPE-V000001", ReencodeOptions{})
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
}
