package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/jmylchreest/vidpipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobRepo(t *testing.T) repository.JobRepository {
	t.Helper()
	return repository.NewJobRepository(testutil.NewDB(t))
}

// runningJob creates a deliver job and acquires it the way the runner does.
func runningJob(t *testing.T, jobs repository.JobRepository) *models.Job {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, jobs.Create(ctx, models.NewDeliverJob("XACPHY1012024-V000001", "desktop_mp4", "aaaa")))
	job, err := jobs.AcquireJob(ctx, "runner-0", models.LocalQueue)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

type handlerFunc func(ctx context.Context, job *models.Job) (string, error)

func (f handlerFunc) Execute(ctx context.Context, job *models.Job) (string, error) {
	return f(ctx, job)
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []string
	out   pipeline.DeliveryOutcome
}

func (f *fakeDeliverer) Deliver(_ context.Context, videoID, profile string) pipeline.DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, videoID+"/"+profile)
	out := f.out
	out.VideoID, out.Profile = videoID, profile
	return out
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHealer struct {
	cycles int
	report pipeline.HealReport
	err    error
}

func (f *fakeHealer) Window() (time.Time, time.Time) {
	now := time.Now()
	return now.Add(-time.Hour), now
}

func (f *fakeHealer) Cycle(context.Context, time.Time, time.Time) (pipeline.HealReport, error) {
	f.cycles++
	return f.report, f.err
}

func TestExecutor_Execute_Success(t *testing.T) {
	jobs := newJobRepo(t)
	executor := NewExecutor(jobs)
	executor.RegisterHandler(models.JobTypeDeliver, handlerFunc(func(context.Context, *models.Job) (string, error) {
		return "delivered", nil
	}))

	job := runningJob(t, jobs)
	require.NoError(t, executor.Execute(context.Background(), job))

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, "delivered", got.Result)

	history, total, err := jobs.GetHistory(context.Background(), nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, models.JobStatusCompleted, history[0].Status)
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus models.JobStatus
	}{
		{
			name:       "transient failure is retried",
			err:        &pipeline.Error{Kind: pipeline.KindTransientExternal, Op: "upload", Err: errors.New("timeout")},
			wantStatus: models.JobStatusScheduled,
		},
		{
			name:       "validation failure is final",
			err:        &pipeline.Error{Kind: pipeline.KindValidation, Op: "validate", Err: errors.New("bad duration")},
			wantStatus: models.JobStatusFailed,
		},
		{
			name:       "configuration gap is final",
			err:        &pipeline.Error{Kind: pipeline.KindConfigurationGap, Op: "profile", Err: errors.New("unknown profile")},
			wantStatus: models.JobStatusFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newJobRepo(t)
			executor := NewExecutor(jobs)
			executor.RegisterHandler(models.JobTypeDeliver, handlerFunc(func(context.Context, *models.Job) (string, error) {
				return "", tt.err
			}))

			job := runningJob(t, jobs)
			require.NoError(t, executor.Execute(context.Background(), job))

			got, err := jobs.GetByID(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.err.Error(), got.LastError)
		})
	}
}

func TestExecutor_Execute_NoHandler(t *testing.T) {
	jobs := newJobRepo(t)
	executor := NewExecutor(jobs)
	err := executor.Execute(context.Background(), runningJob(t, jobs))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler registered")
}

func TestDeliverHandler(t *testing.T) {
	tests := []struct {
		name    string
		out     pipeline.DeliveryOutcome
		want    string
		wantErr bool
	}{
		{"recorded", pipeline.DeliveryOutcome{Recorded: true, Status: models.VideoStatusComplete}, "delivered desktop_mp4 for V1, video Complete", false},
		{"skipped", pipeline.DeliveryOutcome{Skipped: true}, "skipped desktop_mp4 for V1", false},
		{"handed off", pipeline.DeliveryOutcome{}, "handed off desktop_mp4 for V1", false},
		{"failed", pipeline.DeliveryOutcome{Err: errors.New("artifact missing")}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDeliverHandler(&fakeDeliverer{out: tt.out})
			got, err := h.Execute(context.Background(), &models.Job{VideoID: "V1", Profile: "desktop_mp4"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealCycleHandler(t *testing.T) {
	t.Run("runs the cycle and purges", func(t *testing.T) {
		healer := &fakeHealer{report: pipeline.HealReport{Scanned: 3, Redispatch: 1, Enqueued: 2}}
		purged := 0
		h := NewHealCycleHandler(healer, NewHealLock(filepath.Join(t.TempDir(), "heal.lock")), func(context.Context) (int, error) {
			purged++
			return 0, nil
		})

		result, err := h.Execute(context.Background(), &models.Job{Type: models.JobTypeHealCycle})
		require.NoError(t, err)
		assert.Equal(t, 1, healer.cycles)
		assert.Equal(t, 1, purged)
		assert.Contains(t, result, "scanned 3 videos")
		assert.Contains(t, result, "1 re-dispatched (2 tasks)")
	})

	t.Run("skips while another process holds the lock", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "heal.lock")
		other := flock.New(path)
		locked, err := other.TryLock()
		require.NoError(t, err)
		require.True(t, locked)
		defer other.Unlock()

		healer := &fakeHealer{}
		h := NewHealCycleHandler(healer, NewHealLock(path), nil)
		result, err := h.Execute(context.Background(), &models.Job{Type: models.JobTypeHealCycle})
		require.NoError(t, err)
		assert.Zero(t, healer.cycles)
		assert.Equal(t, "heal cycle already running elsewhere", result)
	})

	t.Run("cycle error fails the job", func(t *testing.T) {
		h := NewHealCycleHandler(&fakeHealer{err: errors.New("db down")}, NewHealLock(""), nil)
		_, err := h.Execute(context.Background(), &models.Job{Type: models.JobTypeHealCycle})
		assert.EqualError(t, err, "db down")
	})
}

func TestPurgeHandler(t *testing.T) {
	h := NewPurgeHandler(func(context.Context) (int, error) { return 4, nil })
	result, err := h.Execute(context.Background(), &models.Job{Type: models.JobTypePurgeWorkDir})
	require.NoError(t, err)
	assert.Equal(t, "purged 4 work files", result)
}

type fakeRetriever struct {
	report pipeline.TranslationReport
	err    error
}

func (f *fakeRetriever) RetrieveTranslations(context.Context) (pipeline.TranslationReport, error) {
	return f.report, f.err
}

func TestRetrieveTranslationsHandler(t *testing.T) {
	job := &models.Job{Type: models.JobTypeRetrieveTranslations}

	h := NewRetrieveTranslationsHandler(&fakeRetriever{report: pipeline.TranslationReport{Videos: 3, Ready: 5, Failed: 1}})
	result, err := h.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "retrieved 5 translations for 3 videos, 1 failed", result)

	h = NewRetrieveTranslationsHandler(&fakeRetriever{err: errors.New("db down")})
	_, err = h.Execute(context.Background(), job)
	assert.EqualError(t, err, "db down")
}
