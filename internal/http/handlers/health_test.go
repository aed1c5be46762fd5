package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/jmylchreest/vidpipe/internal/scheduler"
	"github.com/jmylchreest/vidpipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	status scheduler.RunnerStatus
}

func (f fakeRunner) GetStatus() scheduler.RunnerStatus {
	return f.status
}

func TestHealthHandler_GetLivez(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetLivez(context.Background(), &LivezInput{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, output.Status)
	assert.Equal(t, "ok", output.Body.Status)
}

func TestHealthHandler_GetReadyz(t *testing.T) {
	t.Run("not ready without a database", func(t *testing.T) {
		handler := NewHealthHandler("1.0.0")

		output, err := handler.GetReadyz(context.Background(), &ReadyzInput{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, output.Status)
		assert.Equal(t, "not_ready", output.Body.Status)
		assert.Equal(t, "not_configured", output.Body.Components["database"])
	})

	t.Run("ready with database and running runner", func(t *testing.T) {
		handler := NewHealthHandler("1.0.0").
			WithDB(testutil.NewDB(t)).
			WithRunner(fakeRunner{status: scheduler.RunnerStatus{Running: true, WorkerCount: 2}})

		output, err := handler.GetReadyz(context.Background(), &ReadyzInput{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, output.Status)
		assert.Equal(t, "ready", output.Body.Status)
		assert.Equal(t, "ok", output.Body.Components["database"])
		assert.Equal(t, "ok", output.Body.Components["runner"])
	})

	t.Run("stopped runner is not ready", func(t *testing.T) {
		handler := NewHealthHandler("1.0.0").
			WithDB(testutil.NewDB(t)).
			WithRunner(fakeRunner{})

		output, err := handler.GetReadyz(context.Background(), &ReadyzInput{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, output.Status)
		assert.Equal(t, "stopped", output.Body.Components["runner"])
	})
}

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0").
		WithDB(testutil.NewDB(t)).
		WithRunner(fakeRunner{status: scheduler.RunnerStatus{Running: true, WorkerCount: 4, PendingJobs: 3}}).
		WithWorkDir(t.TempDir())

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	body := output.Body
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.0.0", body.Version)
	assert.NotEmpty(t, body.Uptime)
	assert.NotZero(t, body.CPUInfo.Cores)
	assert.Equal(t, "ok", body.Components.Database.Status)
	assert.Equal(t, 4, body.Components.Runner.Workers)
	assert.Equal(t, int64(3), body.Components.Runner.PendingJobs)
	assert.Equal(t, "ok", body.Checks["runner"])
}

func TestHealthHandler_GetHealthDegraded(t *testing.T) {
	handler := NewHealthHandler("1.0.0").WithRunner(fakeRunner{})

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", output.Body.Status)
	assert.Equal(t, "unknown", output.Body.Components.Database.Status)
	assert.Nil(t, output.Body.Disk)
}
