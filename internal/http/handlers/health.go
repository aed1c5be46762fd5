package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dustin/go-humanize"
	"github.com/jmylchreest/vidpipe/internal/scheduler"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"gorm.io/gorm"
)

const slowPingMS = 100

// RunnerStatusProvider reports the local job runner's state.
type RunnerStatusProvider interface {
	GetStatus() scheduler.RunnerStatus
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	runner    RunnerStatusProvider
	workDir   string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithRunner sets the job runner reported on.
func (h *HealthHandler) WithRunner(runner RunnerStatusProvider) *HealthHandler {
	h.runner = runner
	return h
}

// WithWorkDir sets the directory whose filesystem usage is reported.
func (h *HealthHandler) WithWorkDir(dir string) *HealthHandler {
	h.workDir = dir
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// ReadyzInput is the input for the readiness probe.
type ReadyzInput struct{}

// ProbeOutput is the output for both probes.
type ProbeOutput struct {
	Status int
	Body   ProbeResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health with database, runner and host metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "Reports ready once the database answers and the runner is started",
		Tags:        []string{"System"},
	}, h.GetReadyz)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.getDatabaseHealth(ctx)
	runnerHealth := h.getRunnerHealth()

	status := "healthy"
	if dbHealth.Status == "error" || runnerHealth.Status == "stopped" {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(ctx),
			Memory:        h.getMemoryInfo(ctx),
			Disk:          h.getDiskInfo(ctx),
			Components: HealthComponents{
				Database: dbHealth,
				Runner:   runnerHealth,
			},
			Checks: map[string]string{
				"database": dbHealth.Status,
				"runner":   runnerHealth.Status,
			},
		},
	}, nil
}

// GetLivez reports that the process is serving requests.
func (h *HealthHandler) GetLivez(ctx context.Context, input *LivezInput) (*ProbeOutput, error) {
	return &ProbeOutput{Status: 200, Body: ProbeResponse{Status: "ok"}}, nil
}

// GetReadyz reports whether the service can take work.
func (h *HealthHandler) GetReadyz(ctx context.Context, input *ReadyzInput) (*ProbeOutput, error) {
	components := map[string]string{
		"database": "not_configured",
		"runner":   "not_configured",
	}
	ready := true

	if h.db == nil {
		ready = false
	} else if db := h.getDatabaseHealth(ctx); db.Status == "ok" {
		components["database"] = "ok"
	} else {
		components["database"] = db.Status
		ready = false
	}

	if h.runner != nil {
		components["runner"] = h.getRunnerHealth().Status
		if components["runner"] != "ok" {
			ready = false
		}
	}

	if !ready {
		return &ProbeOutput{Status: 503, Body: ProbeResponse{Status: "not_ready", Components: components}}, nil
	}
	return &ProbeOutput{Status: 200, Body: ProbeResponse{Status: "ready", Components: components}}, nil
}

func (h *HealthHandler) getCPUInfo(ctx context.Context) CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	avg, err := load.AvgWithContext(ctx)
	if err == nil && avg != nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15
		if info.Cores > 0 {
			info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
		}
	}
	return info
}

func (h *HealthHandler) getMemoryInfo(ctx context.Context) MemoryInfo {
	const mb = 1024 * 1024
	info := MemoryInfo{}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / mb
		info.UsedMemoryMB = float64(vm.Used) / mb
		info.AvailableMemoryMB = float64(vm.Available) / mb
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if pm, err := proc.MemoryInfoWithContext(ctx); err == nil && pm != nil {
			info.ProcessMemoryMB = float64(pm.RSS) / mb
		}
	}
	return info
}

func (h *HealthHandler) getDiskInfo(ctx context.Context) *DiskInfo {
	if h.workDir == "" {
		return nil
	}
	usage, err := disk.UsageWithContext(ctx, h.workDir)
	if err != nil || usage == nil {
		return nil
	}
	return &DiskInfo{
		Path:        h.workDir,
		Total:       humanize.IBytes(usage.Total),
		Free:        humanize.IBytes(usage.Free),
		UsedPercent: usage.UsedPercent,
	}
}

func (h *HealthHandler) getRunnerHealth() RunnerHealth {
	return runnerHealth(h.runner)
}

func runnerHealth(runner RunnerStatusProvider) RunnerHealth {
	if runner == nil {
		return RunnerHealth{Status: "not_configured"}
	}
	st := runner.GetStatus()
	health := RunnerHealth{
		Status:      "ok",
		Workers:     st.WorkerCount,
		PendingJobs: st.PendingJobs,
		RunningJobs: st.RunningJobs,
	}
	if !st.Running {
		health.Status = "stopped"
	}
	return health
}

func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "ok", ResponseTimeStatus: "healthy"}

	if h.db == nil {
		health.Status = "unknown"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.ConnectionPoolSize = stats.MaxOpenConnections
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000

	switch {
	case err != nil:
		health.Status = "error"
		health.ResponseTimeStatus = "error"
	case health.ResponseTimeMS > slowPingMS:
		health.ResponseTimeStatus = "slow"
	}
	return health
}
