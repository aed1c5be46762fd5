package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	internalhttp "github.com/jmylchreest/vidpipe/internal/http"
	"github.com/jmylchreest/vidpipe/internal/http/handlers"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/scheduler"
	"github.com/jmylchreest/vidpipe/internal/startup"
	"github.com/jmylchreest/vidpipe/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vidpipe server",
	Long: `Start the vidpipe HTTP API, the local job runner and the heal scheduler.

The server provides:
- Ingest, worker task and video endpoints under /api/v1
- Transcription vendor callbacks
- Health probes at /health, /livez and /readyz
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().Bool("no-heal", false, "Do not schedule heal cycles from this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	cfg := appConfig

	cfg.Server.Host = stringOverride(cmd.Flags(), "host", cfg.Server.Host)
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	noHeal, _ := cmd.Flags().GetBool("no-heal")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := startup.RecoverInterruptedJobs(ctx, logger, a.jobs); err != nil {
		logger.Warn("failed to recover interrupted jobs", slog.String("error", err.Error()))
	}

	runner := scheduler.NewRunner(a.jobs, a.executor()).
		WithLogger(logger).
		WithConfig(scheduler.RunnerConfigFrom(cfg.Runner))
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting job runner: %w", err)
	}
	defer runner.Stop()

	schedules := []scheduler.Schedule{
		{JobType: models.JobTypeRetrieveTranslations, Cron: cfg.Transcription.TranslationSchedule},
	}
	if cfg.Heal.Enabled && !noHeal {
		schedules = append(schedules,
			scheduler.Schedule{JobType: models.JobTypeHealCycle, Cron: cfg.Heal.Schedule},
			scheduler.Schedule{JobType: models.JobTypePurgeWorkDir, Cron: cfg.Heal.PurgeSchedule},
		)
	}
	sched := scheduler.NewScheduler(a.broker, schedules...).WithLogger(logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(cfg.Server), logger, version.Version)
	server.Router().Get("/docs", handlers.NewDocsHandler("vidpipe API", "/openapi.yaml").ServeHTTP)
	registerHandlers(server, a, runner)

	logger.Info("starting vidpipe server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
		slog.Bool("heal", cfg.Heal.Enabled && !noHeal),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		if _, err := a.purgeWorkDir(gctx); err != nil {
			logger.Warn("failed to purge work directory", slog.String("error", err.Error()))
		}
		return nil
	})
	return g.Wait()
}

func registerHandlers(server *internalhttp.Server, a *app, runner *scheduler.Runner) {
	api := server.API()
	e := a.engine

	handlers.NewHealthHandler(version.Version).
		WithDB(a.db.DB).
		WithRunner(runner).
		WithWorkDir(a.cfg.Storage.WorkDir).
		Register(api)
	handlers.NewJobHandler(a.jobs).WithRunner(runner).Register(api)
	handlers.NewIngestHandler(e.Ingest, a.courses).Register(api)
	handlers.NewTaskHandler(a.broker).Register(api)
	handlers.NewVideoHandler(a.videos, e.Resolver, e.Tracker, e.Heal).WithLogger(a.logger).Register(api)
	handlers.NewTranscriptHandler(e.Transcripts, a.cfg.Transcription.CallbackToken).WithLogger(a.logger).Register(api)
}
