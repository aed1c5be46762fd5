package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/database"
	"github.com/jmylchreest/vidpipe/internal/database/migrations"
	"github.com/jmylchreest/vidpipe/internal/media"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/queue"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/jmylchreest/vidpipe/internal/scheduler"
	"github.com/jmylchreest/vidpipe/internal/startup"
	"github.com/jmylchreest/vidpipe/internal/storage"
	"github.com/jmylchreest/vidpipe/internal/transcription"
	"github.com/jmylchreest/vidpipe/internal/urlcheck"
	"github.com/jmylchreest/vidpipe/internal/val"
	"github.com/jmylchreest/vidpipe/internal/youtube"
)

// app holds everything a command needs to drive the pipeline.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *database.DB

	courses repository.CourseRepository
	videos  repository.VideoRepository
	jobs    repository.JobRepository

	broker *queue.Broker
	engine *pipeline.Engine
	lock   *scheduler.HealLock
}

// openDB connects and applies pending migrations.
func openDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// newApp wires the pipeline engine from configuration.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	runner, err := media.NewExecRunner(cfg.FFmpeg.ProbePath, cfg.FFmpeg.Timeout)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ffprobe: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		courses: repository.NewCourseRepository(db.DB),
		videos:  repository.NewVideoRepository(db.DB),
		jobs:    repository.NewJobRepository(db.DB),
		lock:    scheduler.NewHealLock(cfg.Heal.LockFile),
	}
	a.broker = queue.NewBroker(a.jobs).WithLogger(logger)

	deps := pipeline.Deps{
		Courses:     a.courses,
		Videos:      a.videos,
		Profiles:    repository.NewEncodeProfileRepository(db.DB),
		Artifacts:   repository.NewArtifactRepository(db.DB),
		Transcripts: repository.NewTranscriptRepository(db.DB),
		Validator:   media.NewValidator(runner, cfg.FFmpeg.DurationTolerance),
		Prober:      media.NewProber(runner),
		Storage:     store,
		Broker:      a.broker,
		Liveness:    urlcheck.New(cfg.Liveness).WithLogger(logger),
		Approval:    pipeline.CourseHoldApproval{},
		Vendors:     transcription.Vendors(cfg.Transcription),
	}
	if cfg.VAL.Enabled {
		deps.SystemOfRecord = val.NewClient(cfg.VAL).WithLogger(logger)
	}
	if cfg.YouTube.Host != "" {
		deps.Platform = youtube.NewUploader(cfg.YouTube, nil).WithLogger(logger)
	}

	a.engine = pipeline.NewEngine(cfg, deps, logger)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// purgeWorkDir removes stale fetched files from the work directory.
func (a *app) purgeWorkDir(ctx context.Context) (int, error) {
	return startup.PurgeWorkDir(a.logger, a.cfg.Storage.WorkDir, a.cfg.Heal.PurgeMaxAge.Duration())
}

// executor routes local jobs to the pipeline.
func (a *app) executor() *scheduler.Executor {
	exec := scheduler.NewExecutor(a.jobs).WithLogger(a.logger)
	exec.RegisterHandler(models.JobTypeDeliver, scheduler.NewDeliverHandler(a.engine.Delivery))
	exec.RegisterHandler(models.JobTypeHealCycle,
		scheduler.NewHealCycleHandler(a.engine.Heal, a.lock, a.purgeWorkDir).WithLogger(a.logger))
	exec.RegisterHandler(models.JobTypePurgeWorkDir, scheduler.NewPurgeHandler(a.purgeWorkDir))
	exec.RegisterHandler(models.JobTypeRetrieveTranslations, scheduler.NewRetrieveTranslationsHandler(a.engine.Transcripts))
	return exec
}
