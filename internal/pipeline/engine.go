package pipeline

import (
	"log/slog"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// Deps are the repositories and capabilities the pipeline runs on. Platform,
// SystemOfRecord and Vendors may be left empty.
type Deps struct {
	Courses     repository.CourseRepository
	Videos      repository.VideoRepository
	Profiles    repository.EncodeProfileRepository
	Artifacts   repository.ArtifactRepository
	Transcripts repository.TranscriptRepository

	Validator      Validator
	Prober         Prober
	Storage        Storage
	Broker         TaskBroker
	Liveness       LivenessChecker
	SystemOfRecord SystemOfRecord
	Platform       PlatformUploader
	Approval       ApprovalChecker
	Vendors        []TranscriptionVendor
}

// Engine holds the wired pipeline components.
type Engine struct {
	Resolver    *ProfileResolver
	Tracker     *CompletionTracker
	Dispatcher  *Dispatcher
	Reporter    *StatusReporter
	Ingest      *IngestCoordinator
	Delivery    *DeliveryCoordinator
	Heal        *HealEngine
	Transcripts *TranscriptCoordinator
}

// NewEngine wires every component from one configuration.
func NewEngine(cfg *config.Config, deps Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	resolver := NewProfileResolver(NewFamilyTable(cfg.Profiles.Families), deps.Profiles).WithLogger(logger)
	if deps.Approval != nil {
		resolver.WithApproval(deps.Approval)
	}
	tracker := NewCompletionTracker(deps.Videos, deps.Artifacts)
	dispatcher := NewDispatcher(deps.Broker, deps.Videos, cfg.Queue).WithLogger(logger)

	reporter := NewStatusReporter(deps.SystemOfRecord, deps.Artifacts, cfg.Profiles).WithLogger(logger)

	transcripts := NewTranscriptCoordinator(
		deps.Transcripts, deps.Videos, reporter,
		cfg.Transcription.CallbackBaseURL, deps.Vendors...,
	).WithLogger(logger).
		WithCallbackToken(cfg.Transcription.CallbackToken).
		WithStorage(deps.Storage, cfg.Storage)

	ingest := NewIngestCoordinator(
		deps.Courses, deps.Videos, deps.Validator, deps.Prober, deps.Storage,
		resolver, dispatcher, reporter, cfg.Storage,
	).WithLogger(logger)

	delivery := NewDeliveryCoordinator(
		deps.Videos, deps.Profiles, deps.Artifacts, resolver, tracker,
		deps.Validator, deps.Prober, deps.Storage, deps.Liveness, reporter,
		cfg.Storage, cfg.Profiles,
	).WithLogger(logger).WithTranscripts(transcripts)
	if deps.Platform != nil {
		delivery.WithPlatform(deps.Platform)
	}

	heal := NewHealEngine(
		deps.Videos, deps.Artifacts, resolver, tracker, dispatcher, reporter,
		cfg.Heal, cfg.Profiles,
	).WithLogger(logger)

	return &Engine{
		Resolver:    resolver,
		Tracker:     tracker,
		Dispatcher:  dispatcher,
		Reporter:    reporter,
		Ingest:      ingest,
		Delivery:    delivery,
		Heal:        heal,
		Transcripts: transcripts,
	}
}
