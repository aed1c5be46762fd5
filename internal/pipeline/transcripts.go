package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/jmylchreest/vidpipe/internal/subtitles"
)

// Callback paths, relative to the configured callback base URL.
const (
	Cielo24CallbackPath   = "/api/v1/transcripts/cielo24/callback"
	ThreePlayCallbackPath = "/api/v1/transcripts/3playmedia/callback"
)

// Callback is a vendor's completion notice for one transcription process.
type Callback struct {
	Provider  models.TranscriptProvider
	ProcessID string
	LangCode  string
	Org       string
	Status    models.TranscriptStatus
}

// TranscriptCoordinator starts vendor transcription for delivered videos and
// applies the vendors' completion callbacks.
type TranscriptCoordinator struct {
	transcripts  repository.TranscriptRepository
	videos       repository.VideoRepository
	vendors      map[models.TranscriptProvider]TranscriptionVendor
	reporter     *StatusReporter
	storage      Storage
	cfg          config.StorageConfig
	callbackBase string
	token        string
	logger       *slog.Logger
}

// NewTranscriptCoordinator creates a coordinator for the given vendors.
func NewTranscriptCoordinator(
	transcripts repository.TranscriptRepository,
	videos repository.VideoRepository,
	reporter *StatusReporter,
	callbackBase string,
	vendors ...TranscriptionVendor,
) *TranscriptCoordinator {
	c := &TranscriptCoordinator{
		transcripts:  transcripts,
		videos:       videos,
		vendors:      make(map[models.TranscriptProvider]TranscriptionVendor, len(vendors)),
		reporter:     reporter,
		callbackBase: strings.TrimSuffix(callbackBase, "/"),
		logger:       slog.Default(),
	}
	for _, v := range vendors {
		c.vendors[v.Provider()] = v
	}
	return c
}

// WithLogger sets a custom logger.
func (c *TranscriptCoordinator) WithLogger(logger *slog.Logger) *TranscriptCoordinator {
	c.logger = observability.WithComponent(logger, "transcripts")
	return c
}

// WithStorage sets where converted transcripts are published.
func (c *TranscriptCoordinator) WithStorage(storage Storage, cfg config.StorageConfig) *TranscriptCoordinator {
	c.storage = storage
	c.cfg = cfg
	return c
}

// WithCallbackToken sets the shared token vendors must present in the
// callback path.
func (c *TranscriptCoordinator) WithCallbackToken(token string) *TranscriptCoordinator {
	c.token = token
	return c
}

// CallbackURL returns the completion endpoint a vendor is told to call.
func (c *TranscriptCoordinator) CallbackURL(provider models.TranscriptProvider) string {
	var path string
	switch provider {
	case models.ProviderCielo24:
		path = Cielo24CallbackPath
	case models.ProviderThreePlay:
		path = ThreePlayCallbackPath
	default:
		return ""
	}
	if c.token != "" {
		path += "/" + url.PathEscape(c.token)
	}
	return c.callbackBase + path
}

// Kickoff submits a delivered video to its transcription vendor and records
// one process per vendor job.
func (c *TranscriptCoordinator) Kickoff(ctx context.Context, video *models.Video, mediaURL string) error {
	logger := observability.WithVideo(c.logger, video.ExternalID).With(slog.String("provider", string(video.Provider)))

	vendor, ok := c.vendors[video.Provider]
	if !ok {
		return configErr("transcription kickoff", fmt.Errorf("%w: %q", ErrNoVendor, video.Provider))
	}

	org := ""
	if video.Course != nil {
		org = video.Course.Org()
	}
	creds, err := c.transcripts.GetCredentials(ctx, org, video.Provider)
	if err != nil {
		return fmt.Errorf("loading transcript credentials: %w", err)
	}
	if creds == nil {
		logger.WarnContext(ctx, "no transcript credentials for org", slog.String("org", org))
		return configErr("transcription kickoff", models.ErrCredentialsNotFound)
	}

	submitted, err := vendor.Submit(ctx, SubmitRequest{
		Video:       video,
		MediaURL:    mediaURL,
		Credentials: creds,
		CallbackURL: c.CallbackURL(video.Provider),
		Org:         org,
	})
	for _, p := range submitted {
		status := models.TranscriptStatusInProgress
		if p.Failed {
			status = models.TranscriptStatusFailed
		}
		process := &models.TranscriptProcess{
			VideoID:       video.ID,
			Provider:      video.Provider,
			ProcessID:     p.ProcessID,
			TranslationID: p.TranslationID,
			LangCode:      p.LangCode,
			Status:        status,
		}
		if cerr := c.transcripts.CreateProcess(ctx, process); cerr != nil {
			logger.ErrorContext(ctx, "failed to record transcript process",
				slog.String("process_id", p.ProcessID),
				slog.String("error", cerr.Error()),
			)
		}
	}
	if err != nil {
		return transientErr("submit transcription", err)
	}

	inFlight := 0
	for _, p := range submitted {
		if !p.Failed {
			inFlight++
		}
	}
	if inFlight == 0 {
		logger.WarnContext(ctx, "vendor accepted no transcription jobs")
		return nil
	}

	if err := c.videos.UpdateTranscriptStatus(ctx, video.ID, models.TranscriptStatusInProgress); err != nil {
		return fmt.Errorf("updating transcript status: %w", err)
	}
	if err := c.reporter.ReportTranscriptStatus(ctx, video, models.ExternalStatusTranscriptionInProgress); err != nil {
		logger.WarnContext(ctx, "failed to report transcription start", slog.String("error", err.Error()))
	}

	logger.InfoContext(ctx, "transcription started", slog.Int("processes", inFlight))
	return nil
}

// Complete applies a vendor callback. A ready transcript is downloaded,
// converted to SJSON, uploaded and registered with the VAL before its
// process is marked READY; a 3Play source transcript then orders the
// remaining preferred languages as translations. Once every process of the
// video is ready the video's transcript status becomes READY and is reported.
func (c *TranscriptCoordinator) Complete(ctx context.Context, cb Callback) error {
	logger := c.logger.With(
		slog.String("provider", string(cb.Provider)),
		slog.String("process_id", cb.ProcessID),
		slog.String("lang_code", cb.LangCode),
	)

	process, err := c.transcripts.FindProcess(ctx, cb.Provider, cb.ProcessID, cb.LangCode)
	if err != nil {
		return fmt.Errorf("finding transcript process: %w", err)
	}
	if process == nil {
		return configErr("transcript callback", models.ErrProcessNotFound)
	}

	video, err := c.videos.GetByID(ctx, process.VideoID)
	if err != nil {
		return fmt.Errorf("loading video: %w", err)
	}
	if video == nil {
		return configErr("transcript callback", models.ErrVideoNotFound)
	}
	logger = observability.WithVideo(logger, video.ExternalID)

	if cb.Status != models.TranscriptStatusReady {
		return c.setProcessStatus(ctx, logger, process, cb.Status)
	}

	org := cb.Org
	if org == "" && video.Course != nil {
		org = video.Course.Org()
	}
	creds, err := c.transcripts.GetCredentials(ctx, org, cb.Provider)
	if err != nil {
		return fmt.Errorf("loading transcript credentials: %w", err)
	}
	if creds == nil {
		logger.WarnContext(ctx, "no transcript credentials, marking process failed", slog.String("org", org))
		return c.setProcessStatus(ctx, logger, process, models.TranscriptStatusFailed)
	}

	vendor, ok := c.vendors[cb.Provider]
	if !ok {
		return configErr("transcript callback", fmt.Errorf("%w: %q", ErrNoVendor, cb.Provider))
	}
	srt, err := vendor.FetchTranscript(ctx, creds, process.ProcessID, process.LangCode)
	if err != nil {
		logger.ErrorContext(ctx, "failed to fetch transcript", slog.String("error", err.Error()))
		return c.setProcessStatus(ctx, logger, process, models.TranscriptStatusFailed)
	}
	if err := c.publish(ctx, video, process.LangCode, srt); err != nil {
		if KindOf(err) == KindValidation {
			logger.ErrorContext(ctx, "vendor returned unusable transcript", slog.String("error", err.Error()))
			return c.setProcessStatus(ctx, logger, process, models.TranscriptStatusFailed)
		}
		return err
	}
	if err := c.setProcessStatus(ctx, logger, process, models.TranscriptStatusReady); err != nil {
		return err
	}

	if translator, ok := vendor.(Translator); ok && process.TranslationID == "" {
		c.orderTranslations(ctx, logger, translator, creds, video, process)
	}
	return c.finishIfReady(ctx, logger, video)
}

// orderTranslations asks the vendor for every preferred language other than
// the source and records one process per target under the source file id.
func (c *TranscriptCoordinator) orderTranslations(
	ctx context.Context,
	logger *slog.Logger,
	translator Translator,
	creds *models.TranscriptCredentials,
	video *models.Video,
	source *models.TranscriptProcess,
) {
	var targets []string
	for _, lang := range video.Languages() {
		if lang != source.LangCode {
			targets = append(targets, lang)
		}
	}
	if len(targets) == 0 {
		return
	}

	ordered, err := translator.OrderTranslations(ctx, creds, source.ProcessID, source.LangCode, targets)
	if err != nil {
		logger.ErrorContext(ctx, "failed to order translations", slog.String("error", err.Error()))
		ordered = nil
		for _, lang := range targets {
			ordered = append(ordered, SubmittedProcess{ProcessID: source.ProcessID, LangCode: lang, Failed: true})
		}
	}
	for _, p := range ordered {
		status := models.TranscriptStatusInProgress
		if p.Failed || p.TranslationID == "" {
			status = models.TranscriptStatusFailed
		}
		process := &models.TranscriptProcess{
			VideoID:       video.ID,
			Provider:      source.Provider,
			ProcessID:     source.ProcessID,
			TranslationID: p.TranslationID,
			LangCode:      p.LangCode,
			Status:        status,
		}
		if err := c.transcripts.CreateProcess(ctx, process); err != nil {
			logger.ErrorContext(ctx, "failed to record translation process",
				slog.String("target", p.LangCode),
				slog.String("error", err.Error()),
			)
		}
	}
	logger.InfoContext(ctx, "translations ordered", slog.Any("targets", targets))
}

// TranslationReport summarises a translation retrieval pass.
type TranslationReport struct {
	Videos int
	Ready  int
	Failed int
}

// RetrieveTranslations collects finished translations for every 3Play video
// still in progress. A video whose vendor listing cannot be read is left for
// the next pass.
func (c *TranscriptCoordinator) RetrieveTranslations(ctx context.Context) (report TranslationReport, err error) {
	defer observability.TimedOperationWithError(ctx, c.logger, "retrieve_translations", &err)()

	for provider, vendor := range c.vendors {
		translator, ok := vendor.(Translator)
		if !ok {
			continue
		}
		filter := repository.VideoFilter{
			Provider:         provider,
			TranscriptStatus: models.TranscriptStatusInProgress,
			Limit:            translationPageSize,
		}
		// Finished videos leave the filter, so collect every page first.
		var waiting []*models.Video
		for {
			videos, _, err := c.videos.List(ctx, filter)
			if err != nil {
				return report, fmt.Errorf("listing videos awaiting translations: %w", err)
			}
			waiting = append(waiting, videos...)
			if len(videos) < filter.Limit {
				break
			}
			filter.Offset += filter.Limit
		}
		for _, video := range waiting {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			ready, failed, ok := c.retrieveForVideo(ctx, translator, video)
			if ok {
				report.Videos++
			}
			report.Ready += ready
			report.Failed += failed
		}
	}

	c.logger.InfoContext(ctx, "translation retrieval finished",
		slog.Int("videos", report.Videos),
		slog.Int("ready", report.Ready),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

const translationPageSize = 100

func (c *TranscriptCoordinator) retrieveForVideo(ctx context.Context, translator Translator, video *models.Video) (ready, failed int, ok bool) {
	logger := observability.WithVideo(c.logger, video.ExternalID)

	processes, err := c.transcripts.LatestProcesses(ctx, video.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load transcript processes", slog.String("error", err.Error()))
		return 0, 0, false
	}
	var pending []*models.TranscriptProcess
	for _, p := range processes {
		if p.Status == models.TranscriptStatusInProgress && p.TranslationID != "" {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return 0, 0, false
	}

	org := ""
	if video.Course != nil {
		org = video.Course.Org()
	}
	creds, err := c.transcripts.GetCredentials(ctx, org, video.Provider)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load transcript credentials", slog.String("error", err.Error()))
		return 0, 0, false
	}
	if creds == nil {
		logger.WarnContext(ctx, "no transcript credentials, failing translations", slog.String("org", org))
		for _, p := range pending {
			if c.setProcessStatus(ctx, logger, p, models.TranscriptStatusFailed) == nil {
				failed++
			}
		}
		return 0, failed, true
	}

	fileID := pending[0].ProcessID
	states, err := translator.Translations(ctx, creds, fileID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list translations",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return 0, 0, false
	}

	byID := make(map[string]*models.TranscriptProcess, len(pending))
	for _, p := range pending {
		byID[p.TranslationID] = p
	}
	for _, state := range states {
		process, found := byID[state.ID]
		if !found || !state.Complete {
			continue
		}
		plog := logger.With(slog.String("translation_id", state.ID), slog.String("lang_code", process.LangCode))

		srt, err := translator.FetchTranslation(ctx, creds, fileID, state.ID)
		if err != nil {
			plog.ErrorContext(ctx, "failed to fetch translation", slog.String("error", err.Error()))
			if c.setProcessStatus(ctx, plog, process, models.TranscriptStatusFailed) == nil {
				failed++
			}
			continue
		}
		if err := c.publish(ctx, video, process.LangCode, srt); err != nil {
			plog.ErrorContext(ctx, "failed to publish translation", slog.String("error", err.Error()))
			if KindOf(err) == KindValidation && c.setProcessStatus(ctx, plog, process, models.TranscriptStatusFailed) == nil {
				failed++
			}
			continue
		}
		if c.setProcessStatus(ctx, plog, process, models.TranscriptStatusReady) == nil {
			ready++
		}
	}

	if ready > 0 {
		if err := c.finishIfReady(ctx, logger, video); err != nil {
			logger.WarnContext(ctx, "failed to finish transcripts", slog.String("error", err.Error()))
		}
	}
	return ready, failed, true
}

// TranscriptFormat is the file format transcripts are published in.
const TranscriptFormat = "sjson"

// publish converts SRT to SJSON, uploads it to the transcript bucket and
// registers it with the VAL. Unparseable captions are a validation error.
func (c *TranscriptCoordinator) publish(ctx context.Context, video *models.Video, langCode string, srt []byte) error {
	if c.storage == nil {
		return configErr("publish transcript", ErrNoTranscriptStorage)
	}
	data, err := subtitles.ConvertSRT(srt)
	if err != nil {
		return validationErr("convert transcript", err)
	}

	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	f, err := os.CreateTemp(c.cfg.WorkDir, "transcript-*."+TranscriptFormat)
	if err != nil {
		return fmt.Errorf("creating transcript file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing transcript file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing transcript file: %w", err)
	}

	name := c.cfg.TranscriptPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + "." + TranscriptFormat
	if _, err := c.storage.Upload(ctx, f.Name(), c.cfg.TranscriptBucket, name); err != nil {
		return transientErr("upload transcript", err)
	}
	if err := c.reporter.ReportTranscript(ctx, video, name, langCode); err != nil {
		return err
	}
	observability.WithVideo(c.logger, video.ExternalID).InfoContext(ctx, "transcript published",
		slog.String("name", name),
		slog.String("lang_code", langCode),
	)
	return nil
}

func (c *TranscriptCoordinator) setProcessStatus(ctx context.Context, logger *slog.Logger, process *models.TranscriptProcess, status models.TranscriptStatus) error {
	if err := c.transcripts.UpdateProcessStatus(ctx, process.ID, status); err != nil {
		return fmt.Errorf("updating transcript process: %w", err)
	}
	process.Status = status
	logger.InfoContext(ctx, "transcript process updated", slog.String("status", string(status)))
	return nil
}

// finishIfReady marks the video's transcripts READY once every latest
// process is ready.
func (c *TranscriptCoordinator) finishIfReady(ctx context.Context, logger *slog.Logger, video *models.Video) error {
	processes, err := c.transcripts.LatestProcesses(ctx, video.ID)
	if err != nil {
		return fmt.Errorf("loading transcript processes: %w", err)
	}
	for _, p := range processes {
		if p.Status != models.TranscriptStatusReady {
			return nil
		}
	}

	if err := c.videos.UpdateTranscriptStatus(ctx, video.ID, models.TranscriptStatusReady); err != nil {
		return fmt.Errorf("updating transcript status: %w", err)
	}
	if err := c.reporter.ReportTranscriptStatus(ctx, video, models.ExternalStatusTranscriptReady); err != nil {
		logger.WarnContext(ctx, "failed to report transcript ready", slog.String("error", err.Error()))
	}
	logger.InfoContext(ctx, "all transcripts ready")
	return nil
}

// ParseCallbackStatus maps a vendor's completion state to a transcript status.
func ParseCallbackStatus(state string) (models.TranscriptStatus, bool) {
	switch strings.ToLower(state) {
	case "complete", "completed", "final", "ready":
		return models.TranscriptStatusReady, true
	case "error", "failed", "failure":
		return models.TranscriptStatusFailed, true
	}
	return "", false
}
