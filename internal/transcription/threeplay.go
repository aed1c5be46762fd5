package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/httpclient"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

// 3Play Media API constants.
const (
	DefaultThreePlayAPIURL     = "https://api.3playmedia.com"
	DefaultThreePlayTurnaround = "default"
	threePlayMediaType         = "video/mp4"
	threePlayBatch             = "Default"
	DefaultThreePlayStaticURL  = "https://static.3playmedia.com"
	threePlayServiceLevel      = "standard"
	threePlayTranslationDone   = "complete"
)

// threePlayLanguage is one entry of the available languages listing.
type threePlayLanguage struct {
	LanguageID int    `json:"language_id"`
	ISOCode    string `json:"iso_639_1_code"`
}

type threePlayTranslationService struct {
	ID             json.Number `json:"id"`
	SourceLanguage string      `json:"source_language_iso_639_1_code"`
	TargetLanguage string      `json:"target_language_iso_639_1_code"`
	ServiceLevel   string      `json:"service_level"`
}

type threePlayTranslationOrder struct {
	APIKey               string `json:"apikey"`
	APISecretKey         string `json:"api_secret_key"`
	TranslationServiceID string `json:"translation_service_id"`
}

type threePlayTranslation struct {
	ID             json.Number `json:"id"`
	TargetLanguage string      `json:"target_language_iso_639_1_code"`
	State          string      `json:"state"`
}

type threePlayUpload struct {
	Link            string `json:"link"`
	APIKey          string `json:"apikey"`
	APISecretKey    string `json:"api_secret_key"`
	TurnaroundLevel string `json:"turnaround_level"`
	CallbackURL     string `json:"callback_url"`
	BatchName       string `json:"batch_name"`
	LanguageID      int    `json:"language_id,omitempty"`
}

// ThreePlay submits a video once, in its source language, and orders
// translations into the remaining preferred languages once the source
// transcript is done.
type ThreePlay struct {
	baseURL    string
	staticURL  string
	turnaround string
	http       *httpclient.Client
	logger     *slog.Logger
}

// NewThreePlay creates a 3Play Media client.
func NewThreePlay(cfg config.TranscriptionConfig, hc *httpclient.Client) *ThreePlay {
	base := cfg.ThreePlayAPIURL
	if base == "" {
		base = DefaultThreePlayAPIURL
	}
	if hc == nil {
		hc = newHTTPClient(cfg.Timeout)
	}
	return &ThreePlay{
		baseURL:    base,
		staticURL:  orDefault(cfg.ThreePlayTranscriptURL, DefaultThreePlayStaticURL),
		turnaround: orDefault(cfg.DefaultTurnaround, DefaultThreePlayTurnaround),
		http:       hc,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (t *ThreePlay) WithLogger(logger *slog.Logger) *ThreePlay {
	t.logger = observability.WithComponent(logger, "threeplay")
	return t
}

// Provider implements pipeline.TranscriptionVendor.
func (t *ThreePlay) Provider() models.TranscriptProvider {
	return models.ProviderThreePlay
}

// Submit checks the media URL serves an mp4, resolves the source language
// and uploads the media link. The returned process id is the 3Play file id.
func (t *ThreePlay) Submit(ctx context.Context, req pipeline.SubmitRequest) ([]pipeline.SubmittedProcess, error) {
	if req.Credentials == nil || req.Credentials.APIKey == "" {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "submit", Err: ErrMissingCredential}
	}
	if err := t.validateMediaURL(ctx, req.MediaURL); err != nil {
		return nil, err
	}

	languages, err := t.availableLanguages(ctx, req.Credentials.APIKey)
	if err != nil {
		return nil, err
	}

	upload := threePlayUpload{
		Link:            req.MediaURL,
		APIKey:          req.Credentials.APIKey,
		APISecretKey:    req.Credentials.APISecret,
		TurnaroundLevel: orDefault(req.Video.ThreePlayTurnaround, t.turnaround),
		CallbackURL:     threePlayCallbackURL(req),
		BatchName:       threePlayBatch,
	}
	for _, l := range languages {
		if l.ISOCode == req.Video.SourceLanguage {
			upload.LanguageID = l.LanguageID
			break
		}
	}

	fileID, err := t.upload(ctx, upload)
	if err != nil {
		return nil, err
	}

	observability.WithVideo(t.logger, req.Video.ExternalID).InfoContext(ctx, "3play transcription started",
		slog.String("file_id", fileID),
		slog.String("source_language", req.Video.SourceLanguage),
	)
	return []pipeline.SubmittedProcess{{ProcessID: fileID, LangCode: req.Video.SourceLanguage}}, nil
}

// threePlayCallbackURL carries the identifiers 3Play does not echo back in
// its callback body.
func threePlayCallbackURL(req pipeline.SubmitRequest) string {
	q := url.Values{
		"org":          {req.Org},
		"edx_video_id": {req.Video.ValID()},
		"lang_code":    {req.Video.SourceLanguage},
	}
	return req.CallbackURL + "?" + q.Encode()
}

func (t *ThreePlay) validateMediaURL(ctx context.Context, mediaURL string) error {
	if mediaURL == "" {
		return &Error{Provider: models.ProviderThreePlay, Op: "validate media", Err: ErrInvalidMediaURL}
	}
	resp, err := t.http.Head(ctx, mediaURL)
	if err != nil {
		return &Error{Provider: models.ProviderThreePlay, Op: "validate media", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Provider: models.ProviderThreePlay, Op: "validate media",
			Err: fmt.Errorf("%w: status %d", ErrInvalidMediaURL, resp.StatusCode)}
	}
	if ct := resp.Header.Get(httpclient.HeaderContentType); ct != threePlayMediaType {
		return &Error{Provider: models.ProviderThreePlay, Op: "validate media",
			Err: fmt.Errorf("%w: content-type %q, want %q", ErrInvalidMediaURL, ct, threePlayMediaType)}
	}
	return nil
}

// availableLanguages lists 3Play's languages. An object in place of the
// list is an error report.
func (t *ThreePlay) availableLanguages(ctx context.Context, apiKey string) ([]threePlayLanguage, error) {
	target := buildURL(t.baseURL, "caption_imports/available_languages/", url.Values{"apikey": {apiKey}})
	var raw json.RawMessage
	if err := t.http.DoJSON(ctx, http.MethodGet, target, nil, nil, &raw); err != nil {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "list languages", Err: err}
	}
	var languages []threePlayLanguage
	if err := json.Unmarshal(raw, &languages); err != nil {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "list languages",
			Err: fmt.Errorf("%w: %s", ErrUnexpectedReply, strings.TrimSpace(string(raw)))}
	}
	return languages, nil
}

// upload posts the media link. 3Play answers with the bare file id; a JSON
// object is an error report.
func (t *ThreePlay) upload(ctx context.Context, upload threePlayUpload) (string, error) {
	body, err := json.Marshal(upload)
	if err != nil {
		return "", fmt.Errorf("encoding upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildURL(t.baseURL, "files/", nil), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(httpclient.HeaderContentType, httpclient.ContentTypeJSON)

	resp, err := t.http.Do(ctx, req)
	if err != nil {
		return "", &Error{Provider: models.ProviderThreePlay, Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpclient.DefaultMaxErrorBody))
	if err != nil {
		return "", &Error{Provider: models.ProviderThreePlay, Op: "upload", Err: err}
	}
	text := strings.TrimSpace(string(data))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Provider: models.ProviderThreePlay, Op: "upload",
			Err: &httpclient.StatusError{Method: req.Method, URL: req.URL.Redacted(), StatusCode: resp.StatusCode, Body: text}}
	}
	if text == "" || strings.HasPrefix(text, "{") {
		return "", &Error{Provider: models.ProviderThreePlay, Op: "upload", Err: fmt.Errorf("%w: %s", ErrUnexpectedReply, text)}
	}
	return strings.Trim(text, `"`), nil
}

// FetchTranscript downloads the source-language transcript as SRT.
func (t *ThreePlay) FetchTranscript(ctx context.Context, creds *models.TranscriptCredentials, processID, _ string) ([]byte, error) {
	if creds == nil || creds.APIKey == "" {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "fetch transcript", Err: ErrMissingCredential}
	}
	target := buildURL(t.staticURL, "files/"+url.PathEscape(processID)+"/transcript.srt", url.Values{"apikey": {creds.APIKey}})
	return fetchText(ctx, t.http, models.ProviderThreePlay, "fetch transcript", target)
}

// OrderTranslations places one standard-level translation order per target.
// A target without a matching service, or whose order was refused, comes
// back failed. An error means the services could not be listed.
func (t *ThreePlay) OrderTranslations(
	ctx context.Context,
	creds *models.TranscriptCredentials,
	fileID, source string,
	targets []string,
) ([]pipeline.SubmittedProcess, error) {
	if creds == nil || creds.APIKey == "" {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "order translations", Err: ErrMissingCredential}
	}
	services, err := t.translationServices(ctx, creds.APIKey)
	if err != nil {
		return nil, err
	}

	logger := t.logger.With(slog.String("file_id", fileID))
	processes := make([]pipeline.SubmittedProcess, 0, len(targets))
	for _, target := range targets {
		process := pipeline.SubmittedProcess{ProcessID: fileID, LangCode: target}
		serviceID := standardService(services, source, target)
		if serviceID == "" {
			logger.WarnContext(ctx, "no standard translation service",
				slog.String("source", source),
				slog.String("target", target),
			)
			process.Failed = true
			processes = append(processes, process)
			continue
		}

		translationID, err := t.orderTranslation(ctx, creds, fileID, serviceID)
		if err != nil {
			logger.ErrorContext(ctx, "translation order failed",
				slog.String("target", target),
				slog.String("error", err.Error()),
			)
			process.Failed = true
		}
		process.TranslationID = translationID
		processes = append(processes, process)
	}
	return processes, nil
}

// Translations lists the translations ordered for a file.
func (t *ThreePlay) Translations(ctx context.Context, creds *models.TranscriptCredentials, fileID string) ([]pipeline.Translation, error) {
	if creds == nil || creds.APIKey == "" {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "list translations", Err: ErrMissingCredential}
	}
	target := buildURL(t.staticURL, "files/"+url.PathEscape(fileID)+"/translations", url.Values{"apikey": {creds.APIKey}})
	var raw json.RawMessage
	if err := t.http.DoJSON(ctx, http.MethodGet, target, nil, nil, &raw); err != nil {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "list translations", Err: err}
	}
	var listed []threePlayTranslation
	if err := json.Unmarshal(raw, &listed); err != nil {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "list translations",
			Err: fmt.Errorf("%w: %s", ErrUnexpectedReply, strings.TrimSpace(string(raw)))}
	}
	translations := make([]pipeline.Translation, 0, len(listed))
	for _, tr := range listed {
		translations = append(translations, pipeline.Translation{
			ID:       tr.ID.String(),
			LangCode: tr.TargetLanguage,
			Complete: tr.State == threePlayTranslationDone,
		})
	}
	return translations, nil
}

// FetchTranslation downloads a finished translation as SRT.
func (t *ThreePlay) FetchTranslation(ctx context.Context, creds *models.TranscriptCredentials, fileID, translationID string) ([]byte, error) {
	if creds == nil || creds.APIKey == "" {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "fetch translation", Err: ErrMissingCredential}
	}
	path := "files/" + url.PathEscape(fileID) + "/translations/" + url.PathEscape(translationID) + "/captions.srt"
	target := buildURL(t.staticURL, path, url.Values{"apikey": {creds.APIKey}})
	return fetchText(ctx, t.http, models.ProviderThreePlay, "fetch translation", target)
}

func (t *ThreePlay) translationServices(ctx context.Context, apiKey string) ([]threePlayTranslationService, error) {
	target := buildURL(t.staticURL, "translation_services", url.Values{"apikey": {apiKey}})
	var raw json.RawMessage
	if err := t.http.DoJSON(ctx, http.MethodGet, target, nil, nil, &raw); err != nil {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "list translation services", Err: err}
	}
	var services []threePlayTranslationService
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, &Error{Provider: models.ProviderThreePlay, Op: "list translation services",
			Err: fmt.Errorf("%w: %s", ErrUnexpectedReply, strings.TrimSpace(string(raw)))}
	}
	return services, nil
}

func standardService(services []threePlayTranslationService, source, target string) string {
	for _, s := range services {
		if s.SourceLanguage == source && s.TargetLanguage == target && s.ServiceLevel == threePlayServiceLevel {
			return s.ID.String()
		}
	}
	return ""
}

// orderTranslation returns the new translation's id. 3Play reports a
// refused order with success=false and a 200 status.
func (t *ThreePlay) orderTranslation(ctx context.Context, creds *models.TranscriptCredentials, fileID, serviceID string) (string, error) {
	order := threePlayTranslationOrder{
		APIKey:               creds.APIKey,
		APISecretKey:         creds.APISecret,
		TranslationServiceID: serviceID,
	}
	var resp struct {
		Success       bool        `json:"success"`
		TranslationID json.Number `json:"translation_id"`
	}
	target := buildURL(t.baseURL, "files/"+url.PathEscape(fileID)+"/translations/order", nil)
	if err := t.http.DoJSON(ctx, http.MethodPost, target, nil, order, &resp); err != nil {
		return "", &Error{Provider: models.ProviderThreePlay, Op: "order translation", Err: err}
	}
	if !resp.Success || resp.TranslationID == "" {
		return "", &Error{Provider: models.ProviderThreePlay, Op: "order translation", Err: ErrUnexpectedReply}
	}
	return resp.TranslationID.String(), nil
}
