package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/httpclient"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

// Cielo24 API constants.
const (
	Cielo24APIVersion        = "1"
	DefaultCielo24APIURL     = "https://api.cielo24.com/api/v1"
	DefaultCielo24Turnaround = "STANDARD"
	DefaultCielo24Fidelity   = "PROFESSIONAL"
)

// Cielo24 submits one transcription job per preferred language.
type Cielo24 struct {
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewCielo24 creates a Cielo24 client.
func NewCielo24(cfg config.TranscriptionConfig, hc *httpclient.Client) *Cielo24 {
	base := cfg.Cielo24APIURL
	if base == "" {
		base = DefaultCielo24APIURL
	}
	if hc == nil {
		hc = newHTTPClient(cfg.Timeout)
	}
	return &Cielo24{baseURL: base, http: hc, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (c *Cielo24) WithLogger(logger *slog.Logger) *Cielo24 {
	c.logger = observability.WithComponent(logger, "cielo24")
	return c
}

// Provider implements pipeline.TranscriptionVendor.
func (c *Cielo24) Provider() models.TranscriptProvider {
	return models.ProviderCielo24
}

// Submit creates a job, attaches the media and requests transcription for
// each preferred language. A language whose job was created but whose later
// steps failed is returned as a failed process. An error is returned only
// when no job could be created at all.
func (c *Cielo24) Submit(ctx context.Context, req pipeline.SubmitRequest) ([]pipeline.SubmittedProcess, error) {
	if req.Credentials == nil || req.Credentials.APIKey == "" {
		return nil, &Error{Provider: models.ProviderCielo24, Op: "submit", Err: ErrMissingCredential}
	}
	logger := observability.WithVideo(c.logger, req.Video.ExternalID)

	var (
		processes []pipeline.SubmittedProcess
		errs      []error
	)
	for _, lang := range req.Video.Languages() {
		jobID, err := c.createJob(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "cielo24 job creation failed",
				slog.String("lang_code", lang),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}

		process := pipeline.SubmittedProcess{ProcessID: jobID, LangCode: lang}
		if err := c.addMedia(ctx, req, jobID); err != nil {
			process.Failed = true
			errs = append(errs, err)
		} else if err := c.performTranscription(ctx, req, jobID, lang); err != nil {
			process.Failed = true
			errs = append(errs, err)
		}
		if process.Failed {
			logger.ErrorContext(ctx, "cielo24 request failed",
				slog.String("lang_code", lang),
				slog.String("job_id", jobID),
				slog.String("error", errs[len(errs)-1].Error()),
			)
		}
		processes = append(processes, process)
	}

	if len(processes) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return processes, nil
}

func (c *Cielo24) createJob(ctx context.Context, req pipeline.SubmitRequest) (string, error) {
	var resp struct {
		JobID string `json:"JobId"`
	}
	err := c.get(ctx, "job/new", url.Values{
		"v":         {Cielo24APIVersion},
		"language":  {req.Video.SourceLanguage},
		"api_token": {req.Credentials.APIKey},
		"job_name":  {req.Video.StudioID},
	}, &resp)
	if err != nil {
		return "", &Error{Provider: models.ProviderCielo24, Op: "create job", Err: err}
	}
	if resp.JobID == "" {
		return "", &Error{Provider: models.ProviderCielo24, Op: "create job", Err: ErrUnexpectedReply}
	}
	return resp.JobID, nil
}

func (c *Cielo24) addMedia(ctx context.Context, req pipeline.SubmitRequest, jobID string) error {
	var resp struct {
		TaskID string `json:"TaskId"`
	}
	err := c.get(ctx, "job/add_media", url.Values{
		"v":         {Cielo24APIVersion},
		"job_id":    {jobID},
		"api_token": {req.Credentials.APIKey},
		"media_url": {req.MediaURL},
	}, &resp)
	if err != nil {
		return &Error{Provider: models.ProviderCielo24, Op: "add media", Err: err}
	}
	if resp.TaskID == "" {
		return &Error{Provider: models.ProviderCielo24, Op: "add media", Err: ErrUnexpectedReply}
	}
	return nil
}

func (c *Cielo24) performTranscription(ctx context.Context, req pipeline.SubmitRequest, jobID, lang string) error {
	options, _ := json.Marshal(map[string][]string{"return_iwp": {"FINAL"}})

	var resp struct {
		TaskID string `json:"TaskId"`
	}
	err := c.get(ctx, "job/perform_transcription", url.Values{
		"v":                      {Cielo24APIVersion},
		"job_id":                 {jobID},
		"target_language":        {lang},
		"callback_url":           {cielo24CallbackURL(req, jobID, lang)},
		"api_token":              {req.Credentials.APIKey},
		"priority":               {orDefault(req.Video.Cielo24Turnaround, DefaultCielo24Turnaround)},
		"transcription_fidelity": {orDefault(req.Video.Cielo24Fidelity, DefaultCielo24Fidelity)},
		"options":                {string(options)},
	}, &resp)
	if err != nil {
		return &Error{Provider: models.ProviderCielo24, Op: "perform transcription", Err: err}
	}
	if resp.TaskID == "" {
		return &Error{Provider: models.ProviderCielo24, Op: "perform transcription", Err: ErrUnexpectedReply}
	}
	return nil
}

// FetchTranscript downloads the finished job's captions as SRT.
func (c *Cielo24) FetchTranscript(ctx context.Context, creds *models.TranscriptCredentials, processID, langCode string) ([]byte, error) {
	if creds == nil || creds.APIKey == "" {
		return nil, &Error{Provider: models.ProviderCielo24, Op: "fetch transcript", Err: ErrMissingCredential}
	}
	target := buildURL(c.baseURL, "job/get_caption", url.Values{
		"v":              {Cielo24APIVersion},
		"job_id":         {processID},
		"api_token":      {creds.APIKey},
		"caption_format": {"SRT"},
	})
	return fetchText(ctx, c.http, models.ProviderCielo24, "fetch transcript", target)
}

func (c *Cielo24) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.http.DoJSON(ctx, http.MethodGet, buildURL(c.baseURL, path, query), nil, nil, out)
}

// cielo24CallbackURL keeps {iwp_name} literal; Cielo24 substitutes it when
// calling back.
func cielo24CallbackURL(req pipeline.SubmitRequest, jobID, lang string) string {
	return fmt.Sprintf("%s?job_id=%s&iwp_name={iwp_name}&lang_code=%s&org=%s&video_id=%s",
		req.CallbackURL,
		url.QueryEscape(jobID),
		url.QueryEscape(lang),
		url.QueryEscape(req.Org),
		url.QueryEscape(req.Video.StudioID),
	)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
