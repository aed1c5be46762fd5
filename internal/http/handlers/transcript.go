package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"mime"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

// CallbackCompleter applies vendor transcript callbacks.
type CallbackCompleter interface {
	Complete(ctx context.Context, cb pipeline.Callback) error
}

// TranscriptHandler receives transcription vendor callbacks.
type TranscriptHandler struct {
	transcripts CallbackCompleter
	token       string
	logger      *slog.Logger
}

// NewTranscriptHandler creates a callback handler. When token is set the
// callbacks must carry it as the final path segment.
func NewTranscriptHandler(transcripts CallbackCompleter, token string) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts, token: token, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *TranscriptHandler) WithLogger(logger *slog.Logger) *TranscriptHandler {
	h.logger = observability.WithComponent(logger, "transcript_callback")
	return h
}

// Register registers the callback routes with the API.
func (h *TranscriptHandler) Register(api huma.API) {
	cielo24 := huma.Operation{
		Method:      "GET",
		Summary:     "Cielo24 completion callback",
		Description: "Marks a Cielo24 transcription job as ready",
		Tags:        []string{"Transcripts"},
	}
	threePlay := huma.Operation{
		Method:      "POST",
		Summary:     "3Play Media completion callback",
		Description: "Applies a 3Play Media transcription state change",
		Tags:        []string{"Transcripts"},
	}

	op := cielo24
	op.OperationID, op.Path = "cielo24Callback", pipeline.Cielo24CallbackPath
	huma.Register(api, op, func(ctx context.Context, input *Cielo24CallbackInput) (*CallbackOutput, error) {
		return h.Cielo24Callback(ctx, "", input)
	})
	op = cielo24
	op.OperationID, op.Path = "cielo24CallbackWithToken", pipeline.Cielo24CallbackPath+"/{token}"
	huma.Register(api, op, func(ctx context.Context, input *Cielo24TokenInput) (*CallbackOutput, error) {
		return h.Cielo24Callback(ctx, input.Token, &input.Cielo24CallbackInput)
	})

	op = threePlay
	op.OperationID, op.Path = "threePlayCallback", pipeline.ThreePlayCallbackPath
	huma.Register(api, op, func(ctx context.Context, input *ThreePlayCallbackInput) (*CallbackOutput, error) {
		return h.ThreePlayCallback(ctx, "", input)
	})
	op = threePlay
	op.OperationID, op.Path = "threePlayCallbackWithToken", pipeline.ThreePlayCallbackPath+"/{token}"
	huma.Register(api, op, func(ctx context.Context, input *ThreePlayTokenInput) (*CallbackOutput, error) {
		return h.ThreePlayCallback(ctx, input.Token, &input.ThreePlayCallbackInput)
	})
}

func (h *TranscriptHandler) authorised(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

// Cielo24CallbackInput carries the identifiers placed in the callback URL
// at submission.
type Cielo24CallbackInput struct {
	JobID    string `query:"job_id"`
	IWPName  string `query:"iwp_name"`
	LangCode string `query:"lang_code"`
	Org      string `query:"org"`
	VideoID  string `query:"video_id"`
}

// Cielo24TokenInput is Cielo24CallbackInput on the tokened route.
type Cielo24TokenInput struct {
	Token string `path:"token"`
	Cielo24CallbackInput
}

// CallbackOutput is the empty callback response.
type CallbackOutput struct{}

// Cielo24Callback marks one language of a Cielo24 job as ready.
func (h *TranscriptHandler) Cielo24Callback(ctx context.Context, token string, input *Cielo24CallbackInput) (*CallbackOutput, error) {
	if !h.authorised(token) {
		return nil, huma.Error403Forbidden("invalid callback token")
	}
	if input.JobID == "" || input.IWPName == "" || input.LangCode == "" || input.Org == "" || input.VideoID == "" {
		h.logger.WarnContext(ctx, "cielo24 callback missing parameters",
			slog.String("job_id", input.JobID),
			slog.String("video_id", input.VideoID),
		)
		return nil, huma.Error400BadRequest("job_id, iwp_name, lang_code, org and video_id are required")
	}

	logger := observability.WithRequestID(h.logger, observability.RequestIDFromContext(ctx))
	logger.InfoContext(ctx, "cielo24 transcript complete",
		slog.String("job_id", input.JobID),
		slog.String("iwp_name", input.IWPName),
		slog.String("lang_code", input.LangCode),
		slog.String("video_id", input.VideoID),
	)

	err := h.transcripts.Complete(ctx, pipeline.Callback{
		Provider:  models.ProviderCielo24,
		ProcessID: input.JobID,
		LangCode:  input.LangCode,
		Org:       input.Org,
		Status:    models.TranscriptStatusReady,
	})
	if err != nil {
		return nil, pipelineError("failed to apply callback", err)
	}
	return &CallbackOutput{}, nil
}

// ThreePlayCallbackInput carries the URL identifiers and the vendor's form
// or JSON body.
type ThreePlayCallbackInput struct {
	Org         string `query:"org"`
	EdxVideoID  string `query:"edx_video_id"`
	LangCode    string `query:"lang_code"`
	ContentType string `header:"Content-Type"`
	RawBody     []byte
}

// ThreePlayTokenInput is ThreePlayCallbackInput on the tokened route.
type ThreePlayTokenInput struct {
	Token string `path:"token"`
	ThreePlayCallbackInput
}

type threePlayNotice struct {
	FileID           string `json:"file_id"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

// ThreePlayCallback applies a 3Play state change. Incomplete or unknown
// notices are acknowledged and ignored so 3Play stops retrying them.
func (h *TranscriptHandler) ThreePlayCallback(ctx context.Context, token string, input *ThreePlayCallbackInput) (*CallbackOutput, error) {
	if !h.authorised(token) {
		return nil, huma.Error403Forbidden("invalid callback token")
	}

	notice, err := parseThreePlayNotice(input.ContentType, input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("unreadable callback body", err)
	}

	logger := observability.WithRequestID(h.logger, observability.RequestIDFromContext(ctx)).With(
		slog.String("file_id", notice.FileID),
		slog.String("edx_video_id", input.EdxVideoID),
		slog.String("lang_code", input.LangCode),
	)
	if notice.FileID == "" || notice.Status == "" || input.Org == "" || input.EdxVideoID == "" || input.LangCode == "" {
		logger.WarnContext(ctx, "3play callback missing attributes")
		return &CallbackOutput{}, nil
	}

	status, ok := pipeline.ParseCallbackStatus(notice.Status)
	if !ok {
		logger.WarnContext(ctx, "3play callback with unknown status", slog.String("status", notice.Status))
		return &CallbackOutput{}, nil
	}
	if status == models.TranscriptStatusFailed {
		logger.WarnContext(ctx, "3play transcription failed", slog.String("error_description", notice.ErrorDescription))
	}

	err = h.transcripts.Complete(ctx, pipeline.Callback{
		Provider:  models.ProviderThreePlay,
		ProcessID: notice.FileID,
		LangCode:  input.LangCode,
		Org:       input.Org,
		Status:    status,
	})
	if err != nil {
		return nil, pipelineError("failed to apply callback", err)
	}
	return &CallbackOutput{}, nil
}

func parseThreePlayNotice(contentType string, body []byte) (threePlayNotice, error) {
	var notice threePlayNotice
	if mt, _, _ := mime.ParseMediaType(contentType); mt == "application/json" {
		err := json.Unmarshal(body, &notice)
		return notice, err
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return notice, err
	}
	notice.FileID = form.Get("file_id")
	notice.Status = form.Get("status")
	notice.ErrorDescription = form.Get("error_description")
	return notice, nil
}
