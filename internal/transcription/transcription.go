// Package transcription holds the clients for the third-party transcript
// vendors a delivered video can be sent to.
package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/httpclient"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/jmylchreest/vidpipe/internal/retry"
)

// Errors returned by the vendor clients.
var (
	ErrInvalidMediaURL   = errors.New("invalid media url")
	ErrUnexpectedReply   = errors.New("unexpected vendor response")
	ErrMissingCredential = errors.New("missing vendor credentials")
)

// Error describes a failed vendor call.
type Error struct {
	Provider models.TranscriptProvider
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Vendors builds every configured vendor client.
func Vendors(cfg config.TranscriptionConfig) []pipeline.TranscriptionVendor {
	hc := newHTTPClient(cfg.Timeout)
	return []pipeline.TranscriptionVendor{
		NewCielo24(cfg, hc),
		NewThreePlay(cfg, hc),
	}
}

func newHTTPClient(timeout time.Duration) *httpclient.Client {
	hc := httpclient.DefaultConfig()
	if timeout > 0 {
		hc.Timeout = timeout
	}
	// A failed submission is retried by the next delivery, not here.
	hc.Retry = retry.Policy{Attempts: 1}
	return httpclient.New(hc)
}

// maxTranscriptSize caps a downloaded transcript.
const maxTranscriptSize = 16 << 20

// fetchText downloads a caption file. Vendors report errors as a JSON
// object with a 200 status, so a body starting with '{' is rejected.
func fetchText(ctx context.Context, hc *httpclient.Client, provider models.TranscriptProvider, op, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := hc.Do(ctx, req)
	if err != nil {
		return nil, &Error{Provider: provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptSize))
	if err != nil {
		return nil, &Error{Provider: provider, Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := data
		if len(body) > httpclient.DefaultMaxErrorBody {
			body = body[:httpclient.DefaultMaxErrorBody]
		}
		return nil, &Error{Provider: provider, Op: op,
			Err: &httpclient.StatusError{Method: req.Method, URL: req.URL.Redacted(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}}
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '{' {
		return nil, &Error{Provider: provider, Op: op, Err: fmt.Errorf("%w: %s", ErrUnexpectedReply, trimmed)}
	}
	return data, nil
}

// buildURL joins path onto base and appends query parameters.
func buildURL(base, path string, query url.Values) string {
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
