// Package val is the client for the video asset library, the system of
// record that the platform reads playable renditions from.
package val

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/httpclient"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/retry"
)

// ErrNoToken is returned when the token endpoint grants no access token.
var ErrNoToken = errors.New("val token endpoint returned no access token")

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type transcriptStatusRequest struct {
	EdxVideoID string `json:"edx_video_id"`
	Status     string `json:"status"`
}

// Client talks to the VAL REST API with an OAuth2 password-grant token.
type Client struct {
	cfg    config.VALConfig
	http   *httpclient.Client
	logger *slog.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a VAL client. Requests are not retried here; a failed
// push is repaired by the next heal cycle.
func NewClient(cfg config.VALConfig) *Client {
	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Timeout
	hc.Retry = retry.Policy{Attempts: 1}
	return &Client{
		cfg:    cfg,
		http:   httpclient.New(hc),
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = observability.WithComponent(logger, "val")
	return c
}

// WithHTTPClient replaces the outbound HTTP client.
func (c *Client) WithHTTPClient(hc *httpclient.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) videoURL(valID string) string {
	return strings.TrimRight(c.cfg.APIURL, "/") + "/" + url.PathEscape(valID)
}

// Get returns the VAL record, or nil when the VAL does not know the video.
func (c *Client) Get(ctx context.Context, valID string) (*Video, error) {
	var video Video
	err := c.call(ctx, http.MethodGet, c.videoURL(valID), nil, &video)
	if httpclient.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting val video %s: %w", valID, err)
	}
	return &video, nil
}

// Create posts a new record to the collection root.
func (c *Client) Create(ctx context.Context, video *Video) error {
	target := strings.TrimRight(c.cfg.APIURL, "/") + "/"
	if err := c.call(ctx, http.MethodPost, target, video, nil); err != nil {
		return fmt.Errorf("creating val video %s: %w", video.EdxVideoID, err)
	}
	return nil
}

// Update replaces an existing record.
func (c *Client) Update(ctx context.Context, valID string, video *Video) error {
	if err := c.call(ctx, http.MethodPut, c.videoURL(valID), video, nil); err != nil {
		return fmt.Errorf("updating val video %s: %w", valID, err)
	}
	return nil
}

// PatchTranscriptStatus sets only the transcript status of a video.
func (c *Client) PatchTranscriptStatus(ctx context.Context, valID string, status models.ExternalStatus) error {
	body := transcriptStatusRequest{EdxVideoID: valID, Status: string(status)}
	if err := c.call(ctx, http.MethodPatch, c.cfg.TranscriptStatusURL, body, nil); err != nil {
		return fmt.Errorf("patching val transcript status for %s: %w", valID, err)
	}
	return nil
}

// CreateTranscript registers a transcript file uploaded for a video.
func (c *Client) CreateTranscript(ctx context.Context, transcript *Transcript) error {
	if err := c.call(ctx, http.MethodPost, c.cfg.TranscriptCreateURL, transcript, nil); err != nil {
		return fmt.Errorf("creating val transcript for %s: %w", transcript.VideoID, err)
	}
	return nil
}

// call performs an authorised request, fetching a token first if needed and
// once more after a 401.
func (c *Client) call(ctx context.Context, method, target string, in, out any) error {
	token, err := c.accessToken(ctx, false)
	if err != nil {
		return err
	}

	err = c.http.DoJSON(ctx, method, target, bearer(token), in, out)
	if httpclient.StatusCode(err) != http.StatusUnauthorized {
		return err
	}

	c.logger.DebugContext(ctx, "val token rejected, refreshing")
	if token, err = c.accessToken(ctx, true); err != nil {
		return err
	}
	return c.http.DoJSON(ctx, method, target, bearer(token), in, out)
}

func (c *Client) accessToken(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && !refresh {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"username":      {c.cfg.Username},
		"password":      {c.cfg.Password},
	}
	var resp tokenResponse
	if err := c.http.PostForm(ctx, c.cfg.TokenURL, form, &resp); err != nil {
		return "", fmt.Errorf("requesting val token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", ErrNoToken
	}
	c.token = resp.AccessToken
	return c.token, nil
}

func bearer(token string) http.Header {
	return http.Header{httpclient.HeaderAuthorization: []string{"Bearer " + token}}
}
