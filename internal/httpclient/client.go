// Package httpclient is the outbound HTTP client used for the VAL,
// transcription vendors and destination liveness checks.
//
// Requests to each host pass through their own circuit breaker, gateway
// errors are retried under a retry.Policy, compressed responses are decoded
// transparently and credentials are masked in logs.
package httpclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/jmylchreest/vidpipe/internal/retry"
	"github.com/jmylchreest/vidpipe/internal/version"
)

// Common errors returned by the client.
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Default configuration values.
const (
	DefaultTimeout            = 30 * time.Second
	DefaultRetryAttempts      = 3
	DefaultRetryStep          = 1 * time.Second
	DefaultRetryMaxDelay      = 10 * time.Second
	DefaultCircuitThreshold   = 5
	DefaultCircuitTimeout     = 30 * time.Second
	DefaultCircuitHalfOpenMax = 1
	DefaultMaxErrorBody       = 1024
	acceptEncodingHeader      = "gzip, deflate, br"
)

// HTTP header constants.
const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderContentType     = "Content-Type"
	HeaderUserAgent       = "User-Agent"
	HeaderAuthorization   = "Authorization"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration

	// Retry governs attempts on transport errors and gateway status codes.
	// Attempts of 1 disables retries.
	Retry retry.Policy

	// CircuitThreshold is the number of consecutive failures before a host's
	// circuit opens.
	CircuitThreshold   int
	CircuitTimeout     time.Duration
	CircuitHalfOpenMax int

	UserAgent string
	Logger    *slog.Logger

	// BaseClient is the underlying http.Client. Nil builds one from Timeout.
	BaseClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:            DefaultTimeout,
		Retry:              retry.Linear(DefaultRetryAttempts, DefaultRetryStep, DefaultRetryMaxDelay),
		CircuitThreshold:   DefaultCircuitThreshold,
		CircuitTimeout:     DefaultCircuitTimeout,
		CircuitHalfOpenMax: DefaultCircuitHalfOpenMax,
		UserAgent:          version.UserAgent(),
		Logger:             slog.Default(),
	}
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// Client is an HTTP client with per-host circuit breakers and retries.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// New creates a client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}

	baseClient := cfg.BaseClient
	if baseClient == nil {
		baseClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		config:   cfg,
		client:   baseClient,
		logger:   cfg.Logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// NewWithDefaults creates a client with the default configuration.
func NewWithDefaults() *Client {
	return New(DefaultConfig())
}

// Breaker returns the circuit breaker guarding a host.
func (c *Client) Breaker(host string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = NewCircuitBreaker(c.config.CircuitThreshold, c.config.CircuitTimeout, c.config.CircuitHalfOpenMax)
		c.breakers[host] = b
	}
	return b
}

// Do executes a request. Transport errors and gateway status codes are
// retried; the body is replayed through req.GetBody. The caller closes the
// returned body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderUserAgent) == "" && c.config.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, c.config.UserAgent)
	}
	if req.Header.Get(HeaderAcceptEncoding) == "" {
		req.Header.Set(HeaderAcceptEncoding, acceptEncodingHeader)
	}

	breaker := c.Breaker(req.URL.Host)
	target := obfuscateURL(req.URL)

	var resp *http.Response
	err := c.config.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if !breaker.Allow() {
			c.logger.WarnContext(ctx, "circuit breaker open, skipping request",
				slog.String("url", target),
				slog.String("state", breaker.State().String()),
			)
			return retry.Permanent(ErrCircuitOpen)
		}

		attemptReq := req.Clone(ctx)
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return retry.Permanent(fmt.Errorf("replaying request body: %w", err))
			}
			attemptReq.Body = body
		}

		start := time.Now()
		r, err := c.client.Do(attemptReq)
		duration := time.Since(start)

		if err != nil {
			breaker.RecordFailure()
			c.logger.WarnContext(ctx, "request failed",
				slog.String("url", target),
				slog.String("method", req.Method),
				slog.Duration("duration", duration),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return retry.Permanent(err)
			}
			return err
		}

		if isRetryableStatus(r.StatusCode) {
			breaker.RecordFailure()
			c.logger.WarnContext(ctx, "retryable status code",
				slog.String("url", target),
				slog.String("method", req.Method),
				slog.Int("status", r.StatusCode),
				slog.Int("attempt", attempt),
			)
			statusErr := statusError(req, r)
			r.Body.Close()
			return statusErr
		}

		breaker.RecordSuccess()
		c.logger.DebugContext(ctx, "request completed",
			slog.String("url", target),
			slog.String("method", req.Method),
			slog.Int("status", r.StatusCode),
			slog.Duration("duration", duration),
		)
		r.Body = c.wrapDecompression(r)
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(ctx, req)
}

// Head performs a HEAD request and discards the body.
func (c *Client) Head(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

// DoJSON sends in as a JSON body (when non-nil) and decodes a 2xx response
// into out (when non-nil). Other statuses return a *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, rawURL string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set(HeaderContentType, ContentTypeJSON)
	}
	req.Header.Set("Accept", ContentTypeJSON)

	return c.decode(ctx, req, out)
}

// PostForm posts form values and decodes a 2xx JSON response into out.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(HeaderContentType, ContentTypeForm)
	req.Header.Set("Accept", ContentTypeJSON)
	return c.decode(ctx, req, out)
}

func (c *Client) decode(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(req, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response from %s: %w", obfuscateURL(req.URL), err)
	}
	return nil
}

func statusError(req *http.Request, resp *http.Response) *StatusError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxErrorBody))
	return &StatusError{
		Method:     req.Method,
		URL:        obfuscateURL(req.URL),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}

// wrapDecompression decodes gzip, deflate and brotli bodies.
func (c *Client) wrapDecompression(resp *http.Response) io.ReadCloser {
	switch strings.ToLower(resp.Header.Get(HeaderContentEncoding)) {
	case "":
		return resp.Body
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.Warn("failed to create gzip reader, returning raw body",
				slog.String("error", err.Error()),
			)
			return resp.Body
		}
		return &decompressReader{reader: reader, closer: resp.Body}
	case "deflate":
		return &decompressReader{reader: flate.NewReader(resp.Body), closer: resp.Body}
	case "br":
		return &decompressReader{reader: brotli.NewReader(resp.Body), closer: resp.Body}
	default:
		return resp.Body
	}
}

type decompressReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decompressReader) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressReader) Close() error {
	if closer, ok := d.reader.(io.Closer); ok {
		closer.Close()
	}
	return d.closer.Close()
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

var sensitiveParams = []string{
	"password", "pass", "pwd",
	"token", "api_token", "api_key", "apikey", "key", "securekey",
	"secret", "client_secret", "auth", "authorization",
}

// obfuscateURL masks credentials carried in query parameters.
func obfuscateURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	sanitized := *u
	sanitized.User = nil
	query := sanitized.Query()
	for _, param := range sensitiveParams {
		if query.Has(param) {
			query.Set(param, "***")
		}
	}
	sanitized.RawQuery = query.Encode()
	return sanitized.String()
}
