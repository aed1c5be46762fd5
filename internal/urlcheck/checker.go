// Package urlcheck confirms that a delivered URL is actually being served
// before the delivery is recorded.
package urlcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/httpclient"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/retry"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 20 * time.Second

const maxPlaylistSize = 1 << 20

// Errors returned by the checker.
var (
	ErrNotLive       = errors.New("url is not live")
	ErrEmptyPlaylist = errors.New("playlist has no segments or variants")
)

// Checker implements pipeline.LivenessChecker.
type Checker struct {
	http    *httpclient.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a checker. Requests are not retried; an unreachable URL means
// the delivery is abandoned and picked up again by heal.
func New(cfg config.LivenessConfig) *Checker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := httpclient.DefaultConfig()
	hc.Timeout = timeout
	hc.Retry = retry.Policy{Attempts: 1}
	return &Checker{http: httpclient.New(hc), timeout: timeout, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (c *Checker) WithLogger(logger *slog.Logger) *Checker {
	c.logger = observability.WithComponent(logger, "urlcheck")
	return c
}

// WithHTTPClient replaces the outbound HTTP client.
func (c *Checker) WithHTTPClient(hc *httpclient.Client) *Checker {
	c.http = hc
	return c
}

// Check confirms the URL resolves. file:// URLs must name a regular file,
// .m3u8 URLs must parse as a non-empty playlist, anything else must answer a
// HEAD with a 2xx status.
func (c *Checker) Check(ctx context.Context, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", rawURL, err)
	}

	switch {
	case u.Scheme == "file":
		err = checkFile(u.Path)
	case strings.HasSuffix(strings.ToLower(u.Path), ".m3u8"):
		err = c.CheckPlaylist(ctx, rawURL)
	default:
		err = c.checkHead(ctx, rawURL)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "liveness check failed",
			slog.String("url", u.Redacted()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotLive, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotLive, path)
	}
	return nil
}

func (c *Checker) checkHead(ctx context.Context, rawURL string) error {
	resp, err := c.http.Head(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotLive, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrNotLive, resp.StatusCode)
	}
	return nil
}

// CheckPlaylist fetches an HLS playlist and requires at least one segment.
// A multivariant playlist is followed to its first variant.
func (c *Checker) CheckPlaylist(ctx context.Context, rawURL string) error {
	pl, err := c.fetchPlaylist(ctx, rawURL)
	if err != nil {
		return err
	}

	switch p := pl.(type) {
	case *playlist.Media:
		if len(p.Segments) == 0 {
			return fmt.Errorf("%w: %w", ErrNotLive, ErrEmptyPlaylist)
		}
		return nil
	case *playlist.Multivariant:
		if len(p.Variants) == 0 {
			return fmt.Errorf("%w: %w", ErrNotLive, ErrEmptyPlaylist)
		}
		variantURL, err := resolve(rawURL, p.Variants[0].URI)
		if err != nil {
			return err
		}
		variant, err := c.fetchPlaylist(ctx, variantURL)
		if err != nil {
			return err
		}
		media, ok := variant.(*playlist.Media)
		if !ok || len(media.Segments) == 0 {
			return fmt.Errorf("%w: %w", ErrNotLive, ErrEmptyPlaylist)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown playlist type", ErrNotLive)
}

func (c *Checker) fetchPlaylist(ctx context.Context, rawURL string) (playlist.Playlist, error) {
	resp, err := c.http.Get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLive, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrNotLive, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading playlist: %v", ErrNotLive, err)
	}
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing playlist: %v", ErrNotLive, err)
	}
	return pl, nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing variant uri %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
