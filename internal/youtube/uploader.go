// Package youtube hands finished files to the YouTube partner upload SFTP
// drop, together with the CMS metadata sidecar.
package youtube

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

// DeliveryMarker is the empty file that tells YouTube a drop is complete.
const DeliveryMarker = "delivery.complete"

// Uploader implements pipeline.PlatformUploader over SFTP.
type Uploader struct {
	root   string
	dial   Dialer
	now    func() time.Time
	logger *slog.Logger
}

// NewUploader creates an uploader using the given dialer.
func NewUploader(cfg config.YouTubeConfig, dial Dialer) *Uploader {
	if dial == nil {
		dial = SFTPDialer(cfg)
	}
	return &Uploader{
		root:   cfg.RemoteRoot,
		dial:   dial,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (u *Uploader) WithLogger(logger *slog.Logger) *Uploader {
	u.logger = observability.WithComponent(logger, "youtube")
	return u
}

// Upload creates a directory named for the current unix time and writes the
// video, its CSV sidecar and the delivery marker into it, in that order.
func (u *Uploader) Upload(ctx context.Context, h pipeline.HandOff) error {
	logger := observability.WithVideo(u.logger, h.Video.ExternalID)

	title := h.Video.ClientTitle
	if title == "" {
		title = h.FileName
	}
	var channel, logon string
	if h.Course != nil {
		channel = h.Course.YouTubeChannel
		logon = h.Course.YouTubeLogon
	}
	sidecar, err := SidecarCSV(Metadata{
		FileName: h.FileName,
		Channel:  channel,
		CustomID: h.Video.ExternalID,
		Title:    FoldTitle(title),
	})
	if err != nil {
		return fmt.Errorf("rendering sidecar: %w", err)
	}

	fs, err := u.dial(ctx, logon)
	if err != nil {
		return fmt.Errorf("connecting to youtube: %w", err)
	}
	defer fs.Close()

	dir := strconv.FormatInt(u.now().Unix(), 10)
	if u.root != "" {
		dir = path.Join(u.root, dir)
	}
	if err := fs.Mkdir(dir); err != nil {
		return fmt.Errorf("creating remote directory %s: %w", dir, err)
	}

	if err := putFile(fs, path.Join(dir, h.FileName), h.LocalPath); err != nil {
		return err
	}
	csvName := strings.TrimSuffix(h.FileName, path.Ext(h.FileName)) + ".csv"
	if err := put(fs, path.Join(dir, csvName), bytes.NewReader(sidecar)); err != nil {
		return err
	}
	if err := put(fs, path.Join(dir, DeliveryMarker), bytes.NewReader(nil)); err != nil {
		return err
	}

	logger.InfoContext(ctx, "youtube hand-off complete",
		slog.String("remote_dir", dir),
		slog.String("file", h.FileName),
	)
	return nil
}

func putFile(fs RemoteFS, remote, local string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("opening %s: %w", local, err)
	}
	defer f.Close()
	return put(fs, remote, f)
}

func put(fs RemoteFS, remote string, r io.Reader) error {
	w, err := fs.Create(remote)
	if err != nil {
		return fmt.Errorf("creating %s: %w", remote, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", remote, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", remote, err)
	}
	return nil
}
