package media

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

// ProbeResult is the part of the ffprobe JSON output the pipeline reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	BitRate   string `json:"bit_rate,omitempty"`
}

// Prober reads duration, bitrate, resolution, size and checksum of a file.
type Prober struct {
	runner Runner
}

// NewProber creates a prober over an ffprobe runner.
func NewProber(runner Runner) *Prober {
	return &Prober{runner: runner}
}

// Probe implements pipeline.Prober. Bitrate is reported as "<n> kb/s".
func (p *Prober) Probe(ctx context.Context, path string) (pipeline.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return pipeline.Metadata{}, fmt.Errorf("stat %s: %w", path, err)
	}

	stdout, _, err := p.runner.Run(ctx,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return pipeline.Metadata{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(stdout, &result); err != nil {
		return pipeline.Metadata{}, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	checksum, err := fileMD5(path)
	if err != nil {
		return pipeline.Metadata{}, err
	}

	meta := pipeline.Metadata{
		Filesize: info.Size(),
		Checksum: checksum,
	}
	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
		meta.Duration = d
	}
	if br, err := strconv.ParseInt(result.Format.BitRate, 10, 64); err == nil {
		meta.Bitrate = fmt.Sprintf("%d kb/s", br/1000)
	}
	for _, s := range result.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			meta.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
			break
		}
	}
	return meta, nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
