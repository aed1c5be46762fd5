package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultDurationTolerance is how far a worker output may drift from the
// original duration.
const DefaultDurationTolerance = 5 * time.Second

var durationLine = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// corruptMarkers in ffprobe's banner mean the file cannot be used.
var corruptMarkers = []string{
	"Invalid data found when processing input",
	"multiple edit list entries, a/v desync might occur",
	"Duration: 00:00:00.0",
	"Duration: N/A, ",
}

// Validator rejects empty, unreadable and zero-length files, and worker
// outputs whose duration drifts from the original.
type Validator struct {
	runner    Runner
	tolerance time.Duration
}

// NewValidator creates a validator. A zero tolerance uses the default.
func NewValidator(runner Runner, tolerance time.Duration) *Validator {
	if tolerance <= 0 {
		tolerance = DefaultDurationTolerance
	}
	return &Validator{runner: runner, tolerance: tolerance}
}

// Validate implements pipeline.Validator. Only a failure to run ffprobe at
// all is an error; an unusable file is (false, nil).
func (v *Validator) Validate(ctx context.Context, path string, mezzanine bool, originalDuration float64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	_, stderr, err := v.runner.Run(ctx, "-hide_banner", path)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return false, fmt.Errorf("running ffprobe: %w", err)
	}

	duration, ok := parseBanner(stderr)
	if !ok {
		return false, nil
	}
	if mezzanine {
		return true, nil
	}

	drift := math.Abs(duration - originalDuration)
	return drift <= v.tolerance.Seconds(), nil
}

// parseBanner returns the container duration in seconds, or false when the
// banner shows the file is unusable.
func parseBanner(out []byte) (float64, bool) {
	var (
		duration float64
		found    bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		for _, marker := range corruptMarkers {
			if strings.Contains(line, marker) {
				return 0, false
			}
		}
		if m := durationLine.FindStringSubmatch(line); m != nil {
			h, _ := strconv.ParseFloat(m[1], 64)
			mins, _ := strconv.ParseFloat(m[2], 64)
			s, _ := strconv.ParseFloat(m[3], 64)
			duration = (h*60+mins)*60 + s
			found = true
		}
	}
	return duration, found
}
