// Package media probes and validates media files with ffprobe.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrFFprobeNotFound is returned when no ffprobe binary can be located.
var ErrFFprobeNotFound = errors.New("ffprobe not found")

// Runner executes ffprobe with the given arguments.
type Runner interface {
	// Run returns stdout and stderr. A non-zero exit is reported through err
	// with both outputs still populated.
	Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs an ffprobe binary.
type ExecRunner struct {
	Path    string
	Timeout time.Duration
}

// NewExecRunner locates ffprobe. An empty path searches PATH.
func NewExecRunner(path string, timeout time.Duration) (*ExecRunner, error) {
	if path == "" {
		found, err := exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFFprobeNotFound, err)
		}
		path = found
	}
	return &ExecRunner{Path: path, Timeout: timeout}, nil
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("ffprobe timeout after %v", r.Timeout)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
