// Package startup provides utilities for application startup tasks.
package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// DefaultPurgeAge is how long fetched files may stay in the work directory.
const DefaultPurgeAge = 24 * time.Hour

// PurgeWorkDir removes entries of the work directory last modified before
// maxAge ago. Dotfiles are kept.
//
// Returns the number of entries removed and any error encountered.
func PurgeWorkDir(logger *slog.Logger, workDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(workDir); os.IsNotExist(err) {
		logger.Debug("work directory does not exist, skipping purge",
			"path", workDir,
		)
		return 0, nil
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		logger.Error("failed to read work directory",
			"path", workDir,
			"error", err,
		)
		return 0, err
	}

	if maxAge <= 0 {
		maxAge = DefaultPurgeAge
	}
	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(workDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to stat work file",
				"path", path,
				"error", err,
			)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to purge work file",
				"path", path,
				"error", err,
			)
			continue
		}

		logger.Debug("purged work file",
			"path", path,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	if removed > 0 {
		logger.Info("purged work directory",
			"path", workDir,
			"removed", removed,
		)
	}
	return removed, nil
}

// RecoverInterruptedJobs returns local jobs left running by a previous
// process to pending so the runner picks them up again. Encode tasks held
// by remote workers are left alone.
//
// Returns the number of jobs recovered and any error encountered.
func RecoverInterruptedJobs(ctx context.Context, logger *slog.Logger, jobs repository.JobRepository) (int, error) {
	running, err := jobs.GetRunning(ctx)
	if err != nil {
		logger.Error("failed to get running jobs for recovery",
			"error", err,
		)
		return 0, err
	}

	var recovered int
	for _, job := range running {
		if job.Queue != models.LocalQueue {
			continue
		}

		logger.Warn("recovering interrupted job",
			"job_id", job.ID.String(),
			"type", job.Type,
			"video_id", job.VideoID,
			"locked_by", job.LockedBy,
		)

		if err := jobs.ReleaseJob(ctx, job.ID); err != nil {
			logger.Error("failed to release interrupted job",
				"job_id", job.ID.String(),
				"error", err,
			)
			continue
		}
		recovered++
	}

	return recovered, nil
}
