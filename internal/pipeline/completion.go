package pipeline

import (
	"context"
	"fmt"

	"github.com/jmylchreest/vidpipe/internal/repository"
)

// CompletionTracker is the single definition of which profiles a video
// still lacks. A profile is done once a delivered artifact exists for it.
type CompletionTracker struct {
	videos     repository.VideoRepository
	artifacts  repository.ArtifactRepository
	overencode bool
}

// NewCompletionTracker creates a tracker.
func NewCompletionTracker(videos repository.VideoRepository, artifacts repository.ArtifactRepository) *CompletionTracker {
	return &CompletionTracker{videos: videos, artifacts: artifacts}
}

// Overencode returns a tracker that reports every expected profile as
// remaining, for forced full re-processing.
func (t *CompletionTracker) Overencode() *CompletionTracker {
	c := *t
	c.overencode = true
	return &c
}

// Remaining returns the expected profiles without a delivered artifact. An
// unknown video has nothing remaining.
func (t *CompletionTracker) Remaining(ctx context.Context, videoID string, expected ProfileSet) (ProfileSet, error) {
	if t.overencode {
		return expected.Clone(), nil
	}

	video, err := t.videos.GetByExternalID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("loading video %s: %w", videoID, err)
	}
	if video == nil {
		return NewProfileSet(), nil
	}

	delivered, err := t.artifacts.LatestByProfile(ctx, video.ID)
	if err != nil {
		return nil, fmt.Errorf("loading artifacts for %s: %w", videoID, err)
	}

	remaining := NewProfileSet()
	for name := range expected {
		if _, ok := delivered[name]; !ok {
			remaining.Add(name)
		}
	}
	return remaining, nil
}

// IsReady reports whether nothing but the ignored profiles remains.
func (t *CompletionTracker) IsReady(ctx context.Context, videoID string, expected ProfileSet, ignore ...string) (bool, error) {
	remaining, err := t.Remaining(ctx, videoID, expected)
	if err != nil {
		return false, err
	}
	remaining.Remove(ignore...)
	return len(remaining) == 0, nil
}
