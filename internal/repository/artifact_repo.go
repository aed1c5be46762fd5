package repository

import (
	"context"
	"fmt"

	"github.com/jmylchreest/vidpipe/internal/models"
	"gorm.io/gorm"
)

// artifactRepo implements ArtifactRepository using GORM.
type artifactRepo struct {
	db *gorm.DB
}

// NewArtifactRepository creates a new ArtifactRepository.
func NewArtifactRepository(db *gorm.DB) *artifactRepo {
	return &artifactRepo{db: db}
}

// Create records a delivered artifact. DeliveredAt defaults to now.
func (r *artifactRepo) Create(ctx context.Context, artifact *models.DeliveredArtifact) error {
	if artifact.DeliveredAt.IsZero() {
		artifact.DeliveredAt = models.Now()
	}
	if err := r.db.WithContext(ctx).Create(artifact).Error; err != nil {
		return fmt.Errorf("creating delivered artifact: %w", err)
	}
	return nil
}

// LatestByProfile returns the newest artifact per profile name.
func (r *artifactRepo) LatestByProfile(ctx context.Context, videoID models.ULID) (map[string]*models.DeliveredArtifact, error) {
	var artifacts []*models.DeliveredArtifact
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("video_id = ?", videoID).
		Order("delivered_at ASC, id ASC").
		Find(&artifacts).Error
	if err != nil {
		return nil, fmt.Errorf("getting artifacts for video: %w", err)
	}

	latest := make(map[string]*models.DeliveredArtifact, len(artifacts))
	for _, a := range artifacts {
		if a.Profile == nil {
			continue
		}
		latest[a.Profile.Name] = a
	}
	return latest, nil
}

// HasNonHLS reports whether the video has any artifact outside hlsProfile.
func (r *artifactRepo) HasNonHLS(ctx context.Context, videoID models.ULID, hlsProfile string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DeliveredArtifact{}).
		Joins("JOIN encode_profiles ON encode_profiles.id = delivered_artifacts.profile_id").
		Where("delivered_artifacts.video_id = ? AND encode_profiles.name <> ?", videoID, hlsProfile).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting non-hls artifacts: %w", err)
	}
	return count > 0, nil
}

// MarkReported flags artifacts as pushed to the system of record.
func (r *artifactRepo) MarkReported(ctx context.Context, ids []models.ULID) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.DeliveredArtifact{}).
		Where("id IN ?", ids).
		UpdateColumn("reported", true).Error
	if err != nil {
		return fmt.Errorf("marking artifacts reported: %w", err)
	}
	return nil
}

// Ensure artifactRepo implements ArtifactRepository at compile time.
var _ ArtifactRepository = (*artifactRepo)(nil)
