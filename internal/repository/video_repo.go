package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/vidpipe/internal/models"
	"gorm.io/gorm"
)

// videoRepo implements VideoRepository using GORM.
//
// Status writes are single conditional UPDATE statements so the heal engine
// and delivery handlers can race on the same row without read-modify-write.
type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) *videoRepo {
	return &videoRepo{db: db}
}

// Create creates a new video.
func (r *videoRepo) Create(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// GetByID retrieves a video by ID.
func (r *videoRepo) GetByID(ctx context.Context, id models.ULID) (*models.Video, error) {
	return r.first(ctx, "getting video by ID", "id = ?", id)
}

// GetByExternalID retrieves a video by its external identifier.
func (r *videoRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	return r.first(ctx, "getting video by external ID", "external_id = ?", externalID)
}

// GetByStudioID retrieves the most recent video carrying a studio identifier.
func (r *videoRepo) GetByStudioID(ctx context.Context, studioID string) (*models.Video, error) {
	if studioID == "" {
		return nil, nil
	}
	return r.first(ctx, "getting video by studio ID", "studio_id = ?", studioID)
}

func (r *videoRepo) first(ctx context.Context, op string, query string, args ...any) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).
		Preload("Course").
		Where(query, args...).
		Order("created_at DESC").
		First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &video, nil
}

// List retrieves videos matching the filter.
func (r *videoRepo) List(ctx context.Context, filter VideoFilter) ([]*models.Video, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Video{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.CourseID.IsZero() {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.TranscriptStatus != "" {
		query = query.Where("transcript_status = ?", filter.TranscriptStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting videos: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var videos []*models.Video
	if err := query.Preload("Course").Order("created_at DESC").Offset(filter.Offset).Limit(limit).Find(&videos).Error; err != nil {
		return nil, 0, fmt.Errorf("listing videos: %w", err)
	}
	return videos, total, nil
}

// ListInWindow retrieves videos whose trans_start lies strictly between from and to.
func (r *videoRepo) ListInWindow(ctx context.Context, from, to time.Time) ([]*models.Video, error) {
	var videos []*models.Video
	err := r.db.WithContext(ctx).
		Preload("Course").
		Where("trans_start > ? AND trans_start < ?", from, to).
		Order("trans_start ASC").
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("listing videos in heal window: %w", err)
	}
	return videos, nil
}

// UpdateMetadata stores the probed original-file metadata. The external
// identifier is not part of the write.
func (r *videoRepo) UpdateMetadata(ctx context.Context, video *models.Video) error {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", video.ID).
		Updates(map[string]any{
			"orig_filesize":   video.OrigFilesize,
			"orig_duration":   video.OrigDuration,
			"orig_bitrate":    video.OrigBitrate,
			"orig_resolution": video.OrigResolution,
			"orig_checksum":   video.OrigChecksum,
		})
	if result.Error != nil {
		return fmt.Errorf("updating video metadata: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrVideoNotFound
	}
	return nil
}

// UpdateStatus sets the status if it differs from the stored one.
func (r *videoRepo) UpdateStatus(ctx context.Context, id models.ULID, to models.VideoStatus) (bool, error) {
	return r.UpdateStatusUnless(ctx, id, to)
}

// UpdateStatusUnless sets the status unless the stored one is to or one of protected.
func (r *videoRepo) UpdateStatusUnless(ctx context.Context, id models.ULID, to models.VideoStatus, protected ...models.VideoStatus) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND status <> ?", id, to)
	if len(protected) > 0 {
		query = query.Where("status NOT IN ?", protected)
	}

	result := query.Update("status", to)
	if result.Error != nil {
		return false, fmt.Errorf("updating video status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkCorruptIfStatus is a compare-and-set from expected to Corrupt File.
func (r *videoRepo) MarkCorruptIfStatus(ctx context.Context, id models.ULID, expected models.VideoStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{
			"status": models.VideoStatusCorrupt,
			"active": false,
		})
	if result.Error != nil {
		return false, fmt.Errorf("marking video corrupt: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetActive sets the active flag.
func (r *videoRepo) SetActive(ctx context.Context, id models.ULID, active bool) error {
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Update("active", active).Error; err != nil {
		return fmt.Errorf("setting video active: %w", err)
	}
	return nil
}

// DisableTranscription clears process_transcription so a re-encode does not
// order a second transcript.
func (r *videoRepo) DisableTranscription(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Update("process_transcription", false).Error; err != nil {
		return fmt.Errorf("disabling video transcription: %w", err)
	}
	return nil
}

// MarkTransStart records the processing start unless one is already set.
func (r *videoRepo) MarkTransStart(ctx context.Context, id models.ULID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND trans_start IS NULL", id).
		Update("trans_start", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("marking video trans start: %w", err)
	}
	return nil
}

// MarkTransEnd records the processing end.
func (r *videoRepo) MarkTransEnd(ctx context.Context, id models.ULID, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Update("trans_end", at.UTC()).Error; err != nil {
		return fmt.Errorf("marking video trans end: %w", err)
	}
	return nil
}

// UpdateTranscriptStatus sets the transcript status.
func (r *videoRepo) UpdateTranscriptStatus(ctx context.Context, id models.ULID, status models.TranscriptStatus) error {
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Update("transcript_status", status).Error; err != nil {
		return fmt.Errorf("updating transcript status: %w", err)
	}
	return nil
}

// Ensure videoRepo implements VideoRepository at compile time.
var _ VideoRepository = (*videoRepo)(nil)
