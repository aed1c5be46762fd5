package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/vidpipe/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transcriptRepo implements TranscriptRepository using GORM.
type transcriptRepo struct {
	db *gorm.DB
}

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(db *gorm.DB) *transcriptRepo {
	return &transcriptRepo{db: db}
}

// CreateProcess records a submitted transcription or translation.
func (r *transcriptRepo) CreateProcess(ctx context.Context, process *models.TranscriptProcess) error {
	if err := r.db.WithContext(ctx).Create(process).Error; err != nil {
		return fmt.Errorf("creating transcript process: %w", err)
	}
	return nil
}

// FindProcess returns the latest process for a vendor job and language.
func (r *transcriptRepo) FindProcess(ctx context.Context, provider models.TranscriptProvider, processID, langCode string) (*models.TranscriptProcess, error) {
	query := r.db.WithContext(ctx).Where("provider = ? AND process_id = ?", provider, processID)
	if langCode != "" {
		query = query.Where("lang_code = ?", langCode)
	}

	var process models.TranscriptProcess
	if err := query.Order("updated_at DESC, id DESC").First(&process).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding transcript process: %w", err)
	}
	return &process, nil
}

// UpdateProcessStatus sets the status of a process.
func (r *transcriptRepo) UpdateProcessStatus(ctx context.Context, id models.ULID, status models.TranscriptStatus) error {
	result := r.db.WithContext(ctx).Model(&models.TranscriptProcess{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("updating transcript process: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrProcessNotFound
	}
	return nil
}

// LatestProcesses returns the most recently updated process per (provider,
// language) for a video.
func (r *transcriptRepo) LatestProcesses(ctx context.Context, videoID models.ULID) ([]*models.TranscriptProcess, error) {
	var all []*models.TranscriptProcess
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Order("updated_at DESC, id DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("getting transcript processes: %w", err)
	}

	seen := make(map[string]bool, len(all))
	var latest []*models.TranscriptProcess
	for _, p := range all {
		key := string(p.Provider) + "/" + p.LangCode
		if seen[key] {
			continue
		}
		seen[key] = true
		latest = append(latest, p)
	}
	return latest, nil
}

// GetCredentials returns the vendor account for an organization.
func (r *transcriptRepo) GetCredentials(ctx context.Context, org string, provider models.TranscriptProvider) (*models.TranscriptCredentials, error) {
	var creds models.TranscriptCredentials
	if err := r.db.WithContext(ctx).Where("org = ? AND provider = ?", org, provider).First(&creds).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting transcript credentials: %w", err)
	}
	return &creds, nil
}

// SaveCredentials upserts on (org, provider).
func (r *transcriptRepo) SaveCredentials(ctx context.Context, creds *models.TranscriptCredentials) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "api_secret", "updated_at"}),
	}).Create(creds).Error
	if err != nil {
		return fmt.Errorf("saving transcript credentials: %w", err)
	}
	return nil
}

// Ensure transcriptRepo implements TranscriptRepository at compile time.
var _ TranscriptRepository = (*transcriptRepo)(nil)
