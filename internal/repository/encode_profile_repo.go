package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/vidpipe/internal/models"
	"gorm.io/gorm"
)

// encodeProfileRepo implements EncodeProfileRepository using GORM.
type encodeProfileRepo struct {
	db *gorm.DB
}

// NewEncodeProfileRepository creates a new EncodeProfileRepository.
func NewEncodeProfileRepository(db *gorm.DB) *encodeProfileRepo {
	return &encodeProfileRepo{db: db}
}

// Create creates a new encode profile.
func (r *encodeProfileRepo) Create(ctx context.Context, profile *models.EncodeProfile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("creating encode profile: %w", err)
	}
	return nil
}

// GetByName retrieves a profile by name, with its destination.
func (r *encodeProfileRepo) GetByName(ctx context.Context, name string) (*models.EncodeProfile, error) {
	var profile models.EncodeProfile
	if err := r.db.WithContext(ctx).Preload("Destination").Where("name = ?", name).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting encode profile by name: %w", err)
	}
	return &profile, nil
}

// GetAll retrieves all profiles ordered by name.
func (r *encodeProfileRepo) GetAll(ctx context.Context) ([]*models.EncodeProfile, error) {
	var profiles []*models.EncodeProfile
	if err := r.db.WithContext(ctx).Preload("Destination").Order("name").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("getting all encode profiles: %w", err)
	}
	return profiles, nil
}

// ActiveByNames returns the active profiles among names. Unknown names are ignored.
func (r *encodeProfileRepo) ActiveByNames(ctx context.Context, names []string) ([]*models.EncodeProfile, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var profiles []*models.EncodeProfile
	err := r.db.WithContext(ctx).
		Preload("Destination").
		Where("name IN ? AND active = ?", names, true).
		Order("name").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("getting active encode profiles: %w", err)
	}
	return profiles, nil
}

// SetActive toggles a profile by name.
func (r *encodeProfileRepo) SetActive(ctx context.Context, name string, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.EncodeProfile{}).Where("name = ?", name).Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("updating encode profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

// CreateDestination creates a delivery destination.
func (r *encodeProfileRepo) CreateDestination(ctx context.Context, dest *models.Destination) error {
	if err := r.db.WithContext(ctx).Create(dest).Error; err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	return nil
}

// GetDestinationByNick retrieves a destination by its nickname.
func (r *encodeProfileRepo) GetDestinationByNick(ctx context.Context, nick string) (*models.Destination, error) {
	var dest models.Destination
	if err := r.db.WithContext(ctx).Where("nick = ?", nick).First(&dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting destination by nick: %w", err)
	}
	return &dest, nil
}

// Ensure encodeProfileRepo implements EncodeProfileRepository at compile time.
var _ EncodeProfileRepository = (*encodeProfileRepo)(nil)
