package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/vidpipe/internal/models"
	"gorm.io/gorm"
)

// courseRepo implements CourseRepository using GORM.
type courseRepo struct {
	db *gorm.DB
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(db *gorm.DB) *courseRepo {
	return &courseRepo{db: db}
}

// Create creates a new course.
func (r *courseRepo) Create(ctx context.Context, course *models.Course) error {
	if err := r.db.WithContext(ctx).Create(course).Error; err != nil {
		return fmt.Errorf("creating course: %w", err)
	}
	return nil
}

// GetByID retrieves a course by ID.
func (r *courseRepo) GetByID(ctx context.Context, id models.ULID) (*models.Course, error) {
	return r.first(ctx, "getting course by ID", "id = ?", id)
}

// GetByKey retrieves a course by its institution, class and semester.
func (r *courseRepo) GetByKey(ctx context.Context, institution, classID, semesterID string) (*models.Course, error) {
	return r.first(ctx, "getting course by key",
		"institution = ? AND class_id = ? AND semester_id = ?", institution, classID, semesterID)
}

// GetByStudioHex retrieves a course by its studio hex.
func (r *courseRepo) GetByStudioHex(ctx context.Context, hex string) (*models.Course, error) {
	return r.first(ctx, "getting course by studio hex", "studio_hex = ?", hex)
}

func (r *courseRepo) first(ctx context.Context, op string, query string, args ...any) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Where(query, args...).First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &course, nil
}

// GetAll retrieves all courses.
func (r *courseRepo) GetAll(ctx context.Context) ([]*models.Course, error) {
	var courses []*models.Course
	if err := r.db.WithContext(ctx).Order("institution, class_id, semester_id").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("getting all courses: %w", err)
	}
	return courses, nil
}

// Update updates an existing course. The sequence counter is left untouched.
func (r *courseRepo) Update(ctx context.Context, course *models.Course) error {
	if err := course.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Omit("last_video_number").Save(course).Error; err != nil {
		return fmt.Errorf("updating course: %w", err)
	}
	return nil
}

// ReserveVideoNumber increments the counter in place and reads it back in the
// same transaction. The UPDATE takes the row lock, so concurrent reservations
// for one course serialize and never observe the same value.
func (r *courseRepo) ReserveVideoNumber(ctx context.Context, id models.ULID) (int, error) {
	var next int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Course{}).
			Where("id = ?", id).
			UpdateColumn("last_video_number", gorm.Expr("last_video_number + ?", 1))
		if result.Error != nil {
			return fmt.Errorf("incrementing video number: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrCourseNotFound
		}

		var course models.Course
		if err := tx.Select("last_video_number").Where("id = ?", id).First(&course).Error; err != nil {
			return fmt.Errorf("reading video number: %w", err)
		}
		next = course.LastVideoNumber
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Ensure courseRepo implements CourseRepository at compile time.
var _ CourseRepository = (*courseRepo)(nil)
