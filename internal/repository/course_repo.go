package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-recommender/internal/models"
)

// CourseRepository provides access to the course catalog.
type CourseRepository interface {
	List(ctx context.Context) ([]models.Course, error)
	ListByExternalIDs(ctx context.Context, ids []string) ([]models.Course, error)
	UpsertBatch(ctx context.Context, items []models.Course) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs a course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) List(ctx context.Context) ([]models.Course, error) {
	var items []models.Course
	if err := r.db.WithContext(ctx).Order("external_id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *courseRepository) ListByExternalIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	if len(ids) == 0 {
		return []models.Course{}, nil
	}
	var items []models.Course
	if err := r.db.WithContext(ctx).Where("external_id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertBatch inserts courses and refreshes the descriptive columns of the
// ones already known by external id. Difficulty is only set on insert.
func (r *courseRepository) UpsertBatch(ctx context.Context, items []models.Course) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "platform", "topics", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}

func (r *courseRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Course{}).Count(&total).Error
	return total, err
}
