package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-recommender/internal/models"
)

// InteractionRepository stores weighted user to course engagements.
type InteractionRepository interface {
	List(ctx context.Context) ([]models.Interaction, error)
	ListByUser(ctx context.Context, userID string) ([]models.Interaction, error)
	UpsertBatch(ctx context.Context, items []models.Interaction) (int64, error)
	Accumulate(ctx context.Context, item *models.Interaction) error
	Count(ctx context.Context) (int64, error)
}

type interactionRepository struct {
	db *gorm.DB
}

// NewInteractionRepository constructs an interaction repository.
func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) List(ctx context.Context) ([]models.Interaction, error) {
	var items []models.Interaction
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *interactionRepository) ListByUser(ctx context.Context, userID string) ([]models.Interaction, error) {
	var items []models.Interaction
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertBatch replaces the weight and grade of existing (user, course, source) rows.
func (r *interactionRepository) UpsertBatch(ctx context.Context, items []models.Interaction) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"weight", "grade", "max_grade", "occurred_at", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}

// Accumulate adds the weight of item to an existing row for the same triple.
func (r *interactionRepository) Accumulate(ctx context.Context, item *models.Interaction) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "source"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"weight":      gorm.Expr("interactions.weight + excluded.weight"),
			"occurred_at": gorm.Expr("excluded.occurred_at"),
			"updated_at":  gorm.Expr("excluded.updated_at"),
		}),
	}).Create(item).Error
}

func (r *interactionRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Interaction{}).Count(&total).Error
	return total, err
}
