package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-recommender/internal/models"
)

// StudentRepository provides access to student records.
type StudentRepository interface {
	List(ctx context.Context) ([]models.Student, error)
	GetByUserID(ctx context.Context, userID string) (models.Student, error)
	UpsertBatch(ctx context.Context, items []models.Student) (int64, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) List(ctx context.Context) ([]models.Student, error) {
	var items []models.Student
	if err := r.db.WithContext(ctx).Order("user_id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *studentRepository) GetByUserID(ctx context.Context, userID string) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&student).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

// UpsertBatch refreshes account details by user id and keeps stored features.
func (r *studentRepository) UpsertBatch(ctx context.Context, items []models.Student) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"moodle_user_id", "username", "full_name", "email", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}
