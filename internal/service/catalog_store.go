package service

import (
	"context"

	"github.com/noah-isme/gema-recommender/internal/models"
	"github.com/noah-isme/gema-recommender/internal/recommender"
	"github.com/noah-isme/gema-recommender/internal/repository"
)

// CatalogStore lists the courses that can be recommended.
type CatalogStore interface {
	ListCourses(ctx context.Context) ([]recommender.Course, error)
}

// InteractionSource lists the engagement records used for training.
type InteractionSource interface {
	ListInteractions(ctx context.Context) ([]recommender.Interaction, error)
}

// GradeSource reads the assessment history of a student. CanonicalUserID maps
// any accepted spelling of a user (a username, say) to the id interactions are
// stored under.
type GradeSource interface {
	CanonicalUserID(ctx context.Context, userID string) (string, error)
	GradeRecords(ctx context.Context, userID, courseID string) ([]recommender.GradeRecord, error)
}

// StudentFeatureSource lists side features per user.
type StudentFeatureSource interface {
	StudentFeatures(ctx context.Context) (recommender.Features, error)
}

// RepositoryCatalog adapts the gorm repositories to the recommender sources.
type RepositoryCatalog struct {
	courses      repository.CourseRepository
	interactions repository.InteractionRepository
	students     repository.StudentRepository
}

// NewRepositoryCatalog builds the repository backed sources. students may be nil.
func NewRepositoryCatalog(courses repository.CourseRepository, interactions repository.InteractionRepository, students repository.StudentRepository) *RepositoryCatalog {
	return &RepositoryCatalog{courses: courses, interactions: interactions, students: students}
}

// ListCourses returns the catalog ordered by external id.
func (r *RepositoryCatalog) ListCourses(ctx context.Context) ([]recommender.Course, error) {
	items, err := r.courses.List(ctx)
	if err != nil {
		return nil, err
	}
	courses := make([]recommender.Course, 0, len(items))
	for _, item := range items {
		courses = append(courses, toRecommenderCourse(item))
	}
	return courses, nil
}

// ListInteractions returns every stored interaction. Rows from different
// sources for the same pair are accumulated by the engine.
func (r *RepositoryCatalog) ListInteractions(ctx context.Context) ([]recommender.Interaction, error) {
	items, err := r.interactions.List(ctx)
	if err != nil {
		return nil, err
	}
	interactions := make([]recommender.Interaction, 0, len(items))
	for _, item := range items {
		interactions = append(interactions, recommender.Interaction{
			UserID:   item.UserID,
			CourseID: item.CourseID,
			Weight:   item.Weight,
		})
	}
	return interactions, nil
}

// StudentFeatures returns the features of students that have any.
func (r *RepositoryCatalog) StudentFeatures(ctx context.Context) (recommender.Features, error) {
	if r.students == nil {
		return recommender.Features{}, nil
	}
	items, err := r.students.List(ctx)
	if err != nil {
		return nil, err
	}
	features := make(recommender.Features, len(items))
	for _, item := range items {
		if len(item.Features) == 0 {
			continue
		}
		features[item.UserID] = append([]string(nil), item.Features...)
	}
	return features, nil
}

func toRecommenderCourse(item models.Course) recommender.Course {
	return recommender.Course{
		ID:          item.ExternalID,
		Title:       item.Title,
		Description: item.Description,
		Topics:      append([]string(nil), item.Topics...),
		Platform:    item.Platform,
		Difficulty:  item.Difficulty,
	}
}
