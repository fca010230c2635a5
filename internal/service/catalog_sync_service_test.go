package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/moodle"
	"github.com/noah-isme/gema-recommender/internal/repository"
)

type fakeMoodleCatalog struct {
	courses    []moodle.Course
	users      []moodle.User
	grades     map[int][]moodle.GradeItem
	gradeErrs  map[int]error
	coursesErr error
}

func (f *fakeMoodleCatalog) Courses(context.Context) ([]moodle.Course, error) {
	return f.courses, f.coursesErr
}

func (f *fakeMoodleCatalog) EnrolledUsers(context.Context, int) ([]moodle.User, error) {
	return f.users, nil
}

func (f *fakeMoodleCatalog) UserGrades(_ context.Context, userID, _ int) ([]moodle.GradeItem, error) {
	if err, ok := f.gradeErrs[userID]; ok {
		return nil, err
	}
	return f.grades[userID], nil
}

func TestCatalogSyncServiceSyncCourses(t *testing.T) {
	db := setupRecommenderDB(t)
	courseRepo := repository.NewCourseRepository(db)
	client := &fakeMoodleCatalog{courses: []moodle.Course{
		{ID: 2, FullName: "Python 101", Summary: "<p>Learn <b>Python</b> &amp; loops</p>", Tags: []string{"python", " "}},
		{ID: 3, FullName: "Algorithms", Summary: "<script>alert(1)</script>Graphs", Tags: []string{"Advanced algorithms"}},
	}}

	svc := NewCatalogSyncService(client, courseRepo, repository.NewInteractionRepository(db), repository.NewStudentRepository(db), 2, zerolog.Nop())
	result, err := svc.SyncCourses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Fetched)

	courses, err := courseRepo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.Equal(t, "2", courses[0].ExternalID)
	require.Equal(t, "Learn Python & loops", courses[0].Description)
	require.Equal(t, []string{"python"}, []string(courses[0].Topics))
	require.Equal(t, "Beginner", courses[0].Difficulty)
	require.Equal(t, "Moodle", courses[0].Platform)
	require.Equal(t, "Graphs", courses[1].Description)
	require.Equal(t, "Advanced", courses[1].Difficulty)
}

func TestCatalogSyncServiceSyncGrades(t *testing.T) {
	db := setupRecommenderDB(t)
	interactionRepo := repository.NewInteractionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	client := &fakeMoodleCatalog{
		users: []moodle.User{
			{ID: 7, Username: "alice", FullName: "Alice"},
			{ID: 8, Username: "bob"},
			{ID: 9, Username: "carol"},
		},
		grades: map[int][]moodle.GradeItem{
			7: {
				{ItemName: "Quiz", ItemType: "mod", RawGrade: floatPtr(3), MaxGrade: floatPtr(10)},
				{ItemType: "course", RawGrade: floatPtr(45), MaxGrade: floatPtr(60)},
			},
			8: {{ItemType: "course", MaxGrade: floatPtr(100)}},
		},
		gradeErrs: map[int]error{9: errors.New("timeout")},
	}

	svc := NewCatalogSyncService(client, repository.NewCourseRepository(db), interactionRepo, studentRepo, 2, zerolog.Nop())
	result, err := svc.SyncGrades(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 3, result.Fetched)
	require.Equal(t, 1, result.Skipped)

	alice, err := interactionRepo.ListByUser(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, alice, 1)
	require.Equal(t, "2", alice[0].CourseID)
	require.InDelta(t, 0.75, alice[0].Weight, 1e-9)

	bob, err := interactionRepo.ListByUser(context.Background(), "8")
	require.NoError(t, err)
	require.Len(t, bob, 1)
	require.Equal(t, 1.0, bob[0].Weight)

	student, err := studentRepo.GetByUserID(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "alice", student.Username)
	require.NotNil(t, student.MoodleUserID)
	require.Equal(t, 7, *student.MoodleUserID)
}

func TestCatalogSyncServiceMoodleUnavailable(t *testing.T) {
	db := setupRecommenderDB(t)
	courseRepo := repository.NewCourseRepository(db)

	svc := NewCatalogSyncService(nil, courseRepo, repository.NewInteractionRepository(db), repository.NewStudentRepository(db), 2, zerolog.Nop())
	_, err := svc.SyncCourses(context.Background())
	require.ErrorIs(t, err, ErrMoodleUnavailable)

	client := &fakeMoodleCatalog{coursesErr: fmt.Errorf("%w: connection refused", moodle.ErrUnavailable)}
	svc = NewCatalogSyncService(client, courseRepo, repository.NewInteractionRepository(db), repository.NewStudentRepository(db), 2, zerolog.Nop())
	_, err = svc.SyncCourses(context.Background())
	require.ErrorIs(t, err, ErrMoodleUnavailable)
}
