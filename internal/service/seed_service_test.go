package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/repository"
)

const sampleSeed = `
courses:
  - id: A
    title: Python fundamentals
    description: Variables and loops
    topics: [python]
  - id: B
    title: Web design
    topics: [web, html]
    difficulty: Advanced
interactions:
  - user_id: U1
    course_id: B
    weight: 1
  - user_id: U1
    course_id: B
    weight: 2
  - user_id: U2
    course_id: A
    weight: 0.5
students:
  - user_id: U1
    username: alice
    features: [grade-10]
`

func newSeedFixture(t *testing.T, enabled bool) (SeedService, repository.CourseRepository, repository.InteractionRepository, repository.StudentRepository) {
	t.Helper()
	db := setupRecommenderDB(t)
	courses := repository.NewCourseRepository(db)
	interactions := repository.NewInteractionRepository(db)
	students := repository.NewStudentRepository(db)
	return NewSeedService(courses, interactions, students, enabled, "seed-secret", zerolog.Nop()), courses, interactions, students
}

func TestSeedServiceImportsDocument(t *testing.T) {
	svc, courses, interactions, students := newSeedFixture(t, true)

	result, err := svc.Seed(context.Background(), "seed-secret", []byte(sampleSeed))
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Courses)
	require.Equal(t, int64(2), result.Interactions)
	require.Equal(t, int64(1), result.Students)

	items, err := courses.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, "GEMA", items[0].Platform)
	require.Equal(t, "Advanced", items[1].Difficulty)

	u1, err := interactions.ListByUser(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, u1, 1)
	require.InDelta(t, 3.0, u1[0].Weight, 1e-9)

	student, err := students.GetByUserID(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, []string{"grade-10"}, []string(student.Features))
}

func TestSeedServiceGuards(t *testing.T) {
	disabled, _, _, _ := newSeedFixture(t, false)
	_, err := disabled.Seed(context.Background(), "seed-secret", []byte(sampleSeed))
	require.ErrorIs(t, err, ErrSeedDisabled)

	enabled, _, _, _ := newSeedFixture(t, true)
	_, err = enabled.Seed(context.Background(), "wrong", []byte(sampleSeed))
	require.ErrorIs(t, err, ErrSeedUnauthorized)

	_, err = enabled.Seed(context.Background(), "seed-secret", []byte("courses: [{id: X}]"))
	require.ErrorIs(t, err, ErrInvalidSeed)
}

func TestParseSeedRejectsNegativeWeight(t *testing.T) {
	_, err := ParseSeed([]byte("interactions:\n  - {user_id: U1, course_id: A, weight: -1}\n"))
	require.ErrorIs(t, err, ErrInvalidSeed)

	_, err = ParseSeed([]byte("courses: {not: a list}"))
	require.ErrorIs(t, err, ErrInvalidSeed)
}

func TestSeedServiceSeedFile(t *testing.T) {
	svc, courses, _, _ := newSeedFixture(t, false)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o600))

	_, err := svc.SeedFile(context.Background(), path)
	require.NoError(t, err)

	total, err := courses.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
}
