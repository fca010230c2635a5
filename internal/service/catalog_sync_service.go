package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/models"
	"github.com/noah-isme/gema-recommender/internal/moodle"
	"github.com/noah-isme/gema-recommender/internal/repository"
)

const (
	moodlePlatform        = "Moodle"
	difficultyAdvanced    = "Advanced"
	difficultyBeginner    = "Beginner"
	gradeSyncConcurrency  = 4
	courseTotalItemType   = "course"
	defaultUngradedWeight = 1.0
)

// ErrMoodleUnavailable indicates Moodle is not configured or cannot be reached.
var ErrMoodleUnavailable = errors.New("moodle is unavailable")

// MoodleCatalog is the part of the Moodle client used for syncing.
type MoodleCatalog interface {
	Courses(ctx context.Context) ([]moodle.Course, error)
	EnrolledUsers(ctx context.Context, courseID int) ([]moodle.User, error)
	UserGrades(ctx context.Context, userID, courseID int) ([]moodle.GradeItem, error)
}

// CatalogSyncService imports the Moodle catalog and gradebooks.
type CatalogSyncService interface {
	SyncCourses(ctx context.Context) (dto.SyncResponse, error)
	SyncGrades(ctx context.Context, courseID int) (dto.SyncResponse, error)
}

type catalogSyncService struct {
	client        MoodleCatalog
	courses       repository.CourseRepository
	interactions  repository.InteractionRepository
	students      repository.StudentRepository
	defaultCourse int
	policy        *bluemonday.Policy
	logger        zerolog.Logger
	now           func() time.Time
}

// NewCatalogSyncService builds the sync service. client may be nil when
// Moodle is not configured.
func NewCatalogSyncService(client MoodleCatalog, courses repository.CourseRepository, interactions repository.InteractionRepository, students repository.StudentRepository, defaultCourse int, logger zerolog.Logger) CatalogSyncService {
	return &catalogSyncService{
		client:        client,
		courses:       courses,
		interactions:  interactions,
		students:      students,
		defaultCourse: defaultCourse,
		policy:        bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "catalog_sync_service").Logger(),
		now:           time.Now,
	}
}

// SyncCourses upserts the Moodle courses into the catalog. Summaries are
// stripped of markup and tags become topics.
func (s *catalogSyncService) SyncCourses(ctx context.Context) (dto.SyncResponse, error) {
	if s.client == nil {
		return dto.SyncResponse{}, ErrMoodleUnavailable
	}

	remote, err := s.client.Courses(ctx)
	if err != nil {
		return dto.SyncResponse{}, moodleError(err)
	}

	items := make([]models.Course, 0, len(remote))
	for _, course := range remote {
		topics := make([]string, 0, len(course.Tags))
		for _, tag := range course.Tags {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				topics = append(topics, trimmed)
			}
		}
		items = append(items, models.Course{
			ExternalID:  strconv.Itoa(course.ID),
			Title:       course.FullName,
			Description: s.plainText(course.Summary),
			Platform:    moodlePlatform,
			Difficulty:  difficultyFor(topics),
			Topics:      datatypes.JSONSlice[string](topics),
		})
	}

	affected, err := s.courses.UpsertBatch(ctx, items)
	if err != nil {
		return dto.SyncResponse{}, err
	}

	s.logger.Info().Int("fetched", len(remote)).Int64("affected", affected).Msg("moodle courses synced")
	return dto.SyncResponse{Fetched: len(remote), Affected: affected}, nil
}

// SyncGrades stores the course total of every enrolled student as an
// interaction. Ungraded students count as a plain enrolment.
func (s *catalogSyncService) SyncGrades(ctx context.Context, courseID int) (dto.SyncResponse, error) {
	if s.client == nil {
		return dto.SyncResponse{}, ErrMoodleUnavailable
	}
	if courseID <= 0 {
		courseID = s.defaultCourse
	}

	users, err := s.client.EnrolledUsers(ctx, courseID)
	if err != nil {
		return dto.SyncResponse{}, moodleError(err)
	}

	var (
		mu           sync.Mutex
		interactions = make([]models.Interaction, 0, len(users))
		students     = make([]models.Student, 0, len(users))
		skipped      int
	)
	now := s.now().UTC()
	course := strconv.Itoa(courseID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(gradeSyncConcurrency)
	for _, user := range users {
		user := user
		g.Go(func() error {
			items, err := s.client.UserGrades(gctx, user.ID, courseID)
			if err != nil {
				s.logger.Warn().Err(err).Int("moodle_user_id", user.ID).Int("course_id", courseID).Msg("failed to read gradebook")
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			interaction := models.Interaction{
				UserID:     strconv.Itoa(user.ID),
				CourseID:   course,
				Source:     models.InteractionSourceGrade,
				Weight:     defaultUngradedWeight,
				OccurredAt: now,
			}
			if total, ok := courseTotal(items); ok {
				interaction.Grade = total.RawGrade
				interaction.MaxGrade = total.MaxGrade
				interaction.Weight = gradeWeight(total)
			}

			moodleID := user.ID
			mu.Lock()
			interactions = append(interactions, interaction)
			students = append(students, models.Student{
				UserID:       interaction.UserID,
				MoodleUserID: &moodleID,
				Username:     user.Username,
				FullName:     user.FullName,
				Email:        user.Email,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return dto.SyncResponse{}, err
	}

	if _, err := s.students.UpsertBatch(ctx, students); err != nil {
		return dto.SyncResponse{}, fmt.Errorf("store students: %w", err)
	}
	affected, err := s.interactions.UpsertBatch(ctx, interactions)
	if err != nil {
		return dto.SyncResponse{}, fmt.Errorf("store interactions: %w", err)
	}

	s.logger.Info().
		Int("course_id", courseID).
		Int("enrolled", len(users)).
		Int64("affected", affected).
		Int("skipped", skipped).
		Msg("moodle grades synced")
	return dto.SyncResponse{Fetched: len(users), Affected: affected, Skipped: skipped}, nil
}

func (s *catalogSyncService) plainText(summary string) string {
	text := html.UnescapeString(s.policy.Sanitize(summary))
	return strings.Join(strings.Fields(text), " ")
}

func difficultyFor(topics []string) string {
	for _, topic := range topics {
		lower := strings.ToLower(topic)
		if strings.Contains(lower, "hard") || strings.Contains(lower, "advanced") {
			return difficultyAdvanced
		}
	}
	return difficultyBeginner
}

func courseTotal(items []moodle.GradeItem) (moodle.GradeItem, bool) {
	for _, item := range items {
		if item.ItemType == courseTotalItemType && item.RawGrade != nil {
			return item, true
		}
	}
	return moodle.GradeItem{}, false
}

// gradeWeight maps a course total onto [0,1].
func gradeWeight(item moodle.GradeItem) float64 {
	if item.RawGrade == nil || item.MaxGrade == nil || *item.MaxGrade <= 0 {
		return defaultUngradedWeight
	}
	weight := *item.RawGrade / *item.MaxGrade
	switch {
	case weight < 0:
		return 0
	case weight > 1:
		return 1
	default:
		return weight
	}
}

func moodleError(err error) error {
	if errors.Is(err, moodle.ErrUnavailable) || errors.Is(err, moodle.ErrNotConfigured) {
		return fmt.Errorf("%w: %v", ErrMoodleUnavailable, err)
	}
	return err
}
