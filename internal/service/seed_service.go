package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/models"
	"github.com/noah-isme/gema-recommender/internal/recommender"
	"github.com/noah-isme/gema-recommender/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
	// ErrInvalidSeed indicates a seed document that cannot be imported.
	ErrInvalidSeed = errors.New("invalid seed document")
)

// SeedDocument is the YAML layout of a seed file.
type SeedDocument struct {
	Courses      []recommender.Course      `yaml:"courses"`
	Interactions []recommender.Interaction `yaml:"interactions"`
	Students     []SeedStudent             `yaml:"students"`
}

// SeedStudent carries the side features of a student.
type SeedStudent struct {
	UserID   string   `yaml:"user_id"`
	Username string   `yaml:"username"`
	FullName string   `yaml:"full_name"`
	Features []string `yaml:"features"`
}

// ParseSeed decodes and checks a seed document.
func ParseSeed(data []byte) (SeedDocument, error) {
	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SeedDocument{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	for i, course := range doc.Courses {
		if strings.TrimSpace(course.ID) == "" || strings.TrimSpace(course.Title) == "" {
			return SeedDocument{}, fmt.Errorf("%w: course %d needs an id and a title", ErrInvalidSeed, i)
		}
	}
	for i, interaction := range doc.Interactions {
		if strings.TrimSpace(interaction.UserID) == "" || strings.TrimSpace(interaction.CourseID) == "" {
			return SeedDocument{}, fmt.Errorf("%w: interaction %d needs a user and a course", ErrInvalidSeed, i)
		}
		if interaction.Weight < 0 || math.IsNaN(interaction.Weight) || math.IsInf(interaction.Weight, 0) {
			return SeedDocument{}, fmt.Errorf("%w: interaction %d has weight %v", ErrInvalidSeed, i, interaction.Weight)
		}
	}
	for i, student := range doc.Students {
		if strings.TrimSpace(student.UserID) == "" {
			return SeedDocument{}, fmt.Errorf("%w: student %d needs a user id", ErrInvalidSeed, i)
		}
	}
	return doc, nil
}

// SeedService imports sample catalogs and interactions.
type SeedService interface {
	Seed(ctx context.Context, token string, payload []byte) (dto.SeedResponse, error)
	SeedFile(ctx context.Context, path string) (dto.SeedResponse, error)
}

type seedService struct {
	courseRepo      repository.CourseRepository
	interactionRepo repository.InteractionRepository
	studentRepo     repository.StudentRepository
	enabled         bool
	token           string
	logger          zerolog.Logger
	now             func() time.Time
}

// NewSeedService constructs a seeding service.
func NewSeedService(courseRepo repository.CourseRepository, interactionRepo repository.InteractionRepository, studentRepo repository.StudentRepository, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		courseRepo:      courseRepo,
		interactionRepo: interactionRepo,
		studentRepo:     studentRepo,
		enabled:         enabled,
		token:           token,
		logger:          logger.With().Str("component", "seed_service").Logger(),
		now:             time.Now,
	}
}

// Seed imports a YAML document posted with a seed token.
func (s *seedService) Seed(ctx context.Context, token string, payload []byte) (dto.SeedResponse, error) {
	if !s.enabled {
		return dto.SeedResponse{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.SeedResponse{}, ErrSeedUnauthorized
	}
	doc, err := ParseSeed(payload)
	if err != nil {
		return dto.SeedResponse{}, err
	}
	return s.apply(ctx, doc)
}

// SeedFile imports a seed file from disk. It is used at startup and by the
// trainer CLI, so no token is required.
func (s *seedService) SeedFile(ctx context.Context, path string) (dto.SeedResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dto.SeedResponse{}, fmt.Errorf("read seed file: %w", err)
	}
	doc, err := ParseSeed(data)
	if err != nil {
		return dto.SeedResponse{}, err
	}
	return s.apply(ctx, doc)
}

func (s *seedService) apply(ctx context.Context, doc SeedDocument) (dto.SeedResponse, error) {
	var response dto.SeedResponse
	var err error

	response.Courses, err = s.courseRepo.UpsertBatch(ctx, normalizeSeedCourses(doc.Courses))
	if err != nil {
		return dto.SeedResponse{}, fmt.Errorf("seed courses: %w", err)
	}
	response.Interactions, err = s.interactionRepo.UpsertBatch(ctx, s.normalizeSeedInteractions(doc.Interactions))
	if err != nil {
		return dto.SeedResponse{}, fmt.Errorf("seed interactions: %w", err)
	}
	if len(doc.Students) > 0 && s.studentRepo != nil {
		response.Students, err = s.studentRepo.UpsertBatch(ctx, normalizeSeedStudents(doc.Students))
		if err != nil {
			return dto.SeedResponse{}, fmt.Errorf("seed students: %w", err)
		}
	}

	s.logger.Info().
		Int64("courses", response.Courses).
		Int64("interactions", response.Interactions).
		Int64("students", response.Students).
		Msg("seed data imported")
	return response, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtleConstantTimeCompare(expected, strings.TrimSpace(token))
}

func subtleConstantTimeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	mismatch := byte(0)
	for i := 0; i < len(a); i++ {
		mismatch |= a[i] ^ b[i]
	}
	return mismatch == 0
}

func normalizeSeedCourses(items []recommender.Course) []models.Course {
	courses := make([]models.Course, 0, len(items))
	for _, item := range items {
		platform := item.Platform
		if platform == "" {
			platform = "GEMA"
		}
		courses = append(courses, models.Course{
			ExternalID:  item.ID,
			Title:       item.Title,
			Description: item.Description,
			Platform:    platform,
			Difficulty:  item.Difficulty,
			Topics:      datatypes.JSONSlice[string](item.Topics),
		})
	}
	return courses
}

// normalizeSeedInteractions folds duplicate pairs so the batch upsert never
// touches the same row twice.
func (s *seedService) normalizeSeedInteractions(items []recommender.Interaction) []models.Interaction {
	now := s.now().UTC()
	index := make(map[[2]string]int, len(items))
	interactions := make([]models.Interaction, 0, len(items))
	for _, item := range items {
		key := [2]string{strings.TrimSpace(item.UserID), strings.TrimSpace(item.CourseID)}
		if pos, ok := index[key]; ok {
			interactions[pos].Weight += item.Weight
			continue
		}
		index[key] = len(interactions)
		interactions = append(interactions, models.Interaction{
			UserID:     key[0],
			CourseID:   key[1],
			Source:     models.InteractionSourceSeed,
			Weight:     item.Weight,
			OccurredAt: now,
		})
	}
	return interactions
}

func normalizeSeedStudents(items []SeedStudent) []models.Student {
	students := make([]models.Student, 0, len(items))
	for _, item := range items {
		students = append(students, models.Student{
			UserID:   strings.TrimSpace(item.UserID),
			Username: item.Username,
			FullName: item.FullName,
			Features: datatypes.JSONSlice[string](item.Features),
		})
	}
	return students
}
