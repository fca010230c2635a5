package moodle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-recommender/internal/recommender"
)

// ErrInvalidCourse indicates a course id that is not a Moodle course number.
var ErrInvalidCourse = errors.New("invalid moodle course id")

// GradeSource reads a student's gradebook and turns it into grade records
// tagged with the course's topics.
type GradeSource struct {
	client        *Client
	defaultCourse int
	logger        zerolog.Logger
}

// NewGradeSource builds a grade source reading defaultCourse when a request
// names no course.
func NewGradeSource(client *Client, defaultCourse int, logger zerolog.Logger) *GradeSource {
	return &GradeSource{
		client:        client,
		defaultCourse: defaultCourse,
		logger:        logger.With().Str("component", "moodle_grade_source").Logger(),
	}
}

// GradeRecords returns the graded items of a user. userID is either a
// numeric Moodle id or a username. The course total row is skipped.
func (g *GradeSource) GradeRecords(ctx context.Context, userID, courseID string) ([]recommender.GradeRecord, error) {
	moodleUserID, err := g.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	moodleCourseID := g.defaultCourse
	if trimmed := strings.TrimSpace(courseID); trimmed != "" {
		moodleCourseID, err = strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCourse, courseID)
		}
	}
	if moodleCourseID <= siteCourseID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCourse, moodleCourseID)
	}

	items, err := g.client.UserGrades(ctx, moodleUserID, moodleCourseID)
	if err != nil {
		return nil, err
	}

	tags := g.courseTags(ctx, moodleCourseID)

	records := make([]recommender.GradeRecord, 0, len(items))
	for _, item := range items {
		if item.ItemType == courseItemType {
			continue
		}
		records = append(records, recommender.GradeRecord{
			ItemName: item.ItemName,
			RawScore: item.RawGrade,
			MaxScore: item.MaxGrade,
			Tags:     tags,
		})
	}
	return records, nil
}

// CanonicalUserID returns the numeric Moodle id of userID, the key grade sync
// stores interactions under.
func (g *GradeSource) CanonicalUserID(ctx context.Context, userID string) (string, error) {
	id, err := g.resolveUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(id), nil
}

func (g *GradeSource) resolveUser(ctx context.Context, userID string) (int, error) {
	trimmed := strings.TrimSpace(userID)
	if id, err := strconv.Atoi(trimmed); err == nil {
		return id, nil
	}
	return g.client.UserIDByUsername(ctx, trimmed)
}

// courseTags returns nil when the course has no tags or the lookup fails, so
// grade items fall back to their names.
func (g *GradeSource) courseTags(ctx context.Context, courseID int) []string {
	tags, err := g.client.CourseTags(ctx, courseID)
	if err != nil {
		g.logger.Warn().Err(err).Int("course_id", courseID).Msg("course tags unavailable")
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
