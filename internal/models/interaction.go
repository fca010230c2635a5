package models

import "time"

// Interaction sources.
const (
	InteractionSourceGrade = "moodle_grade"
	InteractionSourceEvent = "event"
	InteractionSourceSeed  = "seed"
)

// Interaction is a weighted engagement of a student with a course. A
// (user, course, source) triple is stored once.
type Interaction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:idx_interaction_pair" json:"user_id"`
	CourseID   string    `gorm:"size:64;not null;uniqueIndex:idx_interaction_pair;index" json:"course_id"`
	Source     string    `gorm:"size:32;not null;uniqueIndex:idx_interaction_pair" json:"source"`
	Weight     float64   `gorm:"not null;default:1" json:"weight"`
	Grade      *float64  `json:"grade,omitempty"`
	MaxGrade   *float64  `json:"max_grade,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
