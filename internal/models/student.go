package models

import (
	"time"

	"gorm.io/datatypes"
)

// Student is a learner known to the recommender. UserID matches the user id of
// interactions; MoodleUserID links the account synced from Moodle.
type Student struct {
	ID           uint                        `gorm:"primaryKey" json:"-"`
	UserID       string                      `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	MoodleUserID *int                        `gorm:"uniqueIndex" json:"moodle_user_id,omitempty"`
	Username     string                      `gorm:"size:255" json:"username"`
	FullName     string                      `gorm:"size:255" json:"full_name"`
	Email        string                      `gorm:"size:255" json:"email"`
	Features     datatypes.JSONSlice[string] `gorm:"type:json" json:"features"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}
