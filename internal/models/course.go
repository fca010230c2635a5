package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course is a catalog entry that can be recommended. ExternalID is the
// identifier the recommender works with.
type Course struct {
	ID          uint                        `gorm:"primaryKey" json:"-"`
	ExternalID  string                      `gorm:"size:64;uniqueIndex;not null" json:"id"`
	Title       string                      `gorm:"size:255;not null" json:"title"`
	Description string                      `gorm:"type:text" json:"description"`
	Platform    string                      `gorm:"size:64" json:"platform"`
	Difficulty  string                      `gorm:"size:32;default:Beginner" json:"difficulty"`
	Topics      datatypes.JSONSlice[string] `gorm:"type:json" json:"topics"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// BeforeSave trims identifiers and applies the default difficulty.
func (c *Course) BeforeSave(tx *gorm.DB) error {
	c.ExternalID = strings.TrimSpace(c.ExternalID)
	c.Title = strings.TrimSpace(c.Title)
	if strings.TrimSpace(c.Difficulty) == "" {
		c.Difficulty = "Beginner"
	}
	if c.Topics == nil {
		c.Topics = datatypes.JSONSlice[string]{}
	}
	return nil
}
