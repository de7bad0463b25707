// models/achievement.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type Achievement struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Slug        string `gorm:"not null;size:100;uniqueIndex" json:"slug"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`

	// Gating
	PremiumOnly bool   `gorm:"default:false;index" json:"premium_only"`
	SeasonTag   string `gorm:"size:50" json:"season_tag,omitempty"`

	// Unlock rule
	ConditionType   string         `gorm:"not null;size:50;index" json:"condition_type"` // perfect_in_category, play_n_in_window, ...
	ConditionConfig datatypes.JSON `json:"condition_config"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
