// models/user.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Username    string  `gorm:"uniqueIndex;not null" json:"username"`
	Email       *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Password    string  `gorm:"not null" json:"-"`
	DisplayName string  `json:"display_name"`
	IsGuest     bool    `gorm:"default:false" json:"is_guest"`
	IsAdmin     bool    `gorm:"default:false" json:"is_admin"`
	IsBanned    bool    `gorm:"default:false" json:"is_banned"`

	// Access tier inputs
	TierFlag           string     `gorm:"size:20" json:"tier_flag"`                 // admin override: visitor, free, premium
	SubscriptionStatus string     `gorm:"size:20;index" json:"subscription_status"` // active, trialing, past_due, canceled
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`

	// Stats
	TotalGames   int `gorm:"default:0" json:"total_games"`
	PerfectGames int `gorm:"default:0" json:"perfect_games"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastLogin time.Time `json:"last_login"`

	// Relationships
	Achievements []UserAchievement `gorm:"foreignKey:UserID" json:"achievements,omitempty"`
	Completions  []Completion      `gorm:"foreignKey:UserID" json:"completions,omitempty"`
}

// UserAchievement is an unlock record. The composite unique index is what keeps two
// concurrent evaluations from awarding the same achievement twice.
type UserAchievement struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;uniqueIndex:idx_user_achievements_unique,priority:1" json:"user_id"`
	AchievementID uint           `gorm:"not null;uniqueIndex:idx_user_achievements_unique,priority:2;index" json:"achievement_id"`
	QuizSlug      string         `gorm:"size:100" json:"quiz_slug,omitempty"`
	ProgressValue *int           `json:"progress_value,omitempty"`
	ProgressMax   *int           `json:"progress_max,omitempty"`
	Meta          datatypes.JSON `json:"meta,omitempty"`
	UnlockedAt    time.Time      `gorm:"not null" json:"unlocked_at"`

	// Relationships
	User        User        `gorm:"foreignKey:UserID" json:"-"`
	Achievement Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
}
