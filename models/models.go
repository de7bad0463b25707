// models/models.go - Quiz content and play history
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Quiz is a published quiz instance, addressed by a stable slug.
type Quiz struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Slug        string     `json:"slug" gorm:"not null;size:100;uniqueIndex"`
	Title       string     `json:"title" gorm:"not null;size:200"`
	Category    string     `json:"category" gorm:"size:100;index"`
	SeasonTag   string     `json:"season_tag,omitempty" gorm:"size:50"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Completion is one user finishing one quiz. Rows are append-only; quiz fields are copied at
// record time so later edits to the quiz do not rewrite history.
type Completion struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	PlayID          string         `json:"play_id" gorm:"not null;size:36;uniqueIndex:idx_completions_play"`
	UserID          uint           `json:"user_id" gorm:"not null;index:idx_completions_user_time,priority:1"`
	User            *User          `json:"user,omitempty" gorm:"foreignKey:UserID"`
	QuizSlug        string         `json:"quiz_slug" gorm:"not null;size:100;index"`
	QuizCategory    string         `json:"quiz_category" gorm:"size:100"`
	QuizPublishedAt *time.Time     `json:"quiz_published_at,omitempty"`
	Score           int            `json:"score" gorm:"default:0"`
	TotalQuestions  int            `json:"total_questions" gorm:"default:0"`
	Rounds          datatypes.JSON `json:"rounds,omitempty"`
	ElapsedSeconds  int            `json:"elapsed_seconds" gorm:"default:0"`
	IsPerfect       bool           `json:"is_perfect" gorm:"default:false"`
	CompletedAt     time.Time      `json:"completed_at" gorm:"not null;index:idx_completions_user_time,priority:2"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (Completion) TableName() string {
	return "completions"
}
