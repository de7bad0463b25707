package achievements

import "time"

// Round is one scored section of a quiz play-through.
type Round struct {
	Number         int    `json:"round_number"`
	Category       string `json:"category"`
	Score          int    `json:"score"`
	Total          int    `json:"total"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
}

// CompletionEvent is one user finishing one quiz instance. Events are append-only.
type CompletionEvent struct {
	ID             uint
	UserID         uint
	QuizSlug       string
	QuizCategory   string
	QuizPublished  *time.Time
	Score          int
	TotalQuestions int
	Rounds         []Round
	ElapsedSeconds int
	CompletedAt    time.Time
}

// Definition is a catalogue entry. Config is the raw condition configuration; it is only
// interpreted by the registry.
type Definition struct {
	ID            uint
	Slug          string
	Name          string
	PremiumOnly   bool
	SeasonTag     string
	ConditionType ConditionType
	Config        []byte
}

// Progress is a partial-completion measure such as "7 of 10".
type Progress struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

// UnlockRecord is the persisted result of a user satisfying one definition.
type UnlockRecord struct {
	UserID        uint
	AchievementID uint
	QuizSlug      string
	Progress      *Progress
	Meta          map[string]any
	UnlockedAt    time.Time
}

// NewUnlock is returned to callers for notification and rendering.
type NewUnlock struct {
	AchievementID uint           `json:"achievement_id"`
	Slug          string         `json:"slug"`
	Name          string         `json:"name"`
	QuizSlug      string         `json:"quiz_slug,omitempty"`
	Progress      *Progress      `json:"progress,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	UnlockedAt    time.Time      `json:"unlocked_at"`
}

// AchievementProgress reports how far a user is from a not-yet-unlocked achievement.
type AchievementProgress struct {
	AchievementID uint      `json:"achievement_id"`
	Slug          string    `json:"slug"`
	Satisfied     bool      `json:"satisfied"`
	Progress      *Progress `json:"progress,omitempty"`
}
