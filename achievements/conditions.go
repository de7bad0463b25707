package achievements

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// perfectInCategory unlocks on a round (or the whole quiz when no rounds were recorded) with a
// perfect score in the configured category.
type perfectInCategory struct {
	Category      string `json:"category"`
	RequiredScore int    `json:"requiredScore"`
}

func (c *perfectInCategory) validate() error {
	if c.RequiredScore < 0 {
		return fmt.Errorf("requiredScore must not be negative, got %d", c.RequiredScore)
	}
	return nil
}

func (c *perfectInCategory) Anchor() Anchor { return AnchorEvent }

func (c *perfectInCategory) matches(category string, score, total int) bool {
	if c.Category != "" && !strings.EqualFold(strings.TrimSpace(category), strings.TrimSpace(c.Category)) {
		return false
	}
	return total > 0 && score == total && total >= c.RequiredScore
}

func (c *perfectInCategory) Evaluate(ec EvalContext) Result {
	e := ec.Trigger
	if e == nil {
		return Result{}
	}
	if len(e.Rounds) == 0 {
		if !c.matches(e.QuizCategory, e.Score, e.TotalQuestions) {
			return Result{}
		}
		return Result{Unlocked: true, Meta: map[string]any{
			"category": e.QuizCategory,
			"score":    e.Score,
		}}
	}
	for i, r := range e.Rounds {
		if !c.matches(r.Category, r.Score, r.Total) {
			continue
		}
		return Result{Unlocked: true, Meta: map[string]any{
			"roundNumber": roundNumber(r, i),
			"category":    r.Category,
			"score":       r.Score,
		}}
	}
	return Result{}
}

// playNInWindow unlocks once enough completions fall in a calendar window ending at the trigger.
type playNInWindow struct {
	Unit      WindowUnit `json:"unit"`
	Count     int        `json:"count"`
	Threshold int        `json:"threshold"`
}

func (c *playNInWindow) validate() error {
	if c.Unit == "" {
		c.Unit = UnitDay
	}
	if !c.Unit.valid() {
		return fmt.Errorf("unit must be day, week or month, got %q", c.Unit)
	}
	if c.Count == 0 {
		c.Count = 1
	}
	if c.Count < 1 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	if c.Threshold < 1 {
		return fmt.Errorf("threshold must be positive, got %d", c.Threshold)
	}
	return nil
}

func (c *playNInWindow) Anchor() Anchor { return AnchorEvent }

func (c *playNInWindow) Evaluate(ec EvalContext) Result {
	if ec.Trigger == nil {
		return Result{}
	}
	anchor := ec.Trigger.CompletedAt
	n := CountInWindow(ec.History, anchor, c.Unit, c.Count)
	return Result{
		Unlocked: n >= c.Threshold,
		Progress: newProgress(n, c.Threshold),
		Meta: map[string]any{
			"count":       n,
			"windowStart": TruncateToWindowStart(anchor, c.Unit, c.Count),
		},
	}
}

// quizAge rewards completing a quiz long after it was published.
type quizAge struct {
	MinWeeks float64 `json:"minWeeks"`
}

func (c *quizAge) validate() error {
	if c.MinWeeks < 0 {
		return fmt.Errorf("minWeeks must not be negative, got %v", c.MinWeeks)
	}
	return nil
}

func (c *quizAge) Anchor() Anchor { return AnchorEvent }

func (c *quizAge) Evaluate(ec EvalContext) Result {
	e := ec.Trigger
	if e == nil || e.QuizPublished == nil {
		return Result{}
	}
	weeks := e.CompletedAt.Sub(*e.QuizPublished).Hours() / (24 * 7)
	if weeks <= c.MinWeeks {
		return Result{}
	}
	return Result{Unlocked: true, Meta: map[string]any{
		"weeks": int(math.Floor(weeks)),
	}}
}

// repeatSameQuiz unlocks when the trigger's quiz has been completed Count times.
type repeatSameQuiz struct {
	Count int `json:"count"`
}

func (c *repeatSameQuiz) validate() error {
	if c.Count < 1 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	return nil
}

func (c *repeatSameQuiz) Anchor() Anchor { return AnchorEvent }

func (c *repeatSameQuiz) Evaluate(ec EvalContext) Result {
	if ec.Trigger == nil {
		return Result{}
	}
	n := 0
	for _, e := range ec.History {
		if e.QuizSlug == ec.Trigger.QuizSlug {
			n++
		}
	}
	return Result{
		Unlocked: n >= c.Count,
		Progress: newProgress(n, c.Count),
		Meta:     map[string]any{"quizSlug": ec.Trigger.QuizSlug},
	}
}

// timeLimit unlocks when a round (or the whole quiz) finished within MaxSeconds.
// An elapsed time of zero means the client did not report one.
type timeLimit struct {
	MaxSeconds int `json:"maxSeconds"`
}

func (c *timeLimit) validate() error {
	if c.MaxSeconds < 1 {
		return fmt.Errorf("maxSeconds must be positive, got %d", c.MaxSeconds)
	}
	return nil
}

func (c *timeLimit) Anchor() Anchor { return AnchorEvent }

func (c *timeLimit) within(seconds int) bool {
	return seconds > 0 && seconds <= c.MaxSeconds
}

func (c *timeLimit) Evaluate(ec EvalContext) Result {
	e := ec.Trigger
	if e == nil {
		return Result{}
	}
	for i, r := range e.Rounds {
		if c.within(r.ElapsedSeconds) {
			return Result{Unlocked: true, Meta: map[string]any{
				"roundNumber": roundNumber(r, i),
				"seconds":     r.ElapsedSeconds,
			}}
		}
	}
	if c.within(e.ElapsedSeconds) {
		return Result{Unlocked: true, Meta: map[string]any{"seconds": e.ElapsedSeconds}}
	}
	return Result{}
}

// weeklyStreak unlocks after completions in Weeks consecutive ISO weeks.
type weeklyStreak struct {
	Weeks int `json:"weeks"`
}

func (c *weeklyStreak) validate() error {
	if c.Weeks < 1 {
		return fmt.Errorf("weeks must be positive, got %d", c.Weeks)
	}
	return nil
}

func (c *weeklyStreak) Anchor() Anchor { return AnchorEvent }

func (c *weeklyStreak) Evaluate(ec EvalContext) Result {
	if ec.Trigger == nil {
		return Result{}
	}
	anchor := ec.Trigger.CompletedAt
	streak := StreakWeeks(ec.History, anchor, c.Weeks)
	return Result{
		Unlocked: streak >= c.Weeks,
		Progress: newProgress(streak, c.Weeks),
		Meta:     map[string]any{"weekKey": WeekKey(anchor)},
	}
}

// seasonalTagMatch gates event rounds: the configured season must equal the definition's tag.
type seasonalTagMatch struct {
	Season string `json:"season"`
}

func (c *seasonalTagMatch) validate() error {
	if strings.TrimSpace(c.Season) == "" {
		return errors.New("season is required")
	}
	return nil
}

func (c *seasonalTagMatch) Anchor() Anchor { return AnchorEvent }

func (c *seasonalTagMatch) Evaluate(ec EvalContext) Result {
	if ec.Trigger == nil {
		return Result{}
	}
	tag := strings.TrimSpace(ec.Definition.SeasonTag)
	if tag == "" || !strings.EqualFold(tag, strings.TrimSpace(c.Season)) {
		return Result{}
	}
	return Result{Unlocked: true, Meta: map[string]any{"season": tag}}
}

// premiumMember is the tier gate: it holds for every premium user, with or without history.
type premiumMember struct{}

func (c *premiumMember) Anchor() Anchor { return AnchorTier }

func (c *premiumMember) Evaluate(ec EvalContext) Result {
	return Result{Unlocked: ec.Tier == TierPremium}
}

func roundNumber(r Round, index int) int {
	if r.Number > 0 {
		return r.Number
	}
	return index + 1
}

func newProgress(value, max int) *Progress {
	if value > max {
		value = max
	}
	return &Progress{Value: value, Max: max}
}
