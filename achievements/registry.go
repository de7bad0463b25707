package achievements

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ConditionType tags which strategy decides an achievement.
type ConditionType string

const (
	CondPerfectInCategory ConditionType = "perfect_in_category"
	CondPlayNInWindow     ConditionType = "play_n_in_window"
	CondQuizAge           ConditionType = "quiz_age_at_completion"
	CondRepeatSameQuiz    ConditionType = "repeat_same_quiz"
	CondTimeLimit         ConditionType = "time_limit"
	CondWeeklyStreak      ConditionType = "weekly_streak"
	CondSeasonalTagMatch  ConditionType = "seasonal_tag_match"
	CondPremiumMember     ConditionType = "premium_member"
)

// Anchor says what a condition needs to be decided.
type Anchor int

const (
	// AnchorEvent conditions need a triggering completion.
	AnchorEvent Anchor = iota
	// AnchorTier conditions depend on the user's tier alone.
	AnchorTier
)

// EvalContext is everything a condition may look at. History is most-recent-first and contains
// Trigger when Trigger is set.
type EvalContext struct {
	Definition Definition
	Trigger    *CompletionEvent
	History    []CompletionEvent
	Tier       Tier
	Now        time.Time
}

// Result is a condition's verdict.
type Result struct {
	Unlocked bool
	Progress *Progress
	Meta     map[string]any
}

// Condition is a parsed, typed condition configuration that can evaluate itself.
type Condition interface {
	Anchor() Anchor
	Evaluate(ec EvalContext) Result
}

// Factory parses a raw configuration blob into a Condition.
type Factory func(raw json.RawMessage) (Condition, error)

// Registry maps condition types to factories. New condition types are added with Register;
// the engine never switches on a tag.
type Registry struct {
	factories map[ConditionType]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[ConditionType]Factory)}
}

// DefaultRegistry returns a registry with every built-in condition type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CondPerfectInCategory, parseConfig[perfectInCategory])
	r.Register(CondPlayNInWindow, parseConfig[playNInWindow])
	r.Register(CondQuizAge, parseConfig[quizAge])
	r.Register(CondRepeatSameQuiz, parseConfig[repeatSameQuiz])
	r.Register(CondTimeLimit, parseConfig[timeLimit])
	r.Register(CondWeeklyStreak, parseConfig[weeklyStreak])
	r.Register(CondSeasonalTagMatch, parseConfig[seasonalTagMatch])
	r.Register(CondPremiumMember, parseConfig[premiumMember])
	return r
}

func (r *Registry) Register(t ConditionType, f Factory) {
	r.factories[t] = f
}

// Types lists the registered condition types in sorted order.
func (r *Registry) Types() []ConditionType {
	out := make([]ConditionType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnknownConditionError is returned by Parse for tags with no registered factory.
type UnknownConditionError struct {
	Type ConditionType
}

func (e *UnknownConditionError) Error() string {
	return fmt.Sprintf("unknown condition type %q", e.Type)
}

// Parse compiles one definition's configuration.
func (r *Registry) Parse(def Definition) (Condition, error) {
	f, ok := r.factories[def.ConditionType]
	if !ok {
		return nil, &UnknownConditionError{Type: def.ConditionType}
	}
	raw := json.RawMessage(def.Config)
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	cond, err := f(raw)
	if err != nil {
		return nil, fmt.Errorf("achievement %q: %w", def.Slug, err)
	}
	return cond, nil
}

// Compiled pairs a definition with its parsed condition.
type Compiled struct {
	Definition Definition
	Condition  Condition
}

// SkippedDefinition records why a definition could not be compiled.
type SkippedDefinition struct {
	Definition Definition
	Err        error
}

// Compile parses every definition once. Definitions that fail are returned separately so the
// caller can log them; they never fail the whole batch.
func (r *Registry) Compile(defs []Definition) ([]Compiled, []SkippedDefinition) {
	compiled := make([]Compiled, 0, len(defs))
	var skipped []SkippedDefinition
	for _, def := range defs {
		cond, err := r.Parse(def)
		if err != nil {
			skipped = append(skipped, SkippedDefinition{Definition: def, Err: err})
			continue
		}
		compiled = append(compiled, Compiled{Definition: def, Condition: cond})
	}
	return compiled, skipped
}

// validator is implemented by configs that reject nonsensical parameters.
type validator interface {
	validate() error
}

func parseConfig[C any, T interface {
	*C
	Condition
}](raw json.RawMessage) (Condition, error) {
	var cfg C
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config: %w", err)
	}
	cond := T(&cfg)
	if v, ok := any(cond).(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cond, nil
}
