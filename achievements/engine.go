package achievements

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quizhub/logger"
)

const (
	defaultHistoryLimit      = 100
	defaultSweepHistoryLimit = 1000
)

// Engine decides which achievements a user has newly earned and records each unlock once.
type Engine struct {
	repo     Repository
	registry *Registry
	log      *logger.Logger
	now      func() time.Time

	historyLimit      int
	sweepHistoryLimit int
}

type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to pin trial expiry and window anchors.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRegistry replaces the built-in condition registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithHistoryLimit bounds how many recent completions a single evaluation looks at.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithSweepHistoryLimit bounds how many completions a retroactive sweep replays.
func WithSweepHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sweepHistoryLimit = n
		}
	}
}

func NewEngine(repo Repository, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:              repo,
		registry:          DefaultRegistry(),
		log:               log.With("service", "AchievementEngine"),
		now:               time.Now,
		historyLimit:      defaultHistoryLimit,
		sweepHistoryLimit: defaultSweepHistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// snapshot is the per-call state shared by both entry points.
type snapshot struct {
	now        time.Time
	tier       Tier
	candidates []Compiled
}

// load resolves the tier and compiles the eligible, not-yet-unlocked catalogue. Any error here
// aborts the evaluation before anything is persisted.
func (e *Engine) load(ctx context.Context, userID uint, premiumOnly bool) (*snapshot, error) {
	now := e.now()
	acct, err := e.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", userID, err)
	}
	tier := ResolveTier(acct, now)

	var filter AchievementFilter
	switch {
	case premiumOnly:
		t := true
		filter.PremiumOnly = &t
	case tier != TierPremium:
		f := false
		filter.PremiumOnly = &f
	}
	defs, err := e.repo.ListAchievements(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}

	unlocked, err := e.repo.ListUnlockedAchievementIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load unlocked achievements for user %d: %w", userID, err)
	}

	pending := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if _, ok := unlocked[def.ID]; ok {
			continue
		}
		if def.PremiumOnly && tier != TierPremium {
			continue
		}
		if premiumOnly && !def.PremiumOnly {
			continue
		}
		pending = append(pending, def)
	}

	compiled, skipped := e.registry.Compile(pending)
	for _, s := range skipped {
		e.log.Warn("Skipping achievement with unusable condition",
			"achievement", s.Definition.Slug,
			"condition_type", s.Definition.ConditionType,
			"error", s.Err,
		)
	}
	return &snapshot{now: now, tier: tier, candidates: compiled}, nil
}

// EvaluateOnCompletion evaluates every eligible achievement against a just-recorded completion.
// It returns the unlocks created by this call. When some unlocks could not be persisted the
// error is an *UnlockErrors and the returned slice still holds the ones that were.
func (e *Engine) EvaluateOnCompletion(ctx context.Context, event CompletionEvent) ([]NewUnlock, error) {
	snap, err := e.load(ctx, event.UserID, false)
	if err != nil {
		return nil, err
	}
	if len(snap.candidates) == 0 {
		return nil, nil
	}

	history, err := e.repo.ListRecentCompletions(ctx, event.UserID, e.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load completion history for user %d: %w", event.UserID, err)
	}
	history = historyUpTo(includeTrigger(history, event), event.CompletedAt)

	var (
		unlocks  []NewUnlock
		failures []UnlockFailure
	)
	for _, c := range snap.candidates {
		res := c.Condition.Evaluate(EvalContext{
			Definition: c.Definition,
			Trigger:    &event,
			History:    history,
			Tier:       snap.tier,
			Now:        snap.now,
		})
		if !res.Unlocked {
			continue
		}
		quizSlug := ""
		if c.Condition.Anchor() == AnchorEvent {
			quizSlug = event.QuizSlug
		}
		u, ok, err := e.persist(ctx, event.UserID, c.Definition, quizSlug, res, snap.now)
		if err != nil {
			failures = append(failures, UnlockFailure{AchievementID: c.Definition.ID, Slug: c.Definition.Slug, Err: err})
			continue
		}
		if ok {
			unlocks = append(unlocks, u)
		}
	}

	if len(failures) > 0 {
		return unlocks, &UnlockErrors{Failures: failures}
	}
	return unlocks, nil
}

// RetroactiveSweep re-evaluates the premium-only achievements a user has not unlocked yet.
// It is meant to run after a tier upgrade. Tier gates unlock immediately; event-anchored
// conditions replay the user's history oldest to newest and stop at the first qualifying
// completion. Running it again, or concurrently with EvaluateOnCompletion, creates nothing twice.
func (e *Engine) RetroactiveSweep(ctx context.Context, userID uint) ([]NewUnlock, error) {
	snap, err := e.load(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if snap.tier != TierPremium {
		e.log.Debug("Retroactive sweep skipped, user is not premium", "user_id", userID, "tier", snap.tier)
		return nil, nil
	}
	if len(snap.candidates) == 0 {
		return nil, nil
	}

	var recent []CompletionEvent
	historyLoaded := false

	var (
		unlocks  []NewUnlock
		failures []UnlockFailure
	)
	for _, c := range snap.candidates {
		var (
			res     Result
			trigger *CompletionEvent
		)
		switch c.Condition.Anchor() {
		case AnchorTier:
			res = c.Condition.Evaluate(EvalContext{Definition: c.Definition, Tier: snap.tier, Now: snap.now})
		default:
			if !historyLoaded {
				recent, err = e.repo.ListRecentCompletions(ctx, userID, e.sweepHistoryLimit)
				if err != nil {
					return unlocks, fmt.Errorf("load completion history for user %d: %w", userID, err)
				}
				historyLoaded = true
			}
			res, trigger = e.replay(c, recent, snap)
		}
		if !res.Unlocked {
			continue
		}

		quizSlug := ""
		if trigger != nil {
			quizSlug = trigger.QuizSlug
		}
		u, ok, err := e.persist(ctx, userID, c.Definition, quizSlug, res, snap.now)
		if err != nil {
			failures = append(failures, UnlockFailure{AchievementID: c.Definition.ID, Slug: c.Definition.Slug, Err: err})
			continue
		}
		if ok {
			unlocks = append(unlocks, u)
		}
	}

	if len(unlocks) > 0 {
		e.log.Info("Retroactive sweep unlocked achievements", "user_id", userID, "count", len(unlocks))
	}
	if len(failures) > 0 {
		return unlocks, &UnlockErrors{Failures: failures}
	}
	return unlocks, nil
}

// replay walks recent (most-recent-first) from the oldest completion forward, treating each as
// the trigger with only the completions up to it as history.
func (e *Engine) replay(c Compiled, recent []CompletionEvent, snap *snapshot) (Result, *CompletionEvent) {
	for j := len(recent) - 1; j >= 0; j-- {
		end := j + e.historyLimit
		if end > len(recent) {
			end = len(recent)
		}
		trigger := recent[j]
		res := c.Condition.Evaluate(EvalContext{
			Definition: c.Definition,
			Trigger:    &trigger,
			History:    recent[j:end],
			Tier:       snap.tier,
			Now:        snap.now,
		})
		if res.Unlocked {
			return res, &trigger
		}
	}
	return Result{}, nil
}

// Progress reports, for every eligible achievement the user has not unlocked, how far the user
// is when anchored at their most recent completion.
func (e *Engine) Progress(ctx context.Context, userID uint) ([]AchievementProgress, error) {
	snap, err := e.load(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	history, err := e.repo.ListRecentCompletions(ctx, userID, e.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load completion history for user %d: %w", userID, err)
	}
	var trigger *CompletionEvent
	if len(history) > 0 {
		trigger = &history[0]
	}

	out := make([]AchievementProgress, 0, len(snap.candidates))
	for _, c := range snap.candidates {
		res := c.Condition.Evaluate(EvalContext{
			Definition: c.Definition,
			Trigger:    trigger,
			History:    history,
			Tier:       snap.tier,
			Now:        snap.now,
		})
		out = append(out, AchievementProgress{
			AchievementID: c.Definition.ID,
			Slug:          c.Definition.Slug,
			Satisfied:     res.Unlocked,
			Progress:      res.Progress,
		})
	}
	return out, nil
}

func (e *Engine) persist(ctx context.Context, userID uint, def Definition, quizSlug string, res Result, now time.Time) (NewUnlock, bool, error) {
	saved, inserted, err := e.repo.InsertUnlockIfAbsent(ctx, UnlockRecord{
		UserID:        userID,
		AchievementID: def.ID,
		QuizSlug:      quizSlug,
		Progress:      res.Progress,
		Meta:          res.Meta,
		UnlockedAt:    now,
	})
	if err != nil {
		e.log.Error("Failed to persist unlock", "user_id", userID, "achievement", def.Slug, "error", err)
		return NewUnlock{}, false, err
	}
	if !inserted {
		e.log.Debug("Achievement already unlocked by a concurrent evaluation", "user_id", userID, "achievement", def.Slug)
		return NewUnlock{}, false, nil
	}
	return NewUnlock{
		AchievementID: def.ID,
		Slug:          def.Slug,
		Name:          def.Name,
		QuizSlug:      saved.QuizSlug,
		Progress:      saved.Progress,
		Meta:          saved.Meta,
		UnlockedAt:    saved.UnlockedAt,
	}, true, nil
}

// includeTrigger makes sure the triggering event is part of the history exactly once and that
// the history is ordered most-recent-first.
func includeTrigger(history []CompletionEvent, trigger CompletionEvent) []CompletionEvent {
	if trigger.ID != 0 {
		for _, h := range history {
			if h.ID == trigger.ID {
				return history
			}
		}
	}
	out := make([]CompletionEvent, 0, len(history)+1)
	out = append(out, trigger)
	out = append(out, history...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out
}

// historyUpTo drops events recorded after at from a most-recent-first history, so a backdated
// completion is judged on what had happened by then.
func historyUpTo(history []CompletionEvent, at time.Time) []CompletionEvent {
	i := 0
	for i < len(history) && history[i].CompletedAt.After(at) {
		i++
	}
	return history[i:]
}
