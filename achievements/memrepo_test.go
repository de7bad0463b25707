package achievements

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"quizhub/logger"
)

// memRepo is an in-memory Repository with the same uniqueness guarantee as the SQL store.
type memRepo struct {
	mu          sync.Mutex
	accounts    map[uint]Account
	defs        []Definition
	completions map[uint][]CompletionEvent
	unlocks     map[[2]uint]UnlockRecord
	insertErr   map[uint]error
	inserts     int

	// ignoreFilter makes ListAchievements return the whole catalogue.
	ignoreFilter bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts:    make(map[uint]Account),
		completions: make(map[uint][]CompletionEvent),
		unlocks:     make(map[[2]uint]UnlockRecord),
		insertErr:   make(map[uint]error),
	}
}

func (r *memRepo) GetAccount(_ context.Context, userID uint) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[userID]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return acct, nil
}

func (r *memRepo) ListAchievements(_ context.Context, filter AchievementFilter) ([]Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		if !r.ignoreFilter && filter.PremiumOnly != nil && d.PremiumOnly != *filter.PremiumOnly {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *memRepo) ListUnlockedAchievementIDs(_ context.Context, userID uint) (map[uint]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint]struct{})
	for k := range r.unlocks {
		if k[0] == userID {
			out[k[1]] = struct{}{}
		}
	}
	return out, nil
}

func (r *memRepo) ListRecentCompletions(_ context.Context, userID uint, limit int) ([]CompletionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := append([]CompletionEvent(nil), r.completions[userID]...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CompletedAt.After(all[j].CompletedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memRepo) InsertUnlockIfAbsent(_ context.Context, rec UnlockRecord) (UnlockRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertErr[rec.AchievementID]; err != nil {
		return UnlockRecord{}, false, err
	}
	key := [2]uint{rec.UserID, rec.AchievementID}
	if existing, ok := r.unlocks[key]; ok {
		return existing, false, nil
	}
	r.unlocks[key] = rec
	r.inserts++
	return rec, true, nil
}

// record appends a completion the way the completion handler does before evaluation.
func (r *memRepo) record(e CompletionEvent) CompletionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = uint(len(r.completions[e.UserID]) + 1)
	r.completions[e.UserID] = append(r.completions[e.UserID], e)
	return e
}

func (r *memRepo) unlockCount(userID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.unlocks {
		if k[0] == userID {
			n++
		}
	}
	return n
}

var testNow = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, repo Repository, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewEngine(repo, logger.Nop(), opts...)
}

func def(id uint, slug string, ct ConditionType, config string) Definition {
	return Definition{ID: id, Slug: slug, Name: slug, ConditionType: ct, Config: []byte(config)}
}

func premiumDef(id uint, slug string, ct ConditionType, config string) Definition {
	d := def(id, slug, ct, config)
	d.PremiumOnly = true
	return d
}

func hasSlug(unlocks []NewUnlock, slug string) bool {
	for _, u := range unlocks {
		if u.Slug == slug {
			return true
		}
	}
	return false
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
