package achievements

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUserNotFound aborts an evaluation for an unknown user id.
var ErrUserNotFound = errors.New("user not found")

// AchievementFilter narrows the catalogue. A nil PremiumOnly returns everything.
type AchievementFilter struct {
	PremiumOnly *bool
}

// Repository is the storage the engine reads and writes. Implementations must enforce
// uniqueness of (user, achievement) at the storage layer: InsertUnlockIfAbsent reports
// inserted=false, not an error, when the pair already exists.
type Repository interface {
	GetAccount(ctx context.Context, userID uint) (Account, error)
	ListAchievements(ctx context.Context, filter AchievementFilter) ([]Definition, error)
	ListUnlockedAchievementIDs(ctx context.Context, userID uint) (map[uint]struct{}, error)
	ListRecentCompletions(ctx context.Context, userID uint, limit int) ([]CompletionEvent, error)
	InsertUnlockIfAbsent(ctx context.Context, rec UnlockRecord) (UnlockRecord, bool, error)
}

// UnlockFailure is one unlock that could not be persisted.
type UnlockFailure struct {
	AchievementID uint
	Slug          string
	Err           error
}

// UnlockErrors collects persistence failures of a single evaluation. The unlocks that did
// succeed are returned alongside it.
type UnlockErrors struct {
	Failures []UnlockFailure
}

func (e *UnlockErrors) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Slug, f.Err))
	}
	return fmt.Sprintf("%d unlock(s) failed to persist: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *UnlockErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
