package achievements

import (
	"strings"
	"time"
)

type Tier string

const (
	TierVisitor Tier = "visitor"
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Account holds the user fields the tier resolver reads.
type Account struct {
	UserID             uint
	IsGuest            bool
	TierFlag           string     // explicit override set by admins: "", "visitor", "free", "premium"
	SubscriptionStatus string     // billing state: active, trialing, past_due, canceled, ...
	TrialEndsAt        *time.Time // free trial expiry, nil when no trial was granted
}

// ResolveTier derives the access tier at instant now. It must be called for every evaluation;
// a trial can lapse between two calls.
func ResolveTier(acct Account, now time.Time) Tier {
	if strings.EqualFold(acct.TierFlag, string(TierPremium)) {
		return TierPremium
	}
	switch strings.ToLower(acct.SubscriptionStatus) {
	case "active", "trialing":
		return TierPremium
	}
	if acct.TrialEndsAt != nil && acct.TrialEndsAt.After(now) {
		return TierPremium
	}
	if acct.IsGuest || strings.EqualFold(acct.TierFlag, string(TierVisitor)) {
		return TierVisitor
	}
	return TierFree
}
