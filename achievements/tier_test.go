package achievements

import (
	"testing"
	"time"
)

func TestResolveTier(t *testing.T) {
	now := testNow
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		acct Account
		want Tier
	}{
		{"plain account", Account{}, TierFree},
		{"guest", Account{IsGuest: true}, TierVisitor},
		{"explicit visitor", Account{TierFlag: "visitor"}, TierVisitor},
		{"explicit premium", Account{TierFlag: "Premium"}, TierPremium},
		{"active subscription", Account{SubscriptionStatus: "active"}, TierPremium},
		{"trialing subscription", Account{SubscriptionStatus: "trialing"}, TierPremium},
		{"canceled subscription", Account{SubscriptionStatus: "canceled"}, TierFree},
		{"running trial", Account{TrialEndsAt: &future}, TierPremium},
		{"expired trial", Account{TrialEndsAt: &past}, TierFree},
		{"trial ends exactly now", Account{TrialEndsAt: &now}, TierFree},
		{"guest with expired trial", Account{IsGuest: true, TrialEndsAt: &past}, TierVisitor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveTier(tt.acct, now); got != tt.want {
				t.Errorf("ResolveTier = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveTier_TrialBoundary(t *testing.T) {
	ends := testNow
	acct := Account{TrialEndsAt: &ends}
	if got := ResolveTier(acct, ends.Add(-time.Second)); got != TierPremium {
		t.Errorf("before expiry = %s, want premium", got)
	}
	if got := ResolveTier(acct, ends.Add(time.Second)); got != TierFree {
		t.Errorf("after expiry = %s, want free", got)
	}
}
