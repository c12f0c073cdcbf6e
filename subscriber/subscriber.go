// Package subscriber holds subscriber records and live-balance estimation.
package subscriber

import (
	"fmt"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/types"
)

// Plan is a cosmetic subscription tier. It does not affect billing.
type Plan string

const (
	PlanBasic    Plan = "basic"
	PlanStandard Plan = "standard"
	PlanPremium  Plan = "premium"
)

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	switch p {
	case PlanBasic, PlanStandard, PlanPremium:
		return true
	default:
		return false
	}
}

// ParsePlan converts a string to a Plan.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("subscriber: unknown plan %q", s)
	}
	return p, nil
}

// Subscriber pays a fixed set of providers from a prepaid balance.
type Subscriber struct {
	types.Entity
	ID          id.SubscriberID `json:"id"`
	Owner       types.Identity  `json:"owner"`
	Plan        Plan            `json:"plan"`
	CreatedDate time.Time       `json:"created_date"`
	PausedDate  time.Time       `json:"paused_date,omitempty"`
	Balance     types.Amount    `json:"balance"`
	ProviderIDs []id.ProviderID `json:"provider_ids"`
}

// New returns an active subscriber created at now.
func New(h id.SubscriberID, owner types.Identity, plan Plan, deposit types.Amount, providers []id.ProviderID, now time.Time) *Subscriber {
	ids := make([]id.ProviderID, len(providers))
	copy(ids, providers)
	return &Subscriber{
		Entity:      types.NewEntity(now),
		ID:          h,
		Owner:       owner,
		Plan:        plan,
		CreatedDate: now.UTC(),
		Balance:     deposit,
		ProviderIDs: ids,
	}
}

// Clone returns a deep copy.
func (s *Subscriber) Clone() *Subscriber {
	c := *s
	c.ProviderIDs = make([]id.ProviderID, len(s.ProviderIDs))
	copy(c.ProviderIDs, s.ProviderIDs)
	return &c
}

// IsOwner reports whether caller owns the subscription.
func (s *Subscriber) IsOwner(caller types.Identity) bool {
	return !caller.IsZero() && s.Owner == caller
}

// IsPaused reports whether the subscription has been paused.
func (s *Subscriber) IsPaused() bool {
	return !s.PausedDate.IsZero()
}

// FeeLookup returns the fee of a provider if it is still active.
type FeeLookup func(id.ProviderID) (types.Amount, bool)

// LiveBalance estimates the unspent balance at now.
//
// Consumption is charged from CreatedDate to PausedDate (or now) at the
// combined fee of the providers that are active at the time of the call.
// Providers deactivated or removed since creation drop out of the whole
// window, so the estimate overstates what is left in that case.
func (s *Subscriber) LiveBalance(now time.Time, period time.Duration, fees FeeLookup) (types.Amount, error) {
	end := now
	if s.IsPaused() {
		end = s.PausedDate
	}

	var perPeriod types.Amount
	for _, pid := range s.ProviderIDs {
		fee, ok := fees(pid)
		if !ok {
			continue
		}
		var err error
		if perPeriod, err = perPeriod.CheckedAdd(fee); err != nil {
			return 0, fmt.Errorf("subscriber %d: live balance: %w", s.ID, err)
		}
	}

	secs := int64(period / time.Second)
	if secs <= 0 {
		return 0, fmt.Errorf("subscriber: billing period %s is shorter than one second", period)
	}

	elapsed := end.Unix() - s.CreatedDate.Unix()
	if elapsed < 0 {
		elapsed = 0
	}

	consumed, err := types.MulDiv(elapsed, int64(perPeriod), 1, secs)
	if err != nil {
		return 0, fmt.Errorf("subscriber %d: live balance: %w", s.ID, err)
	}

	return s.Balance.SaturatingSub(consumed), nil
}
