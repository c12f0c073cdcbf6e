// Package provider holds provider records and the accrual algorithm.
//
// A provider earns Fee token units per subscriber per billing period.
// Earnings accrue continuously and are folded into Balance by Settle.
// Every change to SubscriberCount or Fee must be preceded by a Settle at
// the same instant so that past time is billed at the old rate.
package provider

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/types"
)

// ErrNegativeCount is returned when a count adjustment would drop below zero.
var ErrNegativeCount = errors.New("accrual: subscriber count would become negative")

// Provider is a seller of recurring service.
type Provider struct {
	types.Entity
	ID              id.ProviderID  `json:"id"`
	Owner           types.Identity `json:"owner"`
	RegistrationKey string         `json:"registration_key"`
	SubscriberCount int64          `json:"subscriber_count"`
	LastSettled     time.Time      `json:"last_settled"`
	Fee             types.Amount   `json:"fee"`
	Balance         types.Amount   `json:"balance"`
}

// New returns a fresh provider record settled at now.
func New(h id.ProviderID, owner types.Identity, key string, fee types.Amount, now time.Time) *Provider {
	return &Provider{
		Entity:          types.NewEntity(now),
		ID:              h,
		Owner:           owner,
		RegistrationKey: key,
		LastSettled:     now.UTC(),
		Fee:             fee,
	}
}

// Clone returns a copy that can be mutated independently.
func (p *Provider) Clone() *Provider {
	c := *p
	return &c
}

// IsOwner reports whether caller owns the provider.
func (p *Provider) IsOwner(caller types.Identity) bool {
	return !caller.IsZero() && p.Owner == caller
}

// Elapsed returns the whole seconds between from and to. A clock that went
// backwards yields zero.
func Elapsed(from, to time.Time) int64 {
	d := to.Unix() - from.Unix()
	if d < 0 {
		return 0
	}
	return d
}

// Accrue computes floor(count * elapsed * fee / period) where period is
// truncated to whole seconds.
func Accrue(count, elapsed int64, fee types.Amount, period time.Duration) (types.Amount, error) {
	secs := int64(period / time.Second)
	if secs <= 0 {
		return 0, fmt.Errorf("provider: billing period %s is shorter than one second", period)
	}
	return types.MulDiv(count, elapsed, int64(fee), secs)
}

// Pending returns earnings accrued since LastSettled without settling.
func (p *Provider) Pending(now time.Time, period time.Duration) (types.Amount, error) {
	return Accrue(p.SubscriberCount, Elapsed(p.LastSettled, now), p.Fee, period)
}

// Settle folds pending earnings into Balance and moves LastSettled to now.
// It returns the amount added. Settling twice at the same instant adds zero.
func (p *Provider) Settle(now time.Time, period time.Duration) (types.Amount, error) {
	earned, err := p.Pending(now, period)
	if err != nil {
		return 0, fmt.Errorf("provider %d: settle: %w", p.ID, err)
	}
	if p.Balance > 0 && earned > math.MaxInt64-p.Balance {
		return 0, fmt.Errorf("provider %d: settle: %w", p.ID, types.ErrOverflow)
	}

	p.Balance += earned
	if now.After(p.LastSettled) {
		p.LastSettled = now.UTC()
	}
	p.Touch(now)
	return earned, nil
}

// AdjustSubscriberCount settles then applies delta to SubscriberCount.
// On error the record is left untouched.
func (p *Provider) AdjustSubscriberCount(delta int64, now time.Time, period time.Duration) error {
	if p.SubscriberCount+delta < 0 {
		return fmt.Errorf("provider %d: count %d%+d: %w", p.ID, p.SubscriberCount, delta, ErrNegativeCount)
	}
	if _, err := p.Settle(now, period); err != nil {
		return err
	}
	p.SubscriberCount += delta
	return nil
}

// UpdateFee settles at the old fee then switches to fee.
func (p *Provider) UpdateFee(fee types.Amount, now time.Time, period time.Duration) error {
	if _, err := p.Settle(now, period); err != nil {
		return err
	}
	p.Fee = fee
	return nil
}

// Drain settles and zeroes Balance. It returns what was in the balance and
// how much of it the settlement added.
func (p *Provider) Drain(now time.Time, period time.Duration) (amount, earned types.Amount, err error) {
	earned, err = p.Settle(now, period)
	if err != nil {
		return 0, 0, err
	}
	amount = p.Balance
	p.Balance = 0
	return amount, earned, nil
}
