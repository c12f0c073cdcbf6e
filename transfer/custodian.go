package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/types"
)

// FailFunc decides whether a transfer should fail. Returning nil lets it
// proceed.
type FailFunc func(kind Kind, party types.Identity, amount types.Amount) error

// Custodian is an in-memory Transferor. It keeps holdings per identity and
// a single custody balance.
type Custodian struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	holdings  map[types.Identity]types.Amount
	custody   types.Amount
	unlimited bool
	fail      FailFunc
	history   []*Transfer
}

var _ Transferor = (*Custodian)(nil)

// CustodianOption configures a Custodian.
type CustodianOption func(*Custodian)

// WithUnlimitedHoldings lets any identity pull any amount.
func WithUnlimitedHoldings() CustodianOption {
	return func(c *Custodian) { c.unlimited = true }
}

// WithFailure installs a failure injector.
func WithFailure(fn FailFunc) CustodianOption {
	return func(c *Custodian) { c.fail = fn }
}

// WithClock sets the clock used to stamp transfers.
func WithClock(clock clockwork.Clock) CustodianOption {
	return func(c *Custodian) { c.clock = clock }
}

// NewCustodian returns an empty custodian.
func NewCustodian(opts ...CustodianOption) *Custodian {
	c := &Custodian{
		clock:    clockwork.NewRealClock(),
		holdings: make(map[types.Identity]types.Amount),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fund credits an identity's holdings.
func (c *Custodian) Fund(who types.Identity, amount types.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdings[who] += amount
}

// SetFailure replaces the failure injector. Pass nil to clear it.
func (c *Custodian) SetFailure(fn FailFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fn
}

// Pull implements Transferor.
func (c *Custodian) Pull(_ context.Context, from types.Identity, amount types.Amount) (*Transfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(KindPull, from, amount); err != nil {
		return nil, err
	}
	if !c.unlimited {
		if c.holdings[from] < amount {
			return nil, fmt.Errorf("pull %d from %s: %w", amount, from, ErrInsufficientFunds)
		}
		c.holdings[from] -= amount
	}
	c.custody += amount

	return c.record(KindPull, from, amount), nil
}

// Payout implements Transferor.
func (c *Custodian) Payout(_ context.Context, to types.Identity, amount types.Amount) (*Transfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(KindPayout, to, amount); err != nil {
		return nil, err
	}
	if c.custody < amount {
		return nil, fmt.Errorf("payout %d to %s: %w", amount, to, ErrCustodyShortfall)
	}
	c.custody -= amount
	c.holdings[to] += amount

	return c.record(KindPayout, to, amount), nil
}

// Holdings returns the funds held by an identity.
func (c *Custodian) Holdings(who types.Identity) types.Amount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdings[who]
}

// Custody returns the funds held on behalf of the ledger.
func (c *Custodian) Custody() types.Amount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.custody
}

// History returns completed transfers in order.
func (c *Custodian) History() []*Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Transfer, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Custodian) check(kind Kind, party types.Identity, amount types.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%s %d: %w", kind, amount, ErrInvalidAmount)
	}
	if c.fail != nil {
		if err := c.fail(kind, party, amount); err != nil {
			return err
		}
	}
	return nil
}

func (c *Custodian) record(kind Kind, party types.Identity, amount types.Amount) *Transfer {
	t := &Transfer{
		ID:        id.NewTransferID(),
		Kind:      kind,
		Party:     party,
		Amount:    amount,
		CreatedAt: c.clock.Now().UTC(),
	}
	c.history = append(c.history, t)
	return t
}
