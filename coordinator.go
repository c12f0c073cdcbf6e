package accrual

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
)

// membership stages subscriber-count changes across several providers.
//
// Every adjustment settles and mutates a clone. The live table is only
// touched when the staged records are committed, so a failure part way
// through a provider list leaves no trace.
type membership struct {
	providers *provider.Ledger
	now       time.Time
	period    time.Duration

	staged    map[id.ProviderID]*provider.Provider
	originals map[id.ProviderID]*provider.Provider
	order     []id.ProviderID
}

func (l *Ledger) newMembership(now time.Time) *membership {
	return &membership{
		providers: l.providers,
		now:       now,
		period:    l.cfg.BillingPeriod,
		staged:    make(map[id.ProviderID]*provider.Provider),
		originals: make(map[id.ProviderID]*provider.Provider),
	}
}

// stage returns the working clone of h, cloning it on first use.
func (m *membership) stage(h id.ProviderID) (*provider.Provider, error) {
	if p, ok := m.staged[h]; ok {
		return p, nil
	}
	p, ok := m.providers.Get(h)
	if !ok {
		return nil, fmt.Errorf("provider %d: %w", h, ErrProviderNotFound)
	}
	m.originals[h] = p.Clone()
	m.staged[h] = p
	m.order = append(m.order, h)
	return p, nil
}

// adjust settles the staged copy of h and applies delta to its count.
func (m *membership) adjust(h id.ProviderID, delta int64) error {
	p, err := m.stage(h)
	if err != nil {
		return err
	}
	if err := p.AdjustSubscriberCount(delta, m.now, m.period); err != nil {
		if errors.Is(err, provider.ErrNegativeCount) {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return err
	}
	return nil
}

// records returns the staged clones in the order they were first touched.
func (m *membership) records() []*provider.Provider {
	out := make([]*provider.Provider, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.staged[h])
	}
	return out
}

// preimage returns the untouched records for rollback.
func (m *membership) preimage() []*provider.Provider {
	out := make([]*provider.Provider, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.originals[h])
	}
	return out
}

// settled queues one OnProviderSettled event per staged provider.
func (m *membership) settled(l *Ledger) []event {
	events := make([]event, 0, len(m.order))
	for _, h := range m.order {
		events = append(events, l.settledEvent(h, m.staged[h].Balance-m.originals[h].Balance, m.now))
	}
	return events
}
