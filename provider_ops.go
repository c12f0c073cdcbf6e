package accrual

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// ──────────────────────────────────────────────────
// Provider Management
// ──────────────────────────────────────────────────

// RegisterProvider creates an active provider owned by owner. The
// registration key is a one-time token; it is consumed only when the
// registration succeeds.
func (l *Ledger) RegisterProvider(ctx context.Context, owner types.Identity, registrationKey string, fee types.Amount) (id.ProviderID, error) {
	l.mu.Lock()
	h, events, err := l.registerProvider(ctx, owner, registrationKey, fee)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return h, err
}

func (l *Ledger) registerProvider(ctx context.Context, owner types.Identity, key string, fee types.Amount) (id.ProviderID, []event, error) {
	const op = "register provider"
	if err := l.requireStarted(op); err != nil {
		return 0, nil, err
	}

	switch {
	case owner.IsZero():
		return 0, nil, ValidationError{Field: "owner", Message: "is required"}
	case key == "":
		return 0, nil, ValidationError{Field: "registration_key", Message: "is required"}
	case fee.IsNegative():
		return 0, nil, ValidationError{Field: "fee", Message: "must not be negative"}
	}

	if _, used := l.keys[key]; used {
		return 0, nil, fmt.Errorf("accrual: %s: %w", op, ErrKeyAlreadyUsed)
	}
	if fee < l.cfg.MinFee {
		return 0, nil, fmt.Errorf("accrual: %s: fee %d < %d: %w", op, fee, l.cfg.MinFee, ErrFeeTooLow)
	}

	// The handle is burned even when capacity is exhausted.
	h := l.providerSeq.Next()
	if l.providers.Len() >= l.cfg.MaxProviders {
		burned := &store.Changes{}
		burned.SetSequence(store.SeqProvider, h)
		if err := l.store.Apply(ctx, burned); err != nil {
			l.logger.Warn("failed to persist provider sequence",
				"provider_id", h,
				"error", err,
			)
		}
		return 0, nil, fmt.Errorf("accrual: %s: %d providers: %w", op, l.providers.Len(), ErrCapacityExceeded)
	}

	now := l.clock.Now()
	p := provider.New(h, owner, key, fee, now)

	apply := &store.Changes{
		Providers:   []*provider.Provider{p},
		ConsumeKeys: []string{key},
		Active:      []store.ActiveFlag{{ID: h, Active: true}},
	}
	apply.SetSequence(store.SeqProvider, h)

	undo := &store.Changes{
		DeleteProviders: []id.ProviderID{h},
		ReleaseKeys:     []string{key},
		Active:          []store.ActiveFlag{{ID: h, Active: false}},
	}

	events, err := l.commit(ctx, &mutation{op: op, apply: apply, undo: undo})
	if err != nil {
		return 0, events, err
	}

	l.logger.Info("provider registered",
		"provider_id", h,
		"owner", owner,
		"fee", fee,
	)

	events = append(events, func(ctx context.Context) {
		l.plugins.EmitProviderRegistered(ctx, h, owner, fee)
	})
	return h, events, nil
}

// RemoveProvider settles a provider, pays its whole balance to the owner
// and deletes the record. The handle is never reused.
func (l *Ledger) RemoveProvider(ctx context.Context, providerID id.ProviderID, caller types.Identity) (types.Amount, error) {
	l.mu.Lock()
	payout, events, err := l.removeProvider(ctx, providerID, caller)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return payout, err
}

func (l *Ledger) removeProvider(ctx context.Context, h id.ProviderID, caller types.Identity) (types.Amount, []event, error) {
	const op = "remove provider"
	if err := l.requireStarted(op); err != nil {
		return 0, nil, err
	}

	orig, err := l.ownedProvider(op, h, caller)
	if err != nil {
		return 0, nil, err
	}

	now := l.clock.Now()
	p := orig.Clone()
	payout, earned, err := p.Drain(now, l.cfg.BillingPeriod)
	if err != nil {
		return 0, nil, fmt.Errorf("accrual: %s: %w", op, err)
	}

	apply := &store.Changes{
		DeleteProviders: []id.ProviderID{h},
		Active:          []store.ActiveFlag{{ID: h, Active: false}},
	}
	undo := &store.Changes{
		Providers: []*provider.Provider{orig},
		Active:    []store.ActiveFlag{{ID: h, Active: l.providers.IsActive(h)}},
	}

	events, err := l.commit(ctx, &mutation{
		op:       op,
		apply:    apply,
		undo:     undo,
		movement: &movement{kind: transfer.KindPayout, party: orig.Owner, amount: payout},
	})
	if err != nil {
		return 0, events, err
	}

	l.logger.Info("provider removed",
		"provider_id", h,
		"owner", orig.Owner,
		"payout", payout,
	)

	events = append(events, l.settledEvent(h, earned, now), func(ctx context.Context) {
		l.plugins.EmitProviderRemoved(ctx, p, payout)
	})
	return payout, events, nil
}

// WithdrawProviderEarnings settles a provider and pays its balance to the
// owner. A zero balance completes without a transfer.
func (l *Ledger) WithdrawProviderEarnings(ctx context.Context, providerID id.ProviderID, caller types.Identity) (types.Amount, error) {
	l.mu.Lock()
	amount, events, err := l.withdrawProviderEarnings(ctx, providerID, caller)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return amount, err
}

func (l *Ledger) withdrawProviderEarnings(ctx context.Context, h id.ProviderID, caller types.Identity) (types.Amount, []event, error) {
	const op = "withdraw provider earnings"
	if err := l.requireStarted(op); err != nil {
		return 0, nil, err
	}

	orig, err := l.ownedProvider(op, h, caller)
	if err != nil {
		return 0, nil, err
	}

	now := l.clock.Now()
	p := orig.Clone()
	amount, earned, err := p.Drain(now, l.cfg.BillingPeriod)
	if err != nil {
		return 0, nil, fmt.Errorf("accrual: %s: %w", op, err)
	}

	events, err := l.commit(ctx, &mutation{
		op:       op,
		apply:    &store.Changes{Providers: []*provider.Provider{p}},
		undo:     &store.Changes{Providers: []*provider.Provider{orig}},
		movement: &movement{kind: transfer.KindPayout, party: p.Owner, amount: amount},
	})
	if err != nil {
		return 0, events, err
	}

	events = append(events, l.settledEvent(h, earned, now))
	if amount.IsPositive() {
		l.logger.Info("provider earnings withdrawn",
			"provider_id", h,
			"amount", amount,
		)
		to := p.Owner
		events = append(events, func(ctx context.Context) {
			l.plugins.EmitEarningsWithdrawn(ctx, h, to, amount)
		})
	}
	return amount, events, nil
}

// UpdateProviderFee settles at the current fee and switches to newFee.
// The minimum fee only applies at registration.
func (l *Ledger) UpdateProviderFee(ctx context.Context, providerID id.ProviderID, caller types.Identity, newFee types.Amount) error {
	l.mu.Lock()
	events, err := l.updateProviderFee(ctx, providerID, caller, newFee)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return err
}

func (l *Ledger) updateProviderFee(ctx context.Context, h id.ProviderID, caller types.Identity, fee types.Amount) ([]event, error) {
	const op = "update provider fee"
	if err := l.requireStarted(op); err != nil {
		return nil, err
	}
	if fee.IsNegative() {
		return nil, ValidationError{Field: "fee", Message: "must not be negative"}
	}

	orig, err := l.ownedProvider(op, h, caller)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	p := orig.Clone()
	if err := p.UpdateFee(fee, now, l.cfg.BillingPeriod); err != nil {
		return nil, fmt.Errorf("accrual: %s: %w", op, err)
	}

	events, err := l.commit(ctx, &mutation{
		op:    op,
		apply: &store.Changes{Providers: []*provider.Provider{p}},
		undo:  &store.Changes{Providers: []*provider.Provider{orig}},
	})
	if err != nil {
		return events, err
	}

	oldFee := orig.Fee
	events = append(events, l.settledEvent(h, p.Balance-orig.Balance, now), func(ctx context.Context) {
		l.plugins.EmitFeeUpdated(ctx, h, oldFee, fee)
	})
	return events, nil
}

// SetProvidersActive toggles the active flag of every listed provider. It
// fails without changing anything if any ID has no record.
func (l *Ledger) SetProvidersActive(ctx context.Context, caller types.Identity, providerIDs []id.ProviderID, active bool) error {
	l.mu.Lock()
	events, err := l.setProvidersActive(ctx, caller, providerIDs, active)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return err
}

func (l *Ledger) setProvidersActive(ctx context.Context, caller types.Identity, ids []id.ProviderID, active bool) ([]event, error) {
	const op = "set providers active"
	if err := l.requireStarted(op); err != nil {
		return nil, err
	}
	if !l.cfg.IsAdmin(caller) {
		return nil, fmt.Errorf("accrual: %s: %w", op, ErrNotAdmin)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	apply := &store.Changes{Active: make([]store.ActiveFlag, 0, len(ids))}
	undo := &store.Changes{Active: make([]store.ActiveFlag, 0, len(ids))}
	for _, h := range ids {
		if !l.providers.Exists(h) {
			return nil, fmt.Errorf("accrual: %s: provider %d: %w", op, h, ErrUnknownProviderID)
		}
		apply.Active = append(apply.Active, store.ActiveFlag{ID: h, Active: active})
		undo.Active = append(undo.Active, store.ActiveFlag{ID: h, Active: l.providers.IsActive(h)})
	}
	// Undo runs in reverse so repeated IDs restore their first state.
	for i, j := 0, len(undo.Active)-1; i < j; i, j = i+1, j-1 {
		undo.Active[i], undo.Active[j] = undo.Active[j], undo.Active[i]
	}

	events, err := l.commit(ctx, &mutation{op: op, apply: apply, undo: undo})
	if err != nil {
		return events, err
	}

	l.logger.Info("providers activity changed",
		"count", len(ids),
		"active", active,
	)

	changed := append([]id.ProviderID(nil), ids...)
	events = append(events, func(ctx context.Context) {
		l.plugins.EmitProvidersActivated(ctx, changed, active)
	})
	return events, nil
}

// ownedProvider returns a copy of h after checking that caller owns it.
func (l *Ledger) ownedProvider(op string, h id.ProviderID, caller types.Identity) (*provider.Provider, error) {
	p, ok := l.providers.Get(h)
	if !ok {
		return nil, fmt.Errorf("accrual: %s: provider %d: %w", op, h, ErrProviderNotFound)
	}
	if !p.IsOwner(caller) {
		return nil, fmt.Errorf("accrual: %s: provider %d: %w", op, h, ErrNotOwner)
	}
	return p, nil
}

// settledEvent queues OnProviderSettled when earned is positive.
func (l *Ledger) settledEvent(h id.ProviderID, earned types.Amount, at time.Time) event {
	if earned.IsPositive() {
		l.logger.Debug("provider settled",
			"provider_id", h,
			"earned", earned,
		)
	}
	return func(ctx context.Context) {
		if earned.IsPositive() {
			l.plugins.EmitProviderSettled(ctx, h, earned, at)
		}
	}
}
