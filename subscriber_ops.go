package accrual

import (
	"context"
	"fmt"
	"math"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// ──────────────────────────────────────────────────
// Subscriber Management
// ──────────────────────────────────────────────────

// RegisterSubscriber subscribes caller to every listed provider and pulls
// the deposit into custody. The deposit must cover two billing periods of
// the combined fee. A provider listed twice is subscribed twice.
func (l *Ledger) RegisterSubscriber(ctx context.Context, caller types.Identity, deposit types.Amount, plan subscriber.Plan, providerIDs []id.ProviderID) (id.SubscriberID, error) {
	l.mu.Lock()
	h, events, err := l.registerSubscriber(ctx, caller, deposit, plan, providerIDs)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return h, err
}

func (l *Ledger) registerSubscriber(ctx context.Context, caller types.Identity, deposit types.Amount, plan subscriber.Plan, ids []id.ProviderID) (id.SubscriberID, []event, error) {
	const op = "register subscriber"
	if err := l.requireStarted(op); err != nil {
		return 0, nil, err
	}
	if caller.IsZero() {
		return 0, nil, ValidationError{Field: "caller", Message: "is required"}
	}

	if n := len(ids); n < l.cfg.MinSubscriberProviders || n > l.cfg.MaxSubscriberProviders {
		return 0, nil, fmt.Errorf("accrual: %s: %d providers, want %d..%d: %w",
			op, n, l.cfg.MinSubscriberProviders, l.cfg.MaxSubscriberProviders, ErrInvalidProviderCount)
	}
	if deposit.IsNegative() {
		return 0, nil, fmt.Errorf("accrual: %s: deposit %d: %w", op, deposit, ErrInvalidAmount)
	}
	if !plan.Valid() {
		return 0, nil, ValidationError{Field: "plan", Message: fmt.Sprintf("unknown plan %q", plan)}
	}

	now := l.clock.Now()
	m := l.newMembership(now)
	fees := make([]types.Amount, 0, len(ids))
	for _, pid := range ids {
		if !l.providers.Live(pid) {
			return 0, nil, fmt.Errorf("accrual: %s: provider %d: %w", op, pid, ErrProviderInactive)
		}
		if err := m.adjust(pid, 1); err != nil {
			return 0, nil, fmt.Errorf("accrual: %s: %w", op, err)
		}
		fee, _ := l.providers.LiveFee(pid)
		fees = append(fees, fee)
	}

	// An overflowing requirement cannot be covered by any deposit.
	if required, err := requiredDeposit(fees); err != nil || deposit < required {
		return 0, nil, fmt.Errorf("accrual: %s: deposit %d: %w", op, deposit, ErrInsufficientDeposit)
	}

	h := l.subscriberSeq.Next()
	sub := subscriber.New(h, caller, plan, deposit, ids, now)

	apply := &store.Changes{
		Providers:   m.records(),
		Subscribers: []*subscriber.Subscriber{sub},
	}
	apply.SetSequence(store.SeqSubscriber, h)
	undo := &store.Changes{
		Providers:         m.preimage(),
		DeleteSubscribers: []id.SubscriberID{h},
	}

	events, err := l.commit(ctx, &mutation{
		op:       op,
		apply:    apply,
		undo:     undo,
		movement: &movement{kind: transfer.KindPull, party: caller, amount: deposit},
	})
	if err != nil {
		return 0, events, err
	}

	l.logger.Info("subscriber registered",
		"subscriber_id", h,
		"owner", caller,
		"plan", plan,
		"providers", len(ids),
		"deposit", deposit,
	)

	events = append(events, m.settled(l)...)
	events = append(events, func(ctx context.Context) {
		l.plugins.EmitSubscriberRegistered(ctx, sub.Clone())
	})
	return h, events, nil
}

// PauseSubscription stops billing a subscription. Every referenced provider
// that is still live is settled and loses one subscriber. Pausing cannot be
// undone.
func (l *Ledger) PauseSubscription(ctx context.Context, subscriberID id.SubscriberID, caller types.Identity) error {
	l.mu.Lock()
	events, err := l.pauseSubscription(ctx, subscriberID, caller)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return err
}

func (l *Ledger) pauseSubscription(ctx context.Context, h id.SubscriberID, caller types.Identity) ([]event, error) {
	const op = "pause subscription"
	if err := l.requireStarted(op); err != nil {
		return nil, err
	}

	orig, err := l.ownedSubscriber(op, h, caller)
	if err != nil {
		return nil, err
	}
	if orig.IsPaused() {
		return nil, fmt.Errorf("accrual: %s: subscriber %d: %w", op, h, ErrSubscriptionPaused)
	}

	now := l.clock.Now()
	m := l.newMembership(now)
	for _, pid := range orig.ProviderIDs {
		// Deactivated and removed providers are skipped.
		if !l.providers.Live(pid) {
			continue
		}
		if err := m.adjust(pid, -1); err != nil {
			return nil, fmt.Errorf("accrual: %s: subscriber %d: %w", op, h, err)
		}
	}

	sub := orig.Clone()
	sub.PausedDate = now.UTC()
	sub.Touch(now)

	events, err := l.commit(ctx, &mutation{
		op: op,
		apply: &store.Changes{
			Providers:   m.records(),
			Subscribers: []*subscriber.Subscriber{sub},
		},
		undo: &store.Changes{
			Providers:   m.preimage(),
			Subscribers: []*subscriber.Subscriber{orig},
		},
	})
	if err != nil {
		return events, err
	}

	l.logger.Info("subscription paused",
		"subscriber_id", h,
		"providers", len(m.order),
	)

	events = append(events, m.settled(l)...)
	events = append(events, func(ctx context.Context) {
		l.plugins.EmitSubscriptionPaused(ctx, sub.Clone())
	})
	return events, nil
}

// DepositToSubscription pulls amount from caller and adds it to the
// subscription balance. A zero amount is a no-op.
func (l *Ledger) DepositToSubscription(ctx context.Context, subscriberID id.SubscriberID, caller types.Identity, amount types.Amount) error {
	l.mu.Lock()
	events, err := l.depositToSubscription(ctx, subscriberID, caller, amount)
	l.mu.Unlock()

	l.dispatch(ctx, events)
	return err
}

func (l *Ledger) depositToSubscription(ctx context.Context, h id.SubscriberID, caller types.Identity, amount types.Amount) ([]event, error) {
	const op = "deposit to subscription"
	if err := l.requireStarted(op); err != nil {
		return nil, err
	}

	orig, err := l.ownedSubscriber(op, h, caller)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("accrual: %s: amount %d: %w", op, amount, ErrInvalidAmount)
	}
	if amount.IsZero() {
		return nil, nil
	}
	if orig.Balance > math.MaxInt64-amount {
		return nil, fmt.Errorf("accrual: %s: %w", op, ErrOverflow)
	}

	now := l.clock.Now()
	sub := orig.Clone()
	sub.Balance += amount
	sub.Touch(now)

	events, err := l.commit(ctx, &mutation{
		op:       op,
		apply:    &store.Changes{Subscribers: []*subscriber.Subscriber{sub}},
		undo:     &store.Changes{Subscribers: []*subscriber.Subscriber{orig}},
		movement: &movement{kind: transfer.KindPull, party: caller, amount: amount},
	})
	if err != nil {
		return events, err
	}

	l.logger.Debug("subscription deposit",
		"subscriber_id", h,
		"amount", amount,
		"balance", sub.Balance,
	)

	events = append(events, func(ctx context.Context) {
		l.plugins.EmitDeposit(ctx, h, caller, amount)
	})
	return events, nil
}

// ownedSubscriber returns a copy of h after checking that caller owns it.
func (l *Ledger) ownedSubscriber(op string, h id.SubscriberID, caller types.Identity) (*subscriber.Subscriber, error) {
	s, ok := l.subscribers.Get(h)
	if !ok {
		return nil, fmt.Errorf("accrual: %s: subscriber %d: %w", op, h, ErrSubscriberNotFound)
	}
	if !s.IsOwner(caller) {
		return nil, fmt.Errorf("accrual: %s: subscriber %d: %w", op, h, ErrNotOwner)
	}
	return s, nil
}

// requiredDeposit returns two billing periods of the combined fee.
func requiredDeposit(fees []types.Amount) (types.Amount, error) {
	total, err := types.Sum(fees...)
	if err != nil {
		return 0, err
	}
	return types.MulDiv(2, int64(total), 1, 1)
}
