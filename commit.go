package accrual

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// event is a plugin notification queued while the write lock is held and
// dispatched after it is released.
type event func(ctx context.Context)

// movement is the asset transfer that completes a mutation.
type movement struct {
	kind   transfer.Kind
	party  types.Identity
	amount types.Amount
}

// mutation is a staged change: the writes that apply it, the writes that
// restore the pre-image, and an optional transfer.
type mutation struct {
	op       string
	apply    *store.Changes
	undo     *store.Changes
	movement *movement
}

// commit persists m, runs its transfer and then applies it to memory.
// Nothing in memory changes unless every step succeeded. Caller holds mu.
func (l *Ledger) commit(ctx context.Context, m *mutation) ([]event, error) {
	if err := l.store.Apply(ctx, m.apply); err != nil {
		// A partial write is put back to the pre-image.
		if uerr := l.store.Apply(ctx, m.undo); uerr != nil {
			l.logger.Error("accrual rollback failed",
				"op", m.op,
				"error", uerr,
			)
			err = errors.Join(err, uerr)
		}
		return nil, fmt.Errorf("accrual: %s: persist: %w", m.op, err)
	}

	if mv := m.movement; mv != nil && mv.amount.IsPositive() {
		if terr := l.move(ctx, mv); terr != nil {
			err := fmt.Errorf("accrual: %s: %w: %w", m.op, ErrTransferFailed, terr)
			if rerr := l.store.Apply(ctx, m.undo); rerr != nil {
				l.logger.Error("accrual rollback failed",
					"op", m.op,
					"error", rerr,
				)
				err = errors.Join(err, fmt.Errorf("accrual: %s: rollback: %w", m.op, rerr))
			}

			l.logger.Warn("accrual transfer failed",
				"op", m.op,
				"kind", mv.kind,
				"party", mv.party,
				"amount", mv.amount,
				"error", terr,
			)
			failed := []event{func(ctx context.Context) {
				l.plugins.EmitTransferFailed(ctx, mv.kind, mv.party, mv.amount, terr)
			}}
			return failed, err
		}
	}

	l.applyMemory(m.apply)
	return nil, nil
}

func (l *Ledger) move(ctx context.Context, mv *movement) error {
	var (
		t   *transfer.Transfer
		err error
	)
	switch mv.kind {
	case transfer.KindPull:
		t, err = l.transfers.Pull(ctx, mv.party, mv.amount)
	case transfer.KindPayout:
		t, err = l.transfers.Payout(ctx, mv.party, mv.amount)
	default:
		return fmt.Errorf("unknown transfer kind %q", mv.kind)
	}
	if err != nil {
		return err
	}

	if t != nil {
		l.logger.Debug("accrual transfer",
			"transfer_id", t.ID.String(),
			"kind", t.Kind,
			"party", t.Party,
			"amount", t.Amount,
		)
	}
	return nil
}

// applyMemory mirrors a committed change set into the in-memory tables.
// Sequences are already advanced by the allocators.
func (l *Ledger) applyMemory(ch *store.Changes) {
	for _, h := range ch.DeleteProviders {
		l.providers.Delete(h)
	}
	for _, p := range ch.Providers {
		l.providers.Put(p.Clone())
	}
	for _, f := range ch.Active {
		l.providers.SetActive(f.ID, f.Active)
	}

	for _, h := range ch.DeleteSubscribers {
		l.subscribers.Delete(h)
	}
	for _, s := range ch.Subscribers {
		l.subscribers.Put(s.Clone())
	}

	for _, k := range ch.ReleaseKeys {
		delete(l.keys, k)
	}
	for _, k := range ch.ConsumeKeys {
		l.keys[k] = struct{}{}
	}
}

// dispatch emits queued events. Call it without holding mu.
func (l *Ledger) dispatch(ctx context.Context, events []event) {
	for _, e := range events {
		e(ctx)
	}
}

// requireStarted fails mutations issued before Start. Caller holds mu.
func (l *Ledger) requireStarted(op string) error {
	if !l.started {
		return fmt.Errorf("accrual: %s: %w", op, ErrNotStarted)
	}
	return nil
}
