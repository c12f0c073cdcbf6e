// Package audithook bridges accrual ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/plugin"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnProviderRegistered   = (*Extension)(nil)
	_ plugin.OnProviderRemoved      = (*Extension)(nil)
	_ plugin.OnProviderSettled      = (*Extension)(nil)
	_ plugin.OnEarningsWithdrawn    = (*Extension)(nil)
	_ plugin.OnFeeUpdated           = (*Extension)(nil)
	_ plugin.OnProvidersActivated   = (*Extension)(nil)
	_ plugin.OnSubscriberRegistered = (*Extension)(nil)
	_ plugin.OnSubscriptionPaused   = (*Extension)(nil)
	_ plugin.OnDeposit              = (*Extension)(nil)
	_ plugin.OnTransferFailed       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	ID         id.EventID     `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnProviderRegistered implements plugin.OnProviderRegistered.
func (e *Extension) OnProviderRegistered(ctx context.Context, providerID id.ProviderID, owner types.Identity, fee types.Amount) error {
	return e.record(ctx, ActionProviderRegistered, SeverityInfo, OutcomeSuccess,
		ResourceProvider, providerID.String(), CategoryBilling, nil,
		"owner", owner.String(),
		"fee", fee.Int64(),
	)
}

// OnProviderRemoved implements plugin.OnProviderRemoved.
func (e *Extension) OnProviderRemoved(ctx context.Context, p *provider.Provider, payout types.Amount) error {
	return e.record(ctx, ActionProviderRemoved, SeverityInfo, OutcomeSuccess,
		ResourceProvider, p.ID.String(), CategoryBilling, nil,
		"owner", p.Owner.String(),
		"payout", payout.Int64(),
		"subscriber_count", p.SubscriberCount,
	)
}

// OnProviderSettled implements plugin.OnProviderSettled.
func (e *Extension) OnProviderSettled(ctx context.Context, providerID id.ProviderID, earned types.Amount, at time.Time) error {
	return e.record(ctx, ActionProviderSettled, SeverityInfo, OutcomeSuccess,
		ResourceProvider, providerID.String(), CategoryBilling, nil,
		"earned", earned.Int64(),
		"settled_at", at.UTC(),
	)
}

// OnEarningsWithdrawn implements plugin.OnEarningsWithdrawn.
func (e *Extension) OnEarningsWithdrawn(ctx context.Context, providerID id.ProviderID, to types.Identity, amount types.Amount) error {
	return e.record(ctx, ActionEarningsWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceProvider, providerID.String(), CategoryPayment, nil,
		"to", to.String(),
		"amount", amount.Int64(),
	)
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (e *Extension) OnFeeUpdated(ctx context.Context, providerID id.ProviderID, oldFee, newFee types.Amount) error {
	return e.record(ctx, ActionFeeUpdated, SeverityInfo, OutcomeSuccess,
		ResourceProvider, providerID.String(), CategoryBilling, nil,
		"old_fee", oldFee.Int64(),
		"new_fee", newFee.Int64(),
	)
}

// OnProvidersActivated implements plugin.OnProvidersActivated. One event
// is recorded per provider.
func (e *Extension) OnProvidersActivated(ctx context.Context, providerIDs []id.ProviderID, active bool) error {
	action := ActionProvidersActivated
	if !active {
		action = ActionProvidersDeactivated
	}
	for _, pid := range providerIDs {
		if err := e.record(ctx, action, SeverityWarning, OutcomeSuccess,
			ResourceProvider, pid.String(), CategoryAccess, nil,
			"active", active,
		); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscriber hooks
// ──────────────────────────────────────────────────

// OnSubscriberRegistered implements plugin.OnSubscriberRegistered.
func (e *Extension) OnSubscriberRegistered(ctx context.Context, s *subscriber.Subscriber) error {
	return e.record(ctx, ActionSubscriberRegistered, SeverityInfo, OutcomeSuccess,
		ResourceSubscriber, s.ID.String(), CategorySubscription, nil,
		"owner", s.Owner.String(),
		"plan", string(s.Plan),
		"deposit", s.Balance.Int64(),
		"providers", len(s.ProviderIDs),
	)
}

// OnSubscriptionPaused implements plugin.OnSubscriptionPaused.
func (e *Extension) OnSubscriptionPaused(ctx context.Context, s *subscriber.Subscriber) error {
	return e.record(ctx, ActionSubscriptionPaused, SeverityInfo, OutcomeSuccess,
		ResourceSubscriber, s.ID.String(), CategorySubscription, nil,
		"owner", s.Owner.String(),
		"paused_at", s.PausedDate,
	)
}

// OnDeposit implements plugin.OnDeposit.
func (e *Extension) OnDeposit(ctx context.Context, subscriberID id.SubscriberID, from types.Identity, amount types.Amount) error {
	return e.record(ctx, ActionDeposit, SeverityInfo, OutcomeSuccess,
		ResourceSubscriber, subscriberID.String(), CategoryPayment, nil,
		"from", from.String(),
		"amount", amount.Int64(),
	)
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferFailed implements plugin.OnTransferFailed.
func (e *Extension) OnTransferFailed(ctx context.Context, kind transfer.Kind, party types.Identity, amount types.Amount, err error) error {
	return e.record(ctx, ActionTransferFailed, SeverityCritical, OutcomeFailure,
		ResourceTransfer, "", CategoryPayment, err,
		"kind", string(kind),
		"party", party.String(),
		"amount", amount.Int64(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewEventID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
