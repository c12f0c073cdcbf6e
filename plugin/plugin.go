// Package plugin provides an extensible plugin system for the accrual ledger.
// Plugins can hook into lifecycle and ledger events to extend functionality.
// Hooks run after the ledger has committed the change they describe.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnProviderRegistered is called when a provider is registered.
type OnProviderRegistered interface {
	Plugin
	OnProviderRegistered(ctx context.Context, providerID id.ProviderID, owner types.Identity, fee types.Amount) error
}

// OnProviderRemoved is called when a provider is removed and paid out.
type OnProviderRemoved interface {
	Plugin
	OnProviderRemoved(ctx context.Context, p *provider.Provider, payout types.Amount) error
}

// OnProviderSettled is called when a settlement added earnings.
type OnProviderSettled interface {
	Plugin
	OnProviderSettled(ctx context.Context, providerID id.ProviderID, earned types.Amount, at time.Time) error
}

// OnEarningsWithdrawn is called when a provider owner withdraws earnings.
type OnEarningsWithdrawn interface {
	Plugin
	OnEarningsWithdrawn(ctx context.Context, providerID id.ProviderID, to types.Identity, amount types.Amount) error
}

// OnFeeUpdated is called when a provider changes its fee.
type OnFeeUpdated interface {
	Plugin
	OnFeeUpdated(ctx context.Context, providerID id.ProviderID, oldFee, newFee types.Amount) error
}

// OnProvidersActivated is called when providers are activated or deactivated.
type OnProvidersActivated interface {
	Plugin
	OnProvidersActivated(ctx context.Context, providerIDs []id.ProviderID, active bool) error
}

// ──────────────────────────────────────────────────
// Subscriber hooks
// ──────────────────────────────────────────────────

// OnSubscriberRegistered is called when a subscriber is registered.
type OnSubscriberRegistered interface {
	Plugin
	OnSubscriberRegistered(ctx context.Context, s *subscriber.Subscriber) error
}

// OnSubscriptionPaused is called when a subscription is paused.
type OnSubscriptionPaused interface {
	Plugin
	OnSubscriptionPaused(ctx context.Context, s *subscriber.Subscriber) error
}

// OnDeposit is called when funds are added to a subscription.
type OnDeposit interface {
	Plugin
	OnDeposit(ctx context.Context, subscriberID id.SubscriberID, from types.Identity, amount types.Amount) error
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferFailed is called when the custody collaborator rejects a
// transfer and the ledger rolled the operation back.
type OnTransferFailed interface {
	Plugin
	OnTransferFailed(ctx context.Context, kind transfer.Kind, party types.Identity, amount types.Amount, err error) error
}
