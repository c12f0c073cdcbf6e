// Package observability provides a metrics extension for the accrual ledger
// that records event counts and amounts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/plugin"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnProviderRegistered   = (*MetricsExtension)(nil)
	_ plugin.OnProviderRemoved      = (*MetricsExtension)(nil)
	_ plugin.OnProviderSettled      = (*MetricsExtension)(nil)
	_ plugin.OnEarningsWithdrawn    = (*MetricsExtension)(nil)
	_ plugin.OnFeeUpdated           = (*MetricsExtension)(nil)
	_ plugin.OnProvidersActivated   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriberRegistered = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionPaused   = (*MetricsExtension)(nil)
	_ plugin.OnDeposit              = (*MetricsExtension)(nil)
	_ plugin.OnTransferFailed       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger metrics.
// Register it as a Ledger plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Provider metrics
	ProviderRegistered   Counter
	ProviderRemoved      Counter
	ProviderActivated    Counter
	ProviderDeactivated  Counter
	ProviderFeeUpdated   Counter
	ProviderSettlements  Counter
	ProviderEarned       Counter
	ProviderWithdrawn    Counter
	ProviderPayoutAmount Histogram

	// Subscriber metrics
	SubscriberRegistered Counter
	SubscriptionPaused   Counter
	SubscriberDeposits   Counter
	DepositAmount        Histogram
	SubscriberProviders  Histogram

	// Error metrics
	TransferFailures Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory for a Prometheus registry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Provider metrics
		ProviderRegistered:   factory.Counter("accrual.provider.registered"),
		ProviderRemoved:      factory.Counter("accrual.provider.removed"),
		ProviderActivated:    factory.Counter("accrual.provider.activated"),
		ProviderDeactivated:  factory.Counter("accrual.provider.deactivated"),
		ProviderFeeUpdated:   factory.Counter("accrual.provider.fee_updated"),
		ProviderSettlements:  factory.Counter("accrual.provider.settlements"),
		ProviderEarned:       factory.Counter("accrual.provider.earned"),
		ProviderWithdrawn:    factory.Counter("accrual.provider.withdrawn"),
		ProviderPayoutAmount: factory.Histogram("accrual.provider.payout_amount"),

		// Subscriber metrics
		SubscriberRegistered: factory.Counter("accrual.subscriber.registered"),
		SubscriptionPaused:   factory.Counter("accrual.subscriber.paused"),
		SubscriberDeposits:   factory.Counter("accrual.subscriber.deposits"),
		DepositAmount:        factory.Histogram("accrual.subscriber.deposit_amount"),
		SubscriberProviders:  factory.Histogram("accrual.subscriber.providers"),

		// Error metrics
		TransferFailures: factory.Counter("accrual.transfer.failures"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnProviderRegistered implements plugin.OnProviderRegistered.
func (m *MetricsExtension) OnProviderRegistered(_ context.Context, _ id.ProviderID, _ types.Identity, _ types.Amount) error {
	m.ProviderRegistered.Inc()
	return nil
}

// OnProviderRemoved implements plugin.OnProviderRemoved.
func (m *MetricsExtension) OnProviderRemoved(_ context.Context, _ *provider.Provider, payout types.Amount) error {
	m.ProviderRemoved.Inc()
	if payout.IsPositive() {
		m.ProviderPayoutAmount.Observe(float64(payout))
	}
	return nil
}

// OnProviderSettled implements plugin.OnProviderSettled.
func (m *MetricsExtension) OnProviderSettled(_ context.Context, _ id.ProviderID, earned types.Amount, _ time.Time) error {
	m.ProviderSettlements.Inc()
	m.ProviderEarned.Add(float64(earned))
	return nil
}

// OnEarningsWithdrawn implements plugin.OnEarningsWithdrawn.
func (m *MetricsExtension) OnEarningsWithdrawn(_ context.Context, _ id.ProviderID, _ types.Identity, amount types.Amount) error {
	m.ProviderWithdrawn.Inc()
	m.ProviderPayoutAmount.Observe(float64(amount))
	return nil
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (m *MetricsExtension) OnFeeUpdated(_ context.Context, _ id.ProviderID, _, _ types.Amount) error {
	m.ProviderFeeUpdated.Inc()
	return nil
}

// OnProvidersActivated implements plugin.OnProvidersActivated.
func (m *MetricsExtension) OnProvidersActivated(_ context.Context, providerIDs []id.ProviderID, active bool) error {
	if active {
		m.ProviderActivated.Add(float64(len(providerIDs)))
	} else {
		m.ProviderDeactivated.Add(float64(len(providerIDs)))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscriber hooks
// ──────────────────────────────────────────────────

// OnSubscriberRegistered implements plugin.OnSubscriberRegistered.
func (m *MetricsExtension) OnSubscriberRegistered(_ context.Context, s *subscriber.Subscriber) error {
	m.SubscriberRegistered.Inc()
	m.SubscriberProviders.Observe(float64(len(s.ProviderIDs)))
	if s.Balance.IsPositive() {
		m.DepositAmount.Observe(float64(s.Balance))
	}
	return nil
}

// OnSubscriptionPaused implements plugin.OnSubscriptionPaused.
func (m *MetricsExtension) OnSubscriptionPaused(_ context.Context, _ *subscriber.Subscriber) error {
	m.SubscriptionPaused.Inc()
	return nil
}

// OnDeposit implements plugin.OnDeposit.
func (m *MetricsExtension) OnDeposit(_ context.Context, _ id.SubscriberID, _ types.Identity, amount types.Amount) error {
	m.SubscriberDeposits.Inc()
	m.DepositAmount.Observe(float64(amount))
	return nil
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferFailed implements plugin.OnTransferFailed.
func (m *MetricsExtension) OnTransferFailed(_ context.Context, _ transfer.Kind, _ types.Identity, _ types.Amount, _ error) error {
	m.TransferFailures.Inc()
	return nil
}
