package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onProviderRegistered   []OnProviderRegistered
	onProviderRemoved      []OnProviderRemoved
	onProviderSettled      []OnProviderSettled
	onEarningsWithdrawn    []OnEarningsWithdrawn
	onFeeUpdated           []OnFeeUpdated
	onProvidersActivated   []OnProvidersActivated
	onSubscriberRegistered []OnSubscriberRegistered
	onSubscriptionPaused   []OnSubscriptionPaused
	onDeposit              []OnDeposit
	onTransferFailed       []OnTransferFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnProviderRegistered); ok {
		r.onProviderRegistered = append(r.onProviderRegistered, v)
	}
	if v, ok := p.(OnProviderRemoved); ok {
		r.onProviderRemoved = append(r.onProviderRemoved, v)
	}
	if v, ok := p.(OnProviderSettled); ok {
		r.onProviderSettled = append(r.onProviderSettled, v)
	}
	if v, ok := p.(OnEarningsWithdrawn); ok {
		r.onEarningsWithdrawn = append(r.onEarningsWithdrawn, v)
	}
	if v, ok := p.(OnFeeUpdated); ok {
		r.onFeeUpdated = append(r.onFeeUpdated, v)
	}
	if v, ok := p.(OnProvidersActivated); ok {
		r.onProvidersActivated = append(r.onProvidersActivated, v)
	}
	if v, ok := p.(OnSubscriberRegistered); ok {
		r.onSubscriberRegistered = append(r.onSubscriberRegistered, v)
	}
	if v, ok := p.(OnSubscriptionPaused); ok {
		r.onSubscriptionPaused = append(r.onSubscriptionPaused, v)
	}
	if v, ok := p.(OnDeposit); ok {
		r.onDeposit = append(r.onDeposit, v)
	}
	if v, ok := p.(OnTransferFailed); ok {
		r.onTransferFailed = append(r.onTransferFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnProviderRegistered)(nil)).Elem(), "OnProviderRegistered")
	checkInterface(reflect.TypeOf((*OnProviderRemoved)(nil)).Elem(), "OnProviderRemoved")
	checkInterface(reflect.TypeOf((*OnProviderSettled)(nil)).Elem(), "OnProviderSettled")
	checkInterface(reflect.TypeOf((*OnEarningsWithdrawn)(nil)).Elem(), "OnEarningsWithdrawn")
	checkInterface(reflect.TypeOf((*OnFeeUpdated)(nil)).Elem(), "OnFeeUpdated")
	checkInterface(reflect.TypeOf((*OnProvidersActivated)(nil)).Elem(), "OnProvidersActivated")
	checkInterface(reflect.TypeOf((*OnSubscriberRegistered)(nil)).Elem(), "OnSubscriberRegistered")
	checkInterface(reflect.TypeOf((*OnSubscriptionPaused)(nil)).Elem(), "OnSubscriptionPaused")
	checkInterface(reflect.TypeOf((*OnDeposit)(nil)).Elem(), "OnDeposit")
	checkInterface(reflect.TypeOf((*OnTransferFailed)(nil)).Elem(), "OnTransferFailed")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnInit", p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnShutdown", p.Name(), func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitProviderRegistered emits a provider registered event.
func (r *Registry) EmitProviderRegistered(ctx context.Context, providerID id.ProviderID, owner types.Identity, fee types.Amount) {
	r.mu.RLock()
	plugins := r.onProviderRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnProviderRegistered", p.Name(), func() error {
			return p.OnProviderRegistered(ctx, providerID, owner, fee)
		})
	}
}

// EmitProviderRemoved emits a provider removed event.
func (r *Registry) EmitProviderRemoved(ctx context.Context, prov *provider.Provider, payout types.Amount) {
	r.mu.RLock()
	plugins := r.onProviderRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnProviderRemoved", p.Name(), func() error {
			return p.OnProviderRemoved(ctx, prov, payout)
		})
	}
}

// EmitProviderSettled emits a settlement event.
func (r *Registry) EmitProviderSettled(ctx context.Context, providerID id.ProviderID, earned types.Amount, at time.Time) {
	r.mu.RLock()
	plugins := r.onProviderSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnProviderSettled", p.Name(), func() error {
			return p.OnProviderSettled(ctx, providerID, earned, at)
		})
	}
}

// EmitEarningsWithdrawn emits a withdrawal event.
func (r *Registry) EmitEarningsWithdrawn(ctx context.Context, providerID id.ProviderID, to types.Identity, amount types.Amount) {
	r.mu.RLock()
	plugins := r.onEarningsWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnEarningsWithdrawn", p.Name(), func() error {
			return p.OnEarningsWithdrawn(ctx, providerID, to, amount)
		})
	}
}

// EmitFeeUpdated emits a fee change event.
func (r *Registry) EmitFeeUpdated(ctx context.Context, providerID id.ProviderID, oldFee, newFee types.Amount) {
	r.mu.RLock()
	plugins := r.onFeeUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnFeeUpdated", p.Name(), func() error {
			return p.OnFeeUpdated(ctx, providerID, oldFee, newFee)
		})
	}
}

// EmitProvidersActivated emits an activation toggle event.
func (r *Registry) EmitProvidersActivated(ctx context.Context, providerIDs []id.ProviderID, active bool) {
	r.mu.RLock()
	plugins := r.onProvidersActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnProvidersActivated", p.Name(), func() error {
			return p.OnProvidersActivated(ctx, providerIDs, active)
		})
	}
}

// EmitSubscriberRegistered emits a subscriber registered event.
func (r *Registry) EmitSubscriberRegistered(ctx context.Context, sub *subscriber.Subscriber) {
	r.mu.RLock()
	plugins := r.onSubscriberRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnSubscriberRegistered", p.Name(), func() error {
			return p.OnSubscriberRegistered(ctx, sub)
		})
	}
}

// EmitSubscriptionPaused emits a subscription paused event.
func (r *Registry) EmitSubscriptionPaused(ctx context.Context, sub *subscriber.Subscriber) {
	r.mu.RLock()
	plugins := r.onSubscriptionPaused
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnSubscriptionPaused", p.Name(), func() error {
			return p.OnSubscriptionPaused(ctx, sub)
		})
	}
}

// EmitDeposit emits a deposit event.
func (r *Registry) EmitDeposit(ctx context.Context, subscriberID id.SubscriberID, from types.Identity, amount types.Amount) {
	r.mu.RLock()
	plugins := r.onDeposit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnDeposit", p.Name(), func() error {
			return p.OnDeposit(ctx, subscriberID, from, amount)
		})
	}
}

// EmitTransferFailed emits a failed transfer event.
func (r *Registry) EmitTransferFailed(ctx context.Context, kind transfer.Kind, party types.Identity, amount types.Amount, cause error) {
	r.mu.RLock()
	plugins := r.onTransferFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnTransferFailed", p.Name(), func() error {
			return p.OnTransferFailed(ctx, kind, party, amount, cause)
		})
	}
}

// call runs fn with a timeout and logs failures. Hook errors never reach
// the ledger caller.
func (r *Registry) call(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
