package accrual

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/plugin"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// Ledger is the accrual billing engine.
//
// State lives in memory behind a single RWMutex and is written through to
// the store on every mutation. Mutations hold the write lock for their
// whole duration, including persistence and asset transfers.
type Ledger struct {
	mu sync.RWMutex

	store     store.Store
	transfers transfer.Transferor
	plugins   *plugin.Registry
	logger    *slog.Logger
	clock     clockwork.Clock
	cfg       Config

	providers     *provider.Ledger
	subscribers   *subscriber.Ledger
	keys          map[string]struct{}
	providerSeq   *id.Sequence
	subscriberSeq *id.Sequence

	skipMigrate bool
	started     bool
}

// New creates a new Ledger instance.
func New(s store.Store, t transfer.Transferor, opts ...Option) *Ledger {
	l := &Ledger{
		store:         s,
		transfers:     t,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		clock:         clockwork.NewRealClock(),
		cfg:           DefaultConfig(),
		providers:     provider.NewLedger(),
		subscribers:   subscriber.NewLedger(),
		keys:          make(map[string]struct{}),
		providerSeq:   id.NewSequence(0),
		subscriberSeq: id.NewSequence(0),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithConfig sets the admission limits and accrual parameters. Zero fields
// take their defaults.
func WithConfig(cfg Config) Option {
	return func(l *Ledger) {
		l.cfg = cfg.mergeDefaults()
	}
}

// WithClock sets the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds how long a single plugin hook may run.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// WithProviderSequence sets the provider handle allocator. Start still
// advances it past any persisted high-water mark.
func WithProviderSequence(seq *id.Sequence) Option {
	return func(l *Ledger) {
		l.providerSeq = seq
	}
}

// WithSubscriberSequence sets the subscriber handle allocator.
func WithSubscriberSequence(seq *id.Sequence) Option {
	return func(l *Ledger) {
		l.subscriberSeq = seq
	}
}

// WithoutMigrate makes Start load from the store without migrating it
// first. The schema must already exist.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// Start validates the configuration, migrates the store and restores state
// from it. Calling Start on a started ledger is a no-op.
func (l *Ledger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}

	if err := l.cfg.Validate(); err != nil {
		l.mu.Unlock()
		return err
	}

	// Migrate database
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("accrual: migrate: %w", err)
		}
	}

	snap, err := l.store.Load(ctx)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("accrual: load: %w", err)
	}
	l.restore(snap)
	l.started = true
	l.mu.Unlock()

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	l.logger.Info("accrual ledger started",
		"providers", len(snap.Providers),
		"subscribers", len(snap.Subscribers),
		"billing_period", l.cfg.BillingPeriod,
		"max_providers", l.cfg.MaxProviders,
		"token", l.cfg.Token.Symbol,
	)

	return nil
}

// Stop shuts down the Ledger and closes the store.
func (l *Ledger) Stop() error {
	l.mu.Lock()
	l.started = false
	l.mu.Unlock()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	l.logger.Info("accrual ledger stopped")
	return l.store.Close()
}

// Config returns the effective configuration.
func (l *Ledger) Config() Config { return l.cfg }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Clock returns the time source.
func (l *Ledger) Clock() clockwork.Clock { return l.clock }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// restore replaces in-memory state with a snapshot. Caller holds mu.
func (l *Ledger) restore(snap *store.Snapshot) {
	l.providers.Reset(snap.Providers, snap.Active)
	l.subscribers.Reset(snap.Subscribers)

	l.keys = make(map[string]struct{}, len(snap.Keys))
	for _, k := range snap.Keys {
		l.keys[k] = struct{}{}
	}

	l.providerSeq.Restore(snap.Sequences[store.SeqProvider])
	l.subscriberSeq.Restore(snap.Sequences[store.SeqSubscriber])
	for _, p := range snap.Providers {
		l.providerSeq.Restore(p.ID)
	}
	for _, s := range snap.Subscribers {
		l.subscriberSeq.Restore(s.ID)
	}
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetProviderState returns a copy of a provider record.
func (l *Ledger) GetProviderState(_ context.Context, providerID id.ProviderID) (*provider.Provider, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.providers.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("accrual: provider %d: %w", providerID, ErrProviderNotFound)
	}
	return p, nil
}

// GetProviderEarnings returns what the provider has earned since its last
// settlement. The settled balance is not included.
func (l *Ledger) GetProviderEarnings(_ context.Context, providerID id.ProviderID) (types.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.providers.Get(providerID)
	if !ok {
		return 0, fmt.Errorf("accrual: provider %d: %w", providerID, ErrProviderNotFound)
	}
	return p.Pending(l.clock.Now(), l.cfg.BillingPeriod)
}

// GetSubscriberState returns a copy of a subscriber record.
func (l *Ledger) GetSubscriberState(_ context.Context, subscriberID id.SubscriberID) (*subscriber.Subscriber, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.subscribers.Get(subscriberID)
	if !ok {
		return nil, fmt.Errorf("accrual: subscriber %d: %w", subscriberID, ErrSubscriberNotFound)
	}
	return s, nil
}

// GetSubscriberLiveBalance estimates the unspent deposit of a subscriber.
// Providers that are no longer active drop out of the estimate.
func (l *Ledger) GetSubscriberLiveBalance(_ context.Context, subscriberID id.SubscriberID) (types.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.subscribers.Get(subscriberID)
	if !ok {
		return 0, fmt.Errorf("accrual: subscriber %d: %w", subscriberID, ErrSubscriberNotFound)
	}
	return s.LiveBalance(l.clock.Now(), l.cfg.BillingPeriod, l.providers.LiveFee)
}

// ListProviders returns every provider record ordered by ID.
func (l *Ledger) ListProviders(_ context.Context) []*provider.Provider {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers.All()
}

// ListActiveProviders returns the IDs of live, active providers.
func (l *Ledger) ListActiveProviders(_ context.Context) []id.ProviderID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers.ActiveIDs()
}

// ListSubscribers returns the subscribers owned by owner, or all of them
// when owner is empty.
func (l *Ledger) ListSubscribers(_ context.Context, owner types.Identity) []*subscriber.Subscriber {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.subscribers.List(owner)
}

// IsProviderActive reports whether a provider exists and is active.
func (l *Ledger) IsProviderActive(_ context.Context, providerID id.ProviderID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers.Live(providerID)
}
