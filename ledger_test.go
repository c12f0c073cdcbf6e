package accrual_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/accrual"
	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/store/memory"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

var (
	epoch  = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	period = accrual.DefaultBillingPeriod
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	l         *accrual.Ledger
	store     *memory.Store
	custodian *transfer.Custodian
	clock     *clockwork.FakeClock
	events    *recorder
	keys      int
}

func newHarness(t *testing.T, cfg accrual.Config, opts ...accrual.Option) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  memory.New(),
		clock:  clockwork.NewFakeClockAt(epoch),
		events: &recorder{},
	}
	h.custodian = transfer.NewCustodian(transfer.WithUnlimitedHoldings(), transfer.WithClock(h.clock))
	h.l = h.open(cfg, opts...)
	return h
}

// open starts a ledger over the harness store.
func (h *harness) open(cfg accrual.Config, opts ...accrual.Option) *accrual.Ledger {
	h.t.Helper()

	base := []accrual.Option{
		accrual.WithConfig(cfg),
		accrual.WithClock(h.clock),
		accrual.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		accrual.WithPlugin(h.events),
	}
	l := accrual.New(h.store, h.custodian, append(base, opts...)...)
	if err := l.Start(h.ctx); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	return l
}

func (h *harness) provider(owner types.Identity, key string, fee types.Amount) id.ProviderID {
	h.t.Helper()
	pid, err := h.l.RegisterProvider(h.ctx, owner, key, fee)
	if err != nil {
		h.t.Fatalf("RegisterProvider(%s): %v", key, err)
	}
	return pid
}

// providers registers n providers with the given fee, all owned by "seller".
func (h *harness) providers(n int, fee types.Amount) []id.ProviderID {
	h.t.Helper()
	out := make([]id.ProviderID, n)
	for i := range out {
		h.keys++
		out[i] = h.provider("seller", fmt.Sprintf("key-%d", h.keys), fee)
	}
	return out
}

func (h *harness) subscriber(owner types.Identity, deposit types.Amount, ids []id.ProviderID) id.SubscriberID {
	h.t.Helper()
	sid, err := h.l.RegisterSubscriber(h.ctx, owner, deposit, subscriber.PlanBasic, ids)
	if err != nil {
		h.t.Fatalf("RegisterSubscriber: %v", err)
	}
	return sid
}

func (h *harness) state(pid id.ProviderID) *provider.Provider {
	h.t.Helper()
	p, err := h.l.GetProviderState(h.ctx, pid)
	if err != nil {
		h.t.Fatalf("GetProviderState(%d): %v", pid, err)
	}
	return p
}

func (h *harness) earnings(pid id.ProviderID) types.Amount {
	h.t.Helper()
	e, err := h.l.GetProviderEarnings(h.ctx, pid)
	if err != nil {
		h.t.Fatalf("GetProviderEarnings(%d): %v", pid, err)
	}
	return e
}

// recorder is a plugin that remembers hook names in call order.
type recorder struct {
	mu     sync.Mutex
	hooks  []string
	earned types.Amount
	failed []error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(hook string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *recorder) seen(hook string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.hooks {
		if h == hook {
			n++
		}
	}
	return n
}

func (r *recorder) OnProviderRegistered(context.Context, id.ProviderID, types.Identity, types.Amount) error {
	r.add("provider_registered")
	return nil
}

func (r *recorder) OnProviderRemoved(context.Context, *provider.Provider, types.Amount) error {
	r.add("provider_removed")
	return nil
}

func (r *recorder) OnProviderSettled(_ context.Context, _ id.ProviderID, earned types.Amount, _ time.Time) error {
	r.mu.Lock()
	r.earned += earned
	r.mu.Unlock()
	r.add("provider_settled")
	return nil
}

func (r *recorder) OnSubscriberRegistered(context.Context, *subscriber.Subscriber) error {
	r.add("subscriber_registered")
	return nil
}

func (r *recorder) OnSubscriptionPaused(context.Context, *subscriber.Subscriber) error {
	r.add("subscription_paused")
	return nil
}

func (r *recorder) OnTransferFailed(_ context.Context, _ transfer.Kind, _ types.Identity, _ types.Amount, err error) error {
	r.mu.Lock()
	r.failed = append(r.failed, err)
	r.mu.Unlock()
	r.add("transfer_failed")
	return nil
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	cfg := accrual.Config{MinSubscriberProviders: 5, MaxSubscriberProviders: 4}
	l := accrual.New(memory.New(), transfer.NewCustodian(), accrual.WithConfig(cfg))

	err := l.Start(context.Background())
	if !accrual.IsValidation(err) {
		t.Fatalf("Start err = %v, want validation error", err)
	}
}

func TestMutationsRequireStart(t *testing.T) {
	l := accrual.New(memory.New(), transfer.NewCustodian())
	ctx := context.Background()

	if _, err := l.RegisterProvider(ctx, "alice", "k", 1); !errors.Is(err, accrual.ErrNotStarted) {
		t.Errorf("RegisterProvider err = %v, want ErrNotStarted", err)
	}
	if err := l.PauseSubscription(ctx, 1, "bob"); !errors.Is(err, accrual.ErrNotStarted) {
		t.Errorf("PauseSubscription err = %v, want ErrNotStarted", err)
	}
}

func TestRestartRestoresState(t *testing.T) {
	h := newHarness(t, accrual.Config{})
	ids := h.providers(3, 100)
	sid := h.subscriber("bob", 600, ids)

	h.clock.Advance(period / 2)
	if err := h.l.UpdateProviderFee(h.ctx, ids[0], "seller", 300); err != nil {
		t.Fatal(err)
	}
	if err := h.l.SetProvidersActive(h.ctx, "anyone", ids[2:], false); err != nil {
		t.Fatal(err)
	}

	// A second engine over the same store sees the same world.
	h.l = h.open(accrual.Config{})

	p := h.state(ids[0])
	if p.Fee != 300 || p.Balance != 50 || p.SubscriberCount != 1 {
		t.Errorf("restored provider = fee %d balance %d count %d", p.Fee, p.Balance, p.SubscriberCount)
	}
	if h.l.IsProviderActive(h.ctx, ids[2]) {
		t.Error("deactivated provider restored as active")
	}
	if got := h.l.ListActiveProviders(h.ctx); len(got) != 2 {
		t.Errorf("active providers = %v", got)
	}

	s, err := h.l.GetSubscriberState(h.ctx, sid)
	if err != nil {
		t.Fatal(err)
	}
	if s.Balance != 600 || len(s.ProviderIDs) != 3 {
		t.Errorf("restored subscriber = %+v", s)
	}

	if _, err := h.l.RegisterProvider(h.ctx, "seller", "key-1", 100); !errors.Is(err, accrual.ErrKeyAlreadyUsed) {
		t.Errorf("reused key after restart: err = %v", err)
	}

	next := h.provider("seller", "fresh", 100)
	if next <= ids[2] {
		t.Errorf("handle %d reused after restart (last %d)", next, ids[2])
	}
}

func TestStopClosesStore(t *testing.T) {
	h := newHarness(t, accrual.Config{})
	if err := h.l.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Ping(h.ctx); !errors.Is(err, accrual.ErrStoreNotReady) {
		t.Errorf("Ping after Stop = %v", err)
	}
	if _, err := h.l.RegisterProvider(h.ctx, "alice", "k", 1); !errors.Is(err, accrual.ErrNotStarted) {
		t.Errorf("RegisterProvider after Stop = %v", err)
	}
}

func TestPersistFailureLeavesNoTrace(t *testing.T) {
	h := newHarness(t, accrual.Config{})
	boom := errors.New("disk on fire")

	h.store.FailApply(boom)
	_, err := h.l.RegisterProvider(h.ctx, "alice", "k1", 100)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if n := len(h.l.ListProviders(h.ctx)); n != 0 {
		t.Errorf("providers after failed persist = %d", n)
	}

	h.store.FailApply(nil)
	if _, err := h.l.RegisterProvider(h.ctx, "alice", "k1", 100); err != nil {
		t.Errorf("key consumed by failed registration: %v", err)
	}
}

func TestQueriesNotFound(t *testing.T) {
	h := newHarness(t, accrual.Config{})

	if _, err := h.l.GetProviderState(h.ctx, 42); !errors.Is(err, accrual.ErrProviderNotFound) {
		t.Errorf("GetProviderState err = %v", err)
	}
	if _, err := h.l.GetProviderEarnings(h.ctx, 42); !errors.Is(err, accrual.ErrProviderNotFound) {
		t.Errorf("GetProviderEarnings err = %v", err)
	}
	if _, err := h.l.GetSubscriberState(h.ctx, 42); !errors.Is(err, accrual.ErrSubscriberNotFound) {
		t.Errorf("GetSubscriberState err = %v", err)
	}
	if _, err := h.l.GetSubscriberLiveBalance(h.ctx, 42); !errors.Is(err, accrual.ErrSubscriberNotFound) {
		t.Errorf("GetSubscriberLiveBalance err = %v", err)
	}
	if h.l.IsProviderActive(h.ctx, 42) {
		t.Error("unknown provider reported active")
	}
}

func TestStorePersistsSequences(t *testing.T) {
	h := newHarness(t, accrual.Config{})
	ids := h.providers(3, 100)
	h.subscriber("bob", 600, ids)

	snap, err := h.store.Load(h.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Sequences[store.SeqProvider]; got != ids[2] {
		t.Errorf("provider sequence = %d, want %d", got, ids[2])
	}
	if got := snap.Sequences[store.SeqSubscriber]; got != 1 {
		t.Errorf("subscriber sequence = %d, want 1", got)
	}
}
