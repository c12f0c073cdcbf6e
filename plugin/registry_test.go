package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/plugin"
	"github.com/xraph/accrual/types"
)

type counter struct {
	name string

	mu    sync.Mutex
	calls map[string]int
	fail  error
}

func newCounter(name string) *counter {
	return &counter{name: name, calls: make(map[string]int)}
}

func (c *counter) Name() string { return c.name }

func (c *counter) hit(hook string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[hook]++
	return c.fail
}

func (c *counter) count(hook string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[hook]
}

func (c *counter) OnInit(context.Context, any) error { return c.hit("init") }

func (c *counter) OnProviderRegistered(context.Context, id.ProviderID, types.Identity, types.Amount) error {
	return c.hit("registered")
}

func (c *counter) OnFeeUpdated(context.Context, id.ProviderID, types.Amount, types.Amount) error {
	return c.hit("fee")
}

// sleeper blocks longer than any sane timeout.
type sleeper struct{}

func (sleeper) Name() string { return "sleeper" }

func (sleeper) OnShutdown(ctx context.Context) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRegisterAndDispatch(t *testing.T) {
	r := plugin.NewRegistry().WithLogger(quiet())
	a, b := newCounter("a"), newCounter("b")

	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(b); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(newCounter("a")); err == nil {
		t.Error("duplicate name accepted")
	}
	if r.Count() != 2 || len(r.List()) != 2 || r.Get("b") != b || r.Get("zzz") != nil {
		t.Errorf("registry contents wrong: count %d", r.Count())
	}

	ctx := context.Background()
	r.EmitInit(ctx, nil)
	r.EmitProviderRegistered(ctx, 1, "alice", 100)
	r.EmitFeeUpdated(ctx, 1, 100, 200)
	r.EmitDeposit(ctx, 1, "bob", 10) // nobody listens

	for _, c := range []*counter{a, b} {
		for _, hook := range []string{"init", "registered", "fee"} {
			if got := c.count(hook); got != 1 {
				t.Errorf("%s.%s called %d times", c.name, hook, got)
			}
		}
	}
}

func TestHookErrorsDoNotPropagate(t *testing.T) {
	r := plugin.NewRegistry().WithLogger(quiet())
	failing, healthy := newCounter("failing"), newCounter("healthy")
	failing.fail = errors.New("nope")

	_ = r.Register(failing)
	_ = r.Register(healthy)

	r.EmitProviderRegistered(context.Background(), 1, "alice", 100)
	if healthy.count("registered") != 1 {
		t.Error("a failing plugin stopped dispatch to the next one")
	}
}

func TestHookTimeout(t *testing.T) {
	r := plugin.NewRegistry().WithLogger(quiet()).WithTimeout(20 * time.Millisecond)
	_ = r.Register(sleeper{})

	start := time.Now()
	r.EmitShutdown(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("EmitShutdown blocked for %v", elapsed)
	}
}
