package extension

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/accrual"
	audithook "github.com/xraph/accrual/audit_hook"
	"github.com/xraph/accrual/store/memory"
	redisstore "github.com/xraph/accrual/store/redis"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{MaxProviders: 10})

	if cfg.MaxProviders != 10 {
		t.Errorf("MaxProviders = %d, want 10", cfg.MaxProviders)
	}
	if cfg.Driver != DriverMemory {
		t.Errorf("Driver = %q, want %q", cfg.Driver, DriverMemory)
	}
	if cfg.BillingPeriod != accrual.DefaultBillingPeriod {
		t.Errorf("BillingPeriod = %v", cfg.BillingPeriod)
	}
	if cfg.MinSubscriberProviders != 3 || cfg.MaxSubscriberProviders != 14 {
		t.Errorf("subscriber bounds = %d..%d", cfg.MinSubscriberProviders, cfg.MaxSubscriberProviders)
	}
}

func TestMergeConfigurations(t *testing.T) {
	file := Config{Driver: DriverRedis, MaxProviders: 50}
	prog := Config{
		DisableMigrate: true,
		Driver:         DriverMemory,
		MaxProviders:   7,
		MinFee:         25,
		Admins:         []types.Identity{"root"},
	}

	cfg := mergeConfigurations(file, prog)

	if cfg.Driver != DriverRedis {
		t.Errorf("Driver = %q, file value should win", cfg.Driver)
	}
	if cfg.MaxProviders != 50 {
		t.Errorf("MaxProviders = %d, file value should win", cfg.MaxProviders)
	}
	if cfg.MinFee != 25 {
		t.Errorf("MinFee = %d, programmatic value should fill the gap", cfg.MinFee)
	}
	if !cfg.DisableMigrate {
		t.Error("DisableMigrate should carry over from options")
	}
	if len(cfg.Admins) != 1 || cfg.Admins[0] != "root" {
		t.Errorf("Admins = %v", cfg.Admins)
	}
	if cfg.PluginTimeout != 5*time.Second {
		t.Errorf("PluginTimeout = %v, want default", cfg.PluginTimeout)
	}
}

func TestBuildStore(t *testing.T) {
	s, err := buildStore(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("default store = %T, want *memory.Store", s)
	}

	s, err = buildStore(Config{Driver: DriverRedis, RedisAddr: "localhost:6379", RedisPrefix: "test"})
	if err != nil {
		t.Fatal(err)
	}
	rs, ok := s.(*redisstore.Store)
	if !ok {
		t.Fatalf("redis store = %T", s)
	}
	_ = rs.Close() //nolint:errcheck // client never connected

	if _, err := buildStore(Config{Driver: DriverRedis}); err == nil {
		t.Error("redis driver without address should fail")
	}
	if _, err := buildStore(Config{Driver: "postgres"}); err == nil {
		t.Error("grove driver from config alone should fail")
	}
}

func TestInitBuildsEngine(t *testing.T) {
	custodian := transfer.NewCustodian(transfer.WithUnlimitedHoldings())
	var recorded []string

	e := New(
		WithTransferor(custodian),
		WithMinFee(10),
		WithBillingPeriod(time.Hour),
		WithAdmins("root"),
		WithDisableMigrate(),
		WithMetrics(prometheus.NewRegistry()),
		WithAuditRecorder(audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
			recorded = append(recorded, evt.Action)
			return nil
		})),
	)
	e.config = mergeWithDefaults(e.config)
	if err := e.init(); err != nil {
		t.Fatal(err)
	}

	l := e.Engine()
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	cfg := l.Config()
	if cfg.MinFee != 10 || cfg.BillingPeriod != time.Hour {
		t.Errorf("engine config = %+v", cfg)
	}
	if l.Plugins().Count() != 2 {
		t.Errorf("plugins = %d, want audit and metrics", l.Plugins().Count())
	}

	if _, err := l.RegisterProvider(ctx, "seller", "k", 5); !errors.Is(err, accrual.ErrFeeTooLow) {
		t.Errorf("RegisterProvider below MinFee = %v", err)
	}

	var ids []accrual.ProviderID
	for _, key := range []string{"a", "b", "c"} {
		pid, err := l.RegisterProvider(ctx, "seller", key, 10)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, pid)
	}
	if _, err := l.RegisterSubscriber(ctx, "bob", 60, subscriber.PlanBasic, ids); err != nil {
		t.Fatal(err)
	}
	if got := custodian.Custody(); got != 60 {
		t.Errorf("custody = %d, want 60", got)
	}

	if err := l.SetProvidersActive(ctx, "mallory", ids[:1], false); !errors.Is(err, accrual.ErrNotAdmin) {
		t.Errorf("non-admin toggle = %v", err)
	}

	if len(recorded) != 4 {
		t.Errorf("audit events = %v, want 3 registrations and 1 subscription", recorded)
	}

	if err := e.Health(ctx); err != nil {
		t.Errorf("Health = %v", err)
	}
}

func TestDefaultWiringAcceptsDeposits(t *testing.T) {
	e := New(WithDisableMigrate())
	e.config = mergeWithDefaults(e.config)
	if err := e.init(); err != nil {
		t.Fatal(err)
	}

	l := e.Engine()
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	var ids []accrual.ProviderID
	for _, key := range []string{"a", "b", "c"} {
		pid, err := l.RegisterProvider(ctx, "seller", key, 100)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, pid)
	}
	if _, err := l.RegisterSubscriber(ctx, "bob", 600, subscriber.PlanBasic, ids); err != nil {
		t.Fatalf("RegisterSubscriber through default wiring = %v", err)
	}

	custodian, ok := e.Transferor().(*transfer.Custodian)
	if !ok {
		t.Fatalf("default transferor = %T, want *transfer.Custodian", e.Transferor())
	}
	if got := custodian.Custody(); got != 600 {
		t.Errorf("custody = %d, want 600", got)
	}
}

func TestHealthWithoutStore(t *testing.T) {
	e := New()
	if err := e.Health(context.Background()); err == nil {
		t.Error("Health without store should fail")
	}
}
