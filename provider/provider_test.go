package provider_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/types"
)

const period = 2592000 * time.Second

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newProvider(count int64, fee types.Amount) *provider.Provider {
	p := provider.New(1, "alice", "key-1", fee, t0)
	p.SubscriberCount = count
	return p
}

func TestSettleAccrual(t *testing.T) {
	tests := []struct {
		name     string
		count    int64
		fee      types.Amount
		elapsed  time.Duration
		expected types.Amount
	}{
		{"one subscriber full period", 1, 100, period, 100},
		{"two subscribers full period", 2, 100, period, 200},
		{"half period", 1, 100, period / 2, 50},
		{"floors fractions", 1, 100, time.Hour, 0},
		{"no subscribers", 0, 100, period, 0},
		{"zero elapsed", 3, 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(tt.count, tt.fee)
			earned, err := p.Settle(t0.Add(tt.elapsed), period)
			if err != nil {
				t.Fatalf("Settle: %v", err)
			}
			if earned != tt.expected || p.Balance != tt.expected {
				t.Errorf("earned=%d balance=%d, want %d", earned, p.Balance, tt.expected)
			}
			if !p.LastSettled.Equal(t0.Add(tt.elapsed)) {
				t.Errorf("LastSettled: got %v", p.LastSettled)
			}
		})
	}
}

func TestSettleIdempotentAtSameInstant(t *testing.T) {
	p := newProvider(2, 100)
	now := t0.Add(period)

	if _, err := p.Settle(now, period); err != nil {
		t.Fatal(err)
	}
	earned, err := p.Settle(now, period)
	if err != nil {
		t.Fatal(err)
	}
	if earned != 0 || p.Balance != 200 {
		t.Errorf("second settle: earned=%d balance=%d", earned, p.Balance)
	}
}

func TestSettleClockBackwards(t *testing.T) {
	p := newProvider(2, 100)
	earned, err := p.Settle(t0.Add(-time.Hour), period)
	if err != nil {
		t.Fatal(err)
	}
	if earned != 0 {
		t.Errorf("earned: got %d, want 0", earned)
	}
	if !p.LastSettled.Equal(t0) {
		t.Error("LastSettled must not move backwards")
	}
}

func TestSettleConservation(t *testing.T) {
	// Settling in many steps must never exceed one settle over the whole span.
	steps := []time.Duration{time.Hour, 17 * time.Minute, 3 * 24 * time.Hour, 11 * time.Second, period}

	split := newProvider(7, 333)
	now := t0
	for _, d := range steps {
		now = now.Add(d)
		if _, err := split.Settle(now, period); err != nil {
			t.Fatal(err)
		}
	}

	whole := newProvider(7, 333)
	if _, err := whole.Settle(now, period); err != nil {
		t.Fatal(err)
	}

	if split.Balance > whole.Balance {
		t.Errorf("split settle %d exceeds whole %d", split.Balance, whole.Balance)
	}
	if whole.Balance-split.Balance > types.Amount(len(steps)) {
		t.Errorf("rounding loss %d exceeds one unit per step", whole.Balance-split.Balance)
	}
}

func TestAdjustSubscriberCount(t *testing.T) {
	p := newProvider(1, 100)

	if err := p.AdjustSubscriberCount(1, t0.Add(period), period); err != nil {
		t.Fatal(err)
	}
	if p.Balance != 100 || p.SubscriberCount != 2 {
		t.Errorf("after +1: balance=%d count=%d", p.Balance, p.SubscriberCount)
	}

	if err := p.AdjustSubscriberCount(0, t0.Add(2*period), period); err != nil {
		t.Fatal(err)
	}
	if p.Balance != 300 || p.SubscriberCount != 2 {
		t.Errorf("after 0: balance=%d count=%d", p.Balance, p.SubscriberCount)
	}

	err := p.AdjustSubscriberCount(-3, t0.Add(3*period), period)
	if !errors.Is(err, provider.ErrNegativeCount) {
		t.Fatalf("expected ErrNegativeCount, got %v", err)
	}
	if p.Balance != 300 || !p.LastSettled.Equal(t0.Add(2*period)) {
		t.Error("failed adjustment must leave the record untouched")
	}
}

func TestUpdateFeeSettlesAtOldRate(t *testing.T) {
	p := newProvider(1, 100)
	if err := p.UpdateFee(1000, t0.Add(period), period); err != nil {
		t.Fatal(err)
	}
	if p.Balance != 100 {
		t.Errorf("balance: got %d, want 100", p.Balance)
	}
	if _, err := p.Settle(t0.Add(2*period), period); err != nil {
		t.Fatal(err)
	}
	if p.Balance != 1100 {
		t.Errorf("balance: got %d, want 1100", p.Balance)
	}
}

func TestDrain(t *testing.T) {
	p := newProvider(2, 100)
	p.Balance = 50
	amount, earned, err := p.Drain(t0.Add(period), period)
	if err != nil {
		t.Fatal(err)
	}
	if amount != 250 || earned != 200 || p.Balance != 0 {
		t.Errorf("amount=%d earned=%d balance=%d", amount, earned, p.Balance)
	}
}

func TestMonotonicBalance(t *testing.T) {
	p := newProvider(5, 250)
	prev := p.Balance
	now := t0
	for i := 0; i < 50; i++ {
		now = now.Add(time.Duration(i*i) * time.Minute)
		if _, err := p.Settle(now, period); err != nil {
			t.Fatal(err)
		}
		if p.Balance < prev {
			t.Fatalf("balance decreased from %d to %d", prev, p.Balance)
		}
		prev = p.Balance
	}
}

func TestAccrueRejectsSubSecondPeriod(t *testing.T) {
	if _, err := provider.Accrue(1, 1, 1, time.Millisecond); err == nil {
		t.Error("expected error for sub-second period")
	}
}

func TestIsOwner(t *testing.T) {
	p := newProvider(0, 100)
	if !p.IsOwner("alice") {
		t.Error("alice should own the provider")
	}
	if p.IsOwner("bob") || p.IsOwner("") {
		t.Error("bob and the empty identity must not own the provider")
	}
}

func BenchmarkSettle(b *testing.B) {
	p := newProvider(100, 4900)
	now := t0
	for i := 0; i < b.N; i++ {
		now = now.Add(time.Minute)
		_, _ = p.Settle(now, period)
	}
}
