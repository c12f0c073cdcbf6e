package transfer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

func TestCustodianPullAndPayout(t *testing.T) {
	ctx := context.Background()
	c := transfer.NewCustodian()
	c.Fund("carol", 1000)

	xfer, err := c.Pull(ctx, "carol", 600)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if !strings.HasPrefix(xfer.ID.String(), "xfer_") {
		t.Errorf("transfer ID: got %q", xfer.ID.String())
	}
	if c.Holdings("carol") != 400 || c.Custody() != 600 {
		t.Errorf("after pull: holdings=%d custody=%d", c.Holdings("carol"), c.Custody())
	}

	if _, err := c.Payout(ctx, "alice", 200); err != nil {
		t.Fatalf("Payout: %v", err)
	}
	if c.Holdings("alice") != 200 || c.Custody() != 400 {
		t.Errorf("after payout: holdings=%d custody=%d", c.Holdings("alice"), c.Custody())
	}
	if len(c.History()) != 2 {
		t.Errorf("history: got %d entries, want 2", len(c.History()))
	}
}

func TestCustodianErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		op   func(c *transfer.Custodian) error
		want error
	}{
		{"insufficient funds", func(c *transfer.Custodian) error {
			_, err := c.Pull(ctx, "carol", 1)
			return err
		}, transfer.ErrInsufficientFunds},
		{"custody shortfall", func(c *transfer.Custodian) error {
			_, err := c.Payout(ctx, "alice", 1)
			return err
		}, transfer.ErrCustodyShortfall},
		{"zero amount", func(c *transfer.Custodian) error {
			_, err := c.Pull(ctx, "carol", 0)
			return err
		}, transfer.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := transfer.NewCustodian()
			if err := tt.op(c); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCustodianFailureInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("network down")
	c := transfer.NewCustodian(
		transfer.WithUnlimitedHoldings(),
		transfer.WithFailure(func(kind transfer.Kind, _ types.Identity, _ types.Amount) error {
			if kind == transfer.KindPull {
				return boom
			}
			return nil
		}),
	)

	if _, err := c.Pull(ctx, "carol", 10); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if c.Custody() != 0 {
		t.Error("failed pull must not move funds")
	}

	c.SetFailure(nil)
	if _, err := c.Pull(ctx, "carol", 10); err != nil {
		t.Fatalf("Pull after clearing failure: %v", err)
	}
}
