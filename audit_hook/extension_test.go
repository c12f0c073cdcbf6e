package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	audithook "github.com/xraph/accrual/audit_hook"
	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/transfer"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func TestExtensionRecordsEvents(t *testing.T) {
	rec := &sink{}
	ext := audithook.New(rec)
	ctx := context.Background()

	_ = ext.OnProviderRegistered(ctx, 7, "alice", 100)
	_ = ext.OnProvidersActivated(ctx, []id.ProviderID{7, 8}, false)
	_ = ext.OnSubscriberRegistered(ctx, &subscriber.Subscriber{ID: 1, Owner: "bob", Plan: subscriber.PlanBasic})
	_ = ext.OnProviderRemoved(ctx, &provider.Provider{ID: 7, Owner: "alice"}, 150)
	_ = ext.OnTransferFailed(ctx, transfer.KindPayout, "alice", 150, errors.New("frozen"))

	want := []string{
		audithook.ActionProviderRegistered,
		audithook.ActionProvidersDeactivated,
		audithook.ActionProvidersDeactivated,
		audithook.ActionSubscriberRegistered,
		audithook.ActionProviderRemoved,
		audithook.ActionTransferFailed,
	}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	first := rec.events[0]
	if first.ResourceID != "7" || first.Metadata["fee"] != int64(100) {
		t.Errorf("first event = %+v", first)
	}
	if first.ID.Prefix() != id.PrefixEvent || first.OccurredAt.IsZero() {
		t.Errorf("event id %s at %v", first.ID, first.OccurredAt)
	}

	failed := rec.events[len(rec.events)-1]
	if failed.Outcome != audithook.OutcomeFailure || failed.Reason != "frozen" {
		t.Errorf("failure event = %+v", failed)
	}
}

func TestEnabledAndDisabledActions(t *testing.T) {
	ctx := context.Background()

	only := &sink{}
	ext := audithook.New(only, audithook.WithEnabledActions(audithook.ActionDeposit))
	_ = ext.OnDeposit(ctx, 1, "bob", 10)
	_ = ext.OnFeeUpdated(ctx, 1, 10, 20)
	if got := only.actions(); len(got) != 1 || got[0] != audithook.ActionDeposit {
		t.Errorf("enabled filter: %v", got)
	}

	most := &sink{}
	ext = audithook.New(most, audithook.WithDisabledActions(audithook.ActionProviderSettled))
	_ = ext.OnProviderSettled(ctx, 1, 5, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_ = ext.OnEarningsWithdrawn(ctx, 1, "alice", 5)
	if got := most.actions(); len(got) != 1 || got[0] != audithook.ActionEarningsWithdrawn {
		t.Errorf("disabled filter: %v", got)
	}
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := ext.OnDeposit(context.Background(), 1, "bob", 10); err != nil {
		t.Errorf("OnDeposit = %v, want nil", err)
	}
}
