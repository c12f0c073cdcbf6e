package accrual_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/accrual"
)

func TestErrorPredicates(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("accrual: op: %w", err) }

	tests := []struct {
		err                                                     error
		notFound, auth, validation, conflict, capacity, retries bool
	}{
		{err: wrap(accrual.ErrProviderNotFound), notFound: true},
		{err: wrap(accrual.ErrSubscriberNotFound), notFound: true},
		{err: wrap(accrual.ErrUnknownProviderID), notFound: true},
		{err: wrap(accrual.ErrNotOwner), auth: true},
		{err: wrap(accrual.ErrNotAdmin), auth: true},
		{err: wrap(accrual.ErrFeeTooLow), validation: true},
		{err: wrap(accrual.ErrInsufficientDeposit), validation: true},
		{err: wrap(accrual.ErrInvalidProviderCount), validation: true},
		{err: wrap(accrual.ErrInvalidAmount), validation: true},
		{err: wrap(accrual.ErrKeyAlreadyUsed), validation: true},
		{err: accrual.ValidationError{Field: "fee", Message: "must not be negative"}, validation: true},
		{err: errors.Join(accrual.ValidationError{Field: "a"}, accrual.ValidationError{Field: "b"}), validation: true},
		{err: wrap(accrual.ErrInvalidState), conflict: true},
		{err: wrap(accrual.ErrProviderInactive), conflict: true},
		{err: wrap(accrual.ErrSubscriptionPaused), conflict: true},
		{err: wrap(accrual.ErrCapacityExceeded), capacity: true},
		{err: fmt.Errorf("accrual: op: %w: %w", accrual.ErrTransferFailed, errors.New("bank down")), retries: true},
		{err: wrap(accrual.ErrStoreNotReady), retries: true},
		{err: wrap(accrual.ErrOverflow)},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := accrual.IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v", got)
			}
			if got := accrual.IsAuthorization(tt.err); got != tt.auth {
				t.Errorf("IsAuthorization = %v", got)
			}
			if got := accrual.IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation = %v", got)
			}
			if got := accrual.IsStateConflict(tt.err); got != tt.conflict {
				t.Errorf("IsStateConflict = %v", got)
			}
			if got := accrual.IsCapacity(tt.err); got != tt.capacity {
				t.Errorf("IsCapacity = %v", got)
			}
			if got := accrual.IsRetryable(tt.err); got != tt.retries {
				t.Errorf("IsRetryable = %v", got)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := accrual.ValidationError{Field: "fee", Message: "must not be negative"}
	want := "accrual: validation failed for fee: must not be negative"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
