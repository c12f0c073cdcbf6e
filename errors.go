package accrual

import (
	"errors"
	"fmt"

	"github.com/xraph/accrual/types"
)

// Sentinel errors for common failure scenarios.
var (
	// Authorization errors
	ErrNotOwner = errors.New("accrual: caller is not the owner")
	ErrNotAdmin = errors.New("accrual: caller is not an admin")

	// Not-found errors
	ErrProviderNotFound   = errors.New("accrual: provider not found")
	ErrSubscriberNotFound = errors.New("accrual: subscriber not found")
	ErrUnknownProviderID  = errors.New("accrual: unknown provider id")

	// Validation errors
	ErrFeeTooLow            = errors.New("accrual: fee below minimum")
	ErrInsufficientDeposit  = errors.New("accrual: deposit below two periods of fees")
	ErrInvalidProviderCount = errors.New("accrual: provider count out of range")
	ErrInvalidAmount        = errors.New("accrual: invalid amount")
	ErrKeyAlreadyUsed       = errors.New("accrual: registration key already used")

	// State-conflict errors
	ErrInvalidState       = errors.New("accrual: invalid state")
	ErrProviderInactive   = errors.New("accrual: provider is not active")
	ErrSubscriptionPaused = errors.New("accrual: subscription already paused")

	// Capacity errors
	ErrCapacityExceeded = errors.New("accrual: provider capacity exceeded")

	// Infrastructure errors
	ErrTransferFailed = errors.New("accrual: asset transfer failed")
	ErrStoreNotReady  = errors.New("accrual: store not ready")
	ErrNotStarted     = errors.New("accrual: engine not started")
	ErrOverflow       = types.ErrOverflow
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("accrual: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrSubscriberNotFound) ||
		errors.Is(err, ErrUnknownProviderID)
}

// IsAuthorization returns true if the caller was not allowed to act.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrNotAdmin)
}

// IsValidation returns true if the request itself was malformed.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrFeeTooLow) ||
		errors.Is(err, ErrInsufficientDeposit) ||
		errors.Is(err, ErrInvalidProviderCount) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrKeyAlreadyUsed)
}

// IsStateConflict returns true if the request conflicts with current state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrProviderInactive) ||
		errors.Is(err, ErrSubscriptionPaused)
}

// IsCapacity returns true if a configured limit was reached.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrStoreNotReady)
}
