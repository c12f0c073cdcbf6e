// Package transfer defines the asset custody collaborator.
//
// The ledger never holds funds itself. Deposits are pulled from a
// subscriber into custody and earnings are paid out from custody to a
// provider owner through a Transferor.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/types"
)

// Kind is the direction of a transfer.
type Kind string

const (
	KindPull   Kind = "pull"
	KindPayout Kind = "payout"
)

// Transfer records a completed movement of funds.
type Transfer struct {
	ID        id.TransferID  `json:"id"`
	Kind      Kind           `json:"kind"`
	Party     types.Identity `json:"party"`
	Amount    types.Amount   `json:"amount"`
	CreatedAt time.Time      `json:"created_at"`
}

// Transferor moves funds between callers and custody.
type Transferor interface {
	// Pull moves amount from the caller into custody.
	Pull(ctx context.Context, from types.Identity, amount types.Amount) (*Transfer, error)
	// Payout moves amount from custody to the recipient.
	Payout(ctx context.Context, to types.Identity, amount types.Amount) (*Transfer, error)
}

var (
	ErrInsufficientFunds = errors.New("transfer: insufficient funds")
	ErrCustodyShortfall  = errors.New("transfer: custody shortfall")
	ErrInvalidAmount     = errors.New("transfer: amount must be positive")
)
