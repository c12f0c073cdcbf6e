// Package accrual provides a continuous-accrual billing ledger for Go applications.
//
// Accrual is designed as a library, not a service. Providers sell recurring
// service for a fee per subscriber per billing period; subscribers prepay a
// deposit and reference a fixed list of providers. Earnings accrue every
// second and are folded into a provider's balance whenever its subscriber
// count or fee changes, so past time is always billed at the rate that
// applied to it. It provides:
//
//   - Overflow-safe integer accrual with floor rounding
//   - All-or-nothing subscription across several providers
//   - One-time provider registration keys and capacity limits
//   - Pluggable persistence (memory, PostgreSQL, SQLite, MongoDB, Redis)
//   - Pluggable custody of funds through transfer.Transferor
//   - Audit trail and Prometheus metrics via plugins
//
// # Quick Start
//
// Create a ledger instance with your preferred store and custodian:
//
//	import (
//	    "github.com/xraph/accrual"
//	    "github.com/xraph/accrual/store/memory"
//	    "github.com/xraph/accrual/transfer"
//	)
//
//	l := accrual.New(memory.New(), transfer.NewCustodian(),
//	    accrual.WithConfig(accrual.Config{MinFee: 100}),
//	)
//
//	// Start restores state from the store
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Providers register with a one-time key and a fee:
//
//	pid, err := l.RegisterProvider(ctx, "alice", "key-1", 100)
//
// Subscribers deposit at least two billing periods of the combined fee:
//
//	sid, err := l.RegisterSubscriber(ctx, "bob", 600, subscriber.PlanBasic, []accrual.ProviderID{p1, p2, p3})
//
// Providers withdraw what they have earned:
//
//	amount, err := l.WithdrawProviderEarnings(ctx, pid, "alice")
//
// # Accrual
//
// A provider with n subscribers and fee f earns floor(n * t * f / P) over t
// whole seconds, where P is the billing period in seconds. Amounts are
// integers in the smallest token unit. Intermediate products are computed
// with arbitrary precision and fail with ErrOverflow only when the result
// itself does not fit.
//
// # Identifiers
//
// Providers and subscribers are addressed by monotonically increasing
// handles that are never reused. Transfers and audit events use TypeIDs:
//
//	xfer_01h2xcejqtf2nbrexx3vqjhp41  // Transfer ID
//	evt_01h455vb4pex5vsknk084sn02q   // Event ID
package accrual
