package accrual

import "github.com/xraph/accrual/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Identity is re-exported from types package.
type Identity = types.Identity

// Token is re-exported from types package.
type Token = types.Token

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export helpers
var (
	Sum    = types.Sum
	MulDiv = types.MulDiv
)

// DefaultToken is re-exported from types package.
var DefaultToken = types.DefaultToken
