// Package types provides common value types used across the accrual ledger.
package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amount is a quantity of payment-token units. All arithmetic is integer-only.
type Amount int64

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a < 0 }

// Int64 returns the raw unit count.
func (a Amount) Int64() int64 { return int64(a) }

// SaturatingSub returns a - b, floored at zero.
func (a Amount) SaturatingSub(b Amount) Amount {
	if b >= a {
		return 0
	}
	return a - b
}

// ErrOverflow is returned when a sum or product does not fit in an Amount.
var ErrOverflow = errors.New("accrual: amount overflow")

// CheckedAdd returns a + b, or ErrOverflow if the result does not fit.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sum adds amounts, failing with ErrOverflow instead of wrapping.
func Sum(values ...Amount) (Amount, error) {
	var total Amount
	for _, v := range values {
		var err error
		if total, err = total.CheckedAdd(v); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// MulDiv computes floor(x * y * z / d) for non-negative operands without
// intermediate overflow. The result must fit in an int64.
func MulDiv(x, y, z, d int64) (Amount, error) {
	if d <= 0 {
		panic("types: MulDiv divisor must be positive")
	}
	if x < 0 || y < 0 || z < 0 {
		return 0, fmt.Errorf("types: MulDiv negative operand (%d, %d, %d)", x, y, z)
	}
	if x == 0 || y == 0 || z == 0 {
		return 0, nil
	}

	product := decimal.NewFromInt(x).Mul(decimal.NewFromInt(y)).Mul(decimal.NewFromInt(z))
	quotient, _ := product.QuoRem(decimal.NewFromInt(d), 0)

	q := quotient.BigInt()
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return Amount(q.Int64()), nil
}
