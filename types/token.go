package types

import (
	"fmt"
	"strings"
)

// Token describes the payment token fees and balances are denominated in.
// The ledger never converts between tokens.
type Token struct {
	Symbol   string `json:"symbol"   mapstructure:"symbol"   yaml:"symbol"`
	Decimals int    `json:"decimals" mapstructure:"decimals" yaml:"decimals"`
}

// DefaultToken is a two-decimal stable token.
var DefaultToken = Token{Symbol: "usdc", Decimals: 2}

// FormatMajor returns the major unit string without the symbol.
// For Decimals=2: "49.00" for 4900. For Decimals=0: "100" for 100.
func (t Token) FormatMajor(a Amount) string {
	if t.Decimals <= 0 {
		return fmt.Sprintf("%d", int64(a))
	}

	divisor := int64(1)
	for i := 0; i < t.Decimals; i++ {
		divisor *= 10
	}

	isNegative := a < 0
	abs := int64(a)
	if isNegative {
		abs = -abs
	}

	format := fmt.Sprintf("%%d.%%0%dd", t.Decimals)
	result := fmt.Sprintf(format, abs/divisor, abs%divisor)

	if isNegative {
		return "-" + result
	}
	return result
}

// Format returns the amount with the upper-cased token symbol, e.g. "49.00 USDC".
func (t Token) Format(a Amount) string {
	return t.FormatMajor(a) + " " + strings.ToUpper(t.Symbol)
}
