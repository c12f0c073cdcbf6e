package types

import (
	"testing"
	"time"
)

func TestTokenFormat(t *testing.T) {
	tests := []struct {
		name    string
		token   Token
		amount  Amount
		major   string
		display string
	}{
		{"two decimals", Token{Symbol: "usdc", Decimals: 2}, 4900, "49.00", "49.00 USDC"},
		{"fractional", Token{Symbol: "usdc", Decimals: 2}, 7550, "75.50", "75.50 USDC"},
		{"negative", Token{Symbol: "usdc", Decimals: 2}, -150, "-1.50", "-1.50 USDC"},
		{"no decimals", Token{Symbol: "pts", Decimals: 0}, 100, "100", "100 PTS"},
		{"six decimals", Token{Symbol: "eth", Decimals: 6}, 1, "0.000001", "0.000001 ETH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.FormatMajor(tt.amount); got != tt.major {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.major)
			}
			if got := tt.token.Format(tt.amount); got != tt.display {
				t.Errorf("Format: got %s, want %s", got, tt.display)
			}
		})
	}
}

func TestEntityTouch(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntity(created)
	if !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Error("new entity should have equal timestamps")
	}

	later := created.Add(time.Hour)
	e.Touch(later)
	if !e.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt: got %v, want %v", e.UpdatedAt, later)
	}
	if e.Age(later) != time.Hour {
		t.Errorf("Age: got %v, want 1h", e.Age(later))
	}
}
