// Package activeset tracks which provider handles are currently active.
//
// The set is a packed bitset indexed by handle. It knows nothing about
// whether a record exists for a handle; callers decide what inactive means.
package activeset

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/xraph/accrual/id"
)

// Set is a packed set of active handles. The zero value is ready to use.
// A Set is not safe for concurrent use; the ledger engine guards it.
type Set struct {
	bits bitset.BitSet
}

// New returns an empty set sized for handles up to hint.
func New(hint id.Handle) *Set {
	s := &Set{}
	if hint > 0 {
		s.bits = *bitset.New(uint(hint) + 1)
	}
	return s
}

// SetActive marks h active or inactive. Repeated calls are idempotent.
func (s *Set) SetActive(h id.Handle, active bool) {
	if active {
		s.bits.Set(uint(h))
		return
	}
	s.bits.Clear(uint(h))
}

// IsActive reports whether h is active.
func (s *Set) IsActive(h id.Handle) bool {
	return s.bits.Test(uint(h))
}

// Count returns the number of active handles.
func (s *Set) Count() int {
	return int(s.bits.Count())
}

// Active returns the active handles in ascending order.
func (s *Set) Active() []id.Handle {
	out := make([]id.Handle, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		out = append(out, id.Handle(i))
	}
	return out
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := &Set{}
	s.bits.CopyFull(&c.bits)
	return c
}
