package id

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// Handle addresses a provider or subscriber record. The zero handle is
// never allocated and means "none".
type Handle uint64

// ProviderID identifies a provider record.
type ProviderID = Handle

// SubscriberID identifies a subscriber record.
type SubscriberID = Handle

// IsZero reports whether h is the unallocated handle.
func (h Handle) IsZero() bool { return h == 0 }

// String returns the decimal form of the handle.
func (h Handle) String() string { return strconv.FormatUint(uint64(h), 10) }

// ParseHandle parses a decimal handle. Zero is rejected.
func ParseHandle(s string) (Handle, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id: parse handle %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("id: parse handle %q: zero handle", s)
	}

	return Handle(v), nil
}

// Sequence hands out strictly increasing handles starting at 1.
// It is safe for concurrent use.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence returns a sequence whose next handle is last+1.
func NewSequence(last Handle) *Sequence {
	s := &Sequence{}
	s.last.Store(uint64(last))
	return s
}

// Next allocates the next handle.
func (s *Sequence) Next() Handle {
	return Handle(s.last.Add(1))
}

// Peek returns the most recently allocated handle, or zero if none.
func (s *Sequence) Peek() Handle {
	return Handle(s.last.Load())
}

// Restore advances the sequence so that the next handle is greater than h.
// It never moves the sequence backwards.
func (s *Sequence) Restore(h Handle) {
	for {
		cur := s.last.Load()
		if uint64(h) <= cur {
			return
		}
		if s.last.CompareAndSwap(cur, uint64(h)) {
			return
		}
	}
}
