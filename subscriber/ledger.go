package subscriber

import (
	"sort"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/types"
)

// Ledger is the in-memory table of subscriber records.
// It is not safe for concurrent use; the engine lock guards it.
type Ledger struct {
	records map[id.SubscriberID]*Subscriber
}

// NewLedger returns an empty subscriber table.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[id.SubscriberID]*Subscriber)}
}

// Get returns a copy of the record.
func (l *Ledger) Get(h id.SubscriberID) (*Subscriber, bool) {
	s, ok := l.records[h]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Put stores s, replacing any record with the same ID.
func (l *Ledger) Put(s *Subscriber) {
	l.records[s.ID] = s
}

// Delete removes a record. Only used to undo a failed registration.
func (l *Ledger) Delete(h id.SubscriberID) {
	delete(l.records, h)
}

// Len returns the number of stored records.
func (l *Ledger) Len() int { return len(l.records) }

// List returns copies of the records owned by owner, or all records when
// owner is empty, ordered by ID.
func (l *Ledger) List(owner types.Identity) []*Subscriber {
	out := make([]*Subscriber, 0, len(l.records))
	for _, s := range l.records {
		if owner.IsZero() || s.Owner == owner {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset replaces the table contents.
func (l *Ledger) Reset(records []*Subscriber) {
	l.records = make(map[id.SubscriberID]*Subscriber, len(records))
	for _, s := range records {
		l.records[s.ID] = s
	}
}
