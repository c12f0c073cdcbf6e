package provider

import (
	"sort"

	"github.com/xraph/accrual/activeset"
	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/types"
)

// Ledger is the in-memory table of provider records plus the active set.
// It is not safe for concurrent use; the engine lock guards it.
type Ledger struct {
	records map[id.ProviderID]*Provider
	active  *activeset.Set
}

// NewLedger returns an empty provider table.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[id.ProviderID]*Provider),
		active:  activeset.New(0),
	}
}

// Get returns a copy of the record.
func (l *Ledger) Get(h id.ProviderID) (*Provider, bool) {
	p, ok := l.records[h]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Exists reports whether a record is stored for h.
func (l *Ledger) Exists(h id.ProviderID) bool {
	_, ok := l.records[h]
	return ok
}

// Put stores p, replacing any record with the same ID. The ledger takes
// ownership of p.
func (l *Ledger) Put(p *Provider) {
	l.records[p.ID] = p
}

// Delete removes the record and clears its active flag.
func (l *Ledger) Delete(h id.ProviderID) {
	delete(l.records, h)
	l.active.SetActive(h, false)
}

// SetActive toggles the active flag for h.
func (l *Ledger) SetActive(h id.ProviderID, active bool) {
	l.active.SetActive(h, active)
}

// IsActive reports the raw active flag for h.
func (l *Ledger) IsActive(h id.ProviderID) bool {
	return l.active.IsActive(h)
}

// Live reports whether h is flagged active and still has a record.
func (l *Ledger) Live(h id.ProviderID) bool {
	return l.active.IsActive(h) && l.Exists(h)
}

// LiveFee returns the fee of h if it is live.
func (l *Ledger) LiveFee(h id.ProviderID) (types.Amount, bool) {
	if !l.active.IsActive(h) {
		return 0, false
	}
	p, ok := l.records[h]
	if !ok {
		return 0, false
	}
	return p.Fee, true
}

// Len returns the number of stored records.
func (l *Ledger) Len() int { return len(l.records) }

// All returns copies of every record ordered by ID.
func (l *Ledger) All() []*Provider {
	out := make([]*Provider, 0, len(l.records))
	for _, p := range l.records {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveIDs returns live provider IDs in ascending order.
func (l *Ledger) ActiveIDs() []id.ProviderID {
	flagged := l.active.Active()
	out := flagged[:0]
	for _, h := range flagged {
		if l.Exists(h) {
			out = append(out, h)
		}
	}
	return out
}

// Reset replaces the table contents.
func (l *Ledger) Reset(records []*Provider, active []id.ProviderID) {
	l.records = make(map[id.ProviderID]*Provider, len(records))
	for _, p := range records {
		l.records[p.ID] = p
	}
	l.active = activeset.New(0)
	for _, h := range active {
		l.active.SetActive(h, true)
	}
}
