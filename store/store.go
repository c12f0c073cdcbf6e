// Package store defines the persistence contract for the accrual ledger.
//
// The engine keeps the authoritative state in memory and writes every
// committed mutation through a Store as a Changes set. Backends apply a
// set atomically where the database allows it, and applying the same set
// twice leaves the same state.
package store

import (
	"context"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
)

// Store is the unified storage interface for ledger state.
type Store interface {
	// Load returns everything needed to rebuild the engine.
	Load(ctx context.Context) (*Snapshot, error)

	// Apply persists a change set.
	Apply(ctx context.Context, ch *Changes) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Sequence names used for handle high-water marks.
const (
	SeqProvider   = "provider"
	SeqSubscriber = "subscriber"
)

// Snapshot is the full persisted state.
type Snapshot struct {
	Providers   []*provider.Provider
	Subscribers []*subscriber.Subscriber
	Active      []id.ProviderID
	Keys        []string
	Sequences   map[string]id.Handle
}

// ActiveFlag is a persisted active-set entry.
type ActiveFlag struct {
	ID     id.ProviderID
	Active bool
}

// Changes is an idempotent set of full-record writes.
type Changes struct {
	Providers         []*provider.Provider
	DeleteProviders   []id.ProviderID
	Subscribers       []*subscriber.Subscriber
	DeleteSubscribers []id.SubscriberID
	ConsumeKeys       []string
	ReleaseKeys       []string
	Active            []ActiveFlag
	Sequences         map[string]id.Handle
}

// IsEmpty reports whether the set writes nothing.
func (c *Changes) IsEmpty() bool {
	return c == nil ||
		len(c.Providers) == 0 &&
			len(c.DeleteProviders) == 0 &&
			len(c.Subscribers) == 0 &&
			len(c.DeleteSubscribers) == 0 &&
			len(c.ConsumeKeys) == 0 &&
			len(c.ReleaseKeys) == 0 &&
			len(c.Active) == 0 &&
			len(c.Sequences) == 0
}

// SetSequence records a high-water mark.
func (c *Changes) SetSequence(name string, h id.Handle) {
	if c.Sequences == nil {
		c.Sequences = make(map[string]id.Handle, 2)
	}
	c.Sequences[name] = h
}
