// Package memory implements store.Store in process memory. It is meant for
// tests and single-process development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/accrual"
	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/subscriber"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps deep copies of everything applied to it.
type Store struct {
	mu sync.RWMutex

	providers   map[id.ProviderID]*provider.Provider
	subscribers map[id.SubscriberID]*subscriber.Subscriber
	active      map[id.ProviderID]bool
	keys        map[string]struct{}
	sequences   map[string]id.Handle

	applies  int
	failWith error
	closed   bool
}

// New returns an empty memory store.
func New() *Store {
	return &Store{
		providers:   make(map[id.ProviderID]*provider.Provider),
		subscribers: make(map[id.SubscriberID]*subscriber.Subscriber),
		active:      make(map[id.ProviderID]bool),
		keys:        make(map[string]struct{}),
		sequences:   make(map[string]id.Handle),
	}
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return accrual.ErrStoreNotReady
	}
	return nil
}

// Close marks the store closed. Later calls fail with ErrStoreNotReady.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailApply makes every following Apply return err. Pass nil to clear.
func (s *Store) FailApply(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Applies returns how many change sets were applied successfully.
func (s *Store) Applies() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applies
}

// Load implements store.Store.
func (s *Store) Load(_ context.Context) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, accrual.ErrStoreNotReady
	}

	snap := &store.Snapshot{
		Providers:   make([]*provider.Provider, 0, len(s.providers)),
		Subscribers: make([]*subscriber.Subscriber, 0, len(s.subscribers)),
		Active:      make([]id.ProviderID, 0, len(s.active)),
		Keys:        make([]string, 0, len(s.keys)),
		Sequences:   make(map[string]id.Handle, len(s.sequences)),
	}
	for _, p := range s.providers {
		snap.Providers = append(snap.Providers, p.Clone())
	}
	for _, sub := range s.subscribers {
		snap.Subscribers = append(snap.Subscribers, sub.Clone())
	}
	for h, on := range s.active {
		if on {
			snap.Active = append(snap.Active, h)
		}
	}
	for k := range s.keys {
		snap.Keys = append(snap.Keys, k)
	}
	for name, h := range s.sequences {
		snap.Sequences[name] = h
	}

	sort.Slice(snap.Providers, func(i, j int) bool { return snap.Providers[i].ID < snap.Providers[j].ID })
	sort.Slice(snap.Subscribers, func(i, j int) bool { return snap.Subscribers[i].ID < snap.Subscribers[j].ID })
	sort.Slice(snap.Active, func(i, j int) bool { return snap.Active[i] < snap.Active[j] })
	sort.Strings(snap.Keys)

	return snap, nil
}

// Apply implements store.Store. The whole set is applied under one lock.
func (s *Store) Apply(_ context.Context, ch *store.Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return accrual.ErrStoreNotReady
	}
	if s.failWith != nil {
		return s.failWith
	}
	if ch.IsEmpty() {
		return nil
	}

	for _, p := range ch.Providers {
		s.providers[p.ID] = p.Clone()
	}
	for _, h := range ch.DeleteProviders {
		delete(s.providers, h)
	}
	for _, sub := range ch.Subscribers {
		s.subscribers[sub.ID] = sub.Clone()
	}
	for _, h := range ch.DeleteSubscribers {
		delete(s.subscribers, h)
	}
	for _, k := range ch.ConsumeKeys {
		s.keys[k] = struct{}{}
	}
	for _, k := range ch.ReleaseKeys {
		delete(s.keys, k)
	}
	for _, f := range ch.Active {
		if f.Active {
			s.active[f.ID] = true
		} else {
			delete(s.active, f.ID)
		}
	}
	for name, h := range ch.Sequences {
		if h > s.sequences[name] {
			s.sequences[name] = h
		}
	}

	s.applies++
	return nil
}
