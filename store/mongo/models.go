package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/types"
)

// ==================== Provider models ====================

type providerModel struct {
	grove.BaseModel `grove:"table:accrual_providers"`

	ID              int64     `grove:"id,pk"            bson:"_id"`
	Owner           string    `grove:"owner"            bson:"owner"`
	RegistrationKey string    `grove:"registration_key" bson:"registration_key"`
	SubscriberCount int64     `grove:"subscriber_count" bson:"subscriber_count"`
	LastSettled     time.Time `grove:"last_settled"     bson:"last_settled"`
	Fee             int64     `grove:"fee"              bson:"fee"`
	Balance         int64     `grove:"balance"          bson:"balance"`
	CreatedAt       time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"       bson:"updated_at"`
}

func toProviderModel(p *provider.Provider) *providerModel {
	return &providerModel{
		ID:              int64(p.ID),
		Owner:           string(p.Owner),
		RegistrationKey: p.RegistrationKey,
		SubscriberCount: p.SubscriberCount,
		LastSettled:     p.LastSettled,
		Fee:             int64(p.Fee),
		Balance:         int64(p.Balance),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func fromProviderModel(m *providerModel) *provider.Provider {
	return &provider.Provider{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:              id.ProviderID(m.ID),
		Owner:           types.Identity(m.Owner),
		RegistrationKey: m.RegistrationKey,
		SubscriberCount: m.SubscriberCount,
		LastSettled:     m.LastSettled.UTC(),
		Fee:             types.Amount(m.Fee),
		Balance:         types.Amount(m.Balance),
	}
}

// ==================== Subscriber models ====================

type subscriberModel struct {
	grove.BaseModel `grove:"table:accrual_subscribers"`

	ID          int64      `grove:"id,pk"        bson:"_id"`
	Owner       string     `grove:"owner"        bson:"owner"`
	Plan        string     `grove:"plan"         bson:"plan"`
	CreatedDate time.Time  `grove:"created_date" bson:"created_date"`
	PausedDate  *time.Time `grove:"paused_date"  bson:"paused_date,omitempty"`
	Balance     int64      `grove:"balance"      bson:"balance"`
	ProviderIDs []int64    `grove:"provider_ids" bson:"provider_ids"`
	CreatedAt   time.Time  `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"   bson:"updated_at"`
}

func toSubscriberModel(s *subscriber.Subscriber) *subscriberModel {
	providers := make([]int64, len(s.ProviderIDs))
	for i, h := range s.ProviderIDs {
		providers[i] = int64(h)
	}

	m := &subscriberModel{
		ID:          int64(s.ID),
		Owner:       string(s.Owner),
		Plan:        string(s.Plan),
		CreatedDate: s.CreatedDate,
		Balance:     int64(s.Balance),
		ProviderIDs: providers,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.IsPaused() {
		paused := s.PausedDate
		m.PausedDate = &paused
	}
	return m
}

func fromSubscriberModel(m *subscriberModel) *subscriber.Subscriber {
	providers := make([]id.ProviderID, len(m.ProviderIDs))
	for i, h := range m.ProviderIDs {
		providers[i] = id.ProviderID(h)
	}

	s := &subscriber.Subscriber{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          id.SubscriberID(m.ID),
		Owner:       types.Identity(m.Owner),
		Plan:        subscriber.Plan(m.Plan),
		CreatedDate: m.CreatedDate.UTC(),
		Balance:     types.Amount(m.Balance),
		ProviderIDs: providers,
	}
	if m.PausedDate != nil {
		s.PausedDate = m.PausedDate.UTC()
	}
	return s
}

// ==================== Bookkeeping models ====================

type activeModel struct {
	grove.BaseModel `grove:"table:accrual_active_providers"`

	ProviderID int64 `grove:"provider_id,pk" bson:"_id"`
}

type keyModel struct {
	grove.BaseModel `grove:"table:accrual_registration_keys"`

	Key        string    `grove:"key,pk"      bson:"_id"`
	ConsumedAt time.Time `grove:"consumed_at" bson:"consumed_at"`
}

type sequenceModel struct {
	grove.BaseModel `grove:"table:accrual_sequences"`

	Name string `grove:"name,pk" bson:"_id"`
	Last int64  `grove:"last"    bson:"last"`
}
