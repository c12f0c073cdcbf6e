package accrual

import "github.com/xraph/accrual/id"

// ID is the TypeID used for transfers and audit events.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// ProviderID addresses a provider record.
type ProviderID = id.ProviderID

// SubscriberID addresses a subscriber record.
type SubscriberID = id.SubscriberID
