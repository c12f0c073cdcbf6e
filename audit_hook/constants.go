package audithook

// Action constants for audit events.
const (
	// Provider actions
	ActionProviderRegistered   = "provider.registered"
	ActionProviderRemoved      = "provider.removed"
	ActionProviderSettled      = "provider.settled"
	ActionEarningsWithdrawn    = "provider.earnings_withdrawn"
	ActionFeeUpdated           = "provider.fee_updated"
	ActionProvidersActivated   = "provider.activated"
	ActionProvidersDeactivated = "provider.deactivated"

	// Subscriber actions
	ActionSubscriberRegistered = "subscriber.registered"
	ActionSubscriptionPaused   = "subscriber.paused"
	ActionDeposit              = "subscriber.deposit"

	// Transfer actions
	ActionTransferFailed = "transfer.failed"
)

// Resource constants for audit events.
const (
	ResourceProvider   = "provider"
	ResourceSubscriber = "subscriber"
	ResourceTransfer   = "transfer"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
