package audithook

// Action constants for audit events.
const (
	// Service actions
	ActionOrchestratorInitialized = "orchestrator.initialized"
	ActionBillingUnavailable      = "billing.unavailable"

	// Restore actions
	ActionRestoreStarted  = "restore.started"
	ActionRestoreFinished = "restore.finished"

	// Purchase actions
	ActionPurchaseStarted   = "purchase.started"
	ActionPurchaseReported  = "purchase.reported"
	ActionPurchaseVerifying = "purchase.verifying"
	ActionItemGranted       = "item.granted"
	ActionPurchaseCancelled = "purchase.cancelled"
	ActionPurchaseRefunded  = "purchase.refunded"

	// Failures
	ActionUnexpectedError = "error.unexpected"
)

// Resource constants for audit events.
const (
	ResourceOrchestrator = "orchestrator"
	ResourceBilling      = "billing"
	ResourceInventory    = "inventory"
	ResourceItem         = "item"
	ResourcePurchase     = "purchase"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategoryPayment   = "payment"
	CategoryOwnership = "ownership"
	CategoryIntegrity = "integrity"
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
	OutcomePartial = "partial"
)
