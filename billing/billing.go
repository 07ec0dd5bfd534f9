// Package billing defines the contract between the purchase engine and a
// marketplace billing backend.
//
// Every backend operation is asynchronous: it returns immediately and later
// invokes exactly one of the continuations it was handed, on any goroutine.
// Callers wrap continuations with the Once helpers so that a misbehaving
// backend calling back twice cannot apply a result twice.
package billing

import (
	"fmt"
	"time"

	"github.com/xraph/iap/item"
)

// PurchaseState is the marketplace state of a purchase record.
type PurchaseState int

const (
	// StatePurchased is a completed, paid purchase.
	StatePurchased PurchaseState = iota
	// StateCanceled is a purchase the marketplace canceled after payment.
	StateCanceled
	// StateRefunded is a purchase the marketplace refunded.
	StateRefunded
)

// String returns the canonical name of the state.
func (s PurchaseState) String() string {
	switch s {
	case StatePurchased:
		return "purchased"
	case StateCanceled:
		return "canceled"
	case StateRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsRefund reports whether the state revokes a prior purchase. Both
// canceled and refunded purchases are treated the same way.
func (s PurchaseState) IsRefund() bool {
	return s == StateCanceled || s == StateRefunded
}

// Purchase is a purchase record reported by the marketplace.
type Purchase struct {
	ProductID    string        `json:"product_id"`
	Token        string        `json:"token"`
	Payload      string        `json:"payload,omitempty"`
	OrderID      string        `json:"order_id"`
	State        PurchaseState `json:"state"`
	PurchaseTime time.Time     `json:"purchase_time"`

	// OriginalJSON and Signature carry the signed receipt, when the
	// marketplace provides one.
	OriginalJSON string `json:"original_json,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

// SkuDetails is the listing metadata the marketplace returns for a product.
type SkuDetails = item.MarketDetails

// Outcome is the result category of a purchase attempt.
type Outcome int

const (
	// OutcomeSuccess carries a purchase whose State decides between a
	// grant and a refund.
	OutcomeSuccess Outcome = iota
	// OutcomeCancelled means the user backed out of the purchase.
	OutcomeCancelled
	// OutcomeAlreadyOwned means the user already holds an unconsumed purchase.
	OutcomeAlreadyOwned
	// OutcomeFailed means the purchase could not be completed.
	OutcomeFailed
)

// String returns the canonical name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeAlreadyOwned:
		return "already_owned"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is delivered once per purchase attempt.
type Result struct {
	Outcome  Outcome
	Purchase *Purchase // nil for OutcomeFailed
	Err      error     // set for OutcomeFailed
}

// Continuations handed to a Backend.
type (
	// ReadyFunc is called when the backend is ready. alreadyStarted is
	// true when the service was already running in the background.
	ReadyFunc func(alreadyStarted bool)
	// FailFunc is called with the reason an operation failed.
	FailFunc func(err error)
	// InventoryFunc receives owned purchases and listing metadata.
	InventoryFunc func(owned []Purchase, details []SkuDetails)
	// ResultFunc receives the result of a purchase attempt.
	ResultFunc func(r Result)
	// DoneFunc is called when a purchase has been consumed.
	DoneFunc func(p Purchase)
)

// Backend is a marketplace billing client.
type Backend interface {
	// Initialize connects to the marketplace. Calling it on an
	// initialized backend calls onReady again.
	Initialize(onReady ReadyFunc, onFail FailFunc)

	// StartBackground keeps the service connection open between
	// operations. StopBackground releases it.
	StartBackground(onReady ReadyFunc, onFail FailFunc)
	StopBackground(onReady ReadyFunc, onFail FailFunc)

	// QueryInventory lists owned purchases and, when refreshDetails is
	// set, listing metadata for productIDs.
	QueryInventory(refreshDetails bool, productIDs []string, onSuccess InventoryFunc, onFail FailFunc)

	// LaunchPurchase starts a purchase flow on host. An error means no
	// flow was started and onResult will not be called.
	LaunchPurchase(host Host, productID string, onResult ResultFunc, payload string) error

	// Consume tells the marketplace a consumable purchase has been used.
	Consume(p Purchase, onDone DoneFunc, onFail FailFunc)

	// HandleExternalResult routes a result delivered to the host back
	// into the backend. It reports whether the backend recognized it.
	HandleExternalResult(requestCode, resultCode int, data map[string]string) bool

	// IsInitialized reports whether Initialize has completed.
	IsInitialized() bool
}
